package host

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/apps"
	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/store"
)

var epoch = time.UnixMilli(1_700_000_000_000)

func newTestHost(t *testing.T, opts ...Option) (*Host, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNow(func() time.Time { return epoch }),
	}
	return New(st, apps.Default(), append(base, opts...)...), st
}

func mount(t *testing.T, h *Host, id, app string) {
	t.Helper()
	_, err := h.Mount(context.Background(), id, app, nil)
	require.NoError(t, err)
}

func press(t *testing.T, out *Outcome, label string) protocol.Event {
	t.Helper()
	require.NotNil(t, out.Blocks)
	id, ok := out.Blocks.ActionFor(label, "onPress")
	require.True(t, ok, "no button %q in %v", label, out.Blocks.Texts())
	return protocol.Event{Hook: id, UserAction: &protocol.UserAction{ActionID: "press"}}
}

func TestMount_UnknownApp(t *testing.T) {
	h, _ := newTestHost(t)
	_, err := h.Mount(context.Background(), "s1", "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownApp)
}

func TestPump_Counter(t *testing.T) {
	h, st := newTestHost(t)
	ctx := context.Background()
	mount(t, h, "s1", "counter")

	out, err := h.Pump(ctx, "s1", nil)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	assert.Contains(t, out.Blocks.Texts(), "Count: 0")

	out, err = h.Pump(ctx, "s1", []protocol.Event{press(t, out, "+1")})
	require.NoError(t, err)
	out, err = h.Pump(ctx, "s1", []protocol.Event{press(t, out, "+1")})
	require.NoError(t, err)
	assert.Contains(t, out.Blocks.Texts(), "Count: 2")

	state, err := st.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(state["Counter#0/state#0"]))

	entries, err := st.ReadTranscript(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPump_LoaderResolvesThroughHost(t *testing.T) {
	h, st := newTestHost(t)
	ctx := context.Background()
	require.NoError(t, st.KV("loader").Set(ctx, "greeting/world", json.RawMessage(`"hello, world"`)))
	mount(t, h, "s1", "loader")

	out, err := h.Pump(ctx, "s1", nil)
	require.NoError(t, err)
	assert.True(t, out.Settled)
	// Suspend, run the producer on the other queue, apply the response.
	require.Len(t, out.Steps, 3)
	assert.Nil(t, out.Steps[0].Response.Blocks)
	assert.True(t, out.Steps[0].Response.Events[0].Async)
	assert.Contains(t, out.Blocks.Texts(), "hello, world")

	sel := press(t, out, "Select")
	sel.UserAction.Data = json.RawMessage(`"moon"`)
	out, err = h.Pump(ctx, "s1", []protocol.Event{sel})
	require.NoError(t, err)
	assert.Contains(t, out.Blocks.Texts(), `error: no greeting for "moon"`)
}

func TestPump_StepBound(t *testing.T) {
	h, _ := newTestHost(t, WithMaxSteps(1))
	mount(t, h, "s1", "loader")

	out, err := h.Pump(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.False(t, out.Settled)
	require.Len(t, out.Pending, 1)
	assert.NotNil(t, out.Pending[0].AsyncRequest)
	assert.Nil(t, out.Blocks)
}

func TestPump_LiveChannel(t *testing.T) {
	h, st := newTestHost(t)
	ctx := context.Background()
	mount(t, h, "s1", "live")

	out, err := h.Pump(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Contains(t, out.Blocks.Texts(), "#lobby (off)")

	// Nobody is subscribed yet.
	pub, err := h.Publish(ctx, "s1", "lobby", json.RawMessage(`"ignored"`))
	require.NoError(t, err)
	assert.Empty(t, pub.Steps)

	out, err = h.Pump(ctx, "s1", []protocol.Event{press(t, out, "Follow")})
	require.NoError(t, err)
	require.NotEmpty(t, out.Effects)
	assert.Equal(t, protocol.EffectSubscribe, out.Effects[0].Type)
	assert.Equal(t, "lobby", out.Effects[0].Channel)
	assert.Contains(t, out.Blocks.Texts(), "#lobby (connected)")

	out, err = h.Publish(ctx, "s1", "lobby", json.RawMessage(`"hi"`))
	require.NoError(t, err)
	assert.Contains(t, out.Blocks.Texts(), `1 messages, last: "hi"`)

	out, err = h.Pump(ctx, "s1", []protocol.Event{press(t, out, "Unfollow")})
	require.NoError(t, err)
	assert.Equal(t, protocol.EffectUnsubscribe, out.Effects[0].Type)

	state, err := st.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"lobby","connected":false,"subscribed":false}`, string(state["Live#0/channel#0"]))
}

func TestRunDue_Ticker(t *testing.T) {
	h, st := newTestHost(t)
	ctx := context.Background()
	_, err := h.Mount(ctx, "s1", "ticker", json.RawMessage(`{"interval":500}`))
	require.NoError(t, err)

	out, err := h.Pump(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, out.Effects)

	out, err = h.Pump(ctx, "s1", []protocol.Event{press(t, out, "Start/Stop")})
	require.NoError(t, err)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, protocol.Effect{Type: protocol.EffectRerender, DelayMs: 500}, out.Effects[0])

	outs, err := h.RunDue(ctx, epoch.Add(499*time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, outs)

	outs, err = h.RunDue(ctx, epoch.Add(500*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Settled)
	assert.Contains(t, outs[0].Blocks.Texts(), "ticks: 0")

	// The rerender asked for the next tick.
	due, err := st.Scheduler().Due(ctx, epoch.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSend_FailureIsRecorded(t *testing.T) {
	broken := engine.Define("Broken", func(c *engine.Ctx, props engine.Props) engine.Element {
		return engine.Frag(engine.El("text", nil), engine.El("text", nil))
	})
	st, err := store.OpenMemory()
	require.NoError(t, err)
	defer st.Close()

	h := New(st, apps.NewRegistry(apps.App{Name: "broken", Root: broken}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()
	_, err = h.Mount(ctx, "s1", "broken", nil)
	require.NoError(t, err)

	step, err := h.Send(ctx, "s1", nil)
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))
	assert.Equal(t, int64(1), step.Seq)

	entries, err := st.ReadTranscript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "ROOT_COUNT")
	assert.Nil(t, entries[0].Response)
}
