package apps

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/testutil"
	"github.com/roach88/blockrt/internal/value"
)

// session carries state between invocations of one app.
type session struct {
	t     *testing.T
	eng   *engine.Engine
	props json.RawMessage
	state value.State
	last  *protocol.Response
}

func open(t *testing.T, root *engine.Component, props string, opts ...engine.EngineOption) *session {
	t.Helper()
	base := []engine.EngineOption{engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	eng := engine.New(root, append(base, opts...)...)
	s := &session{t: t, eng: eng, state: value.State{}}
	if props != "" {
		s.props = json.RawMessage(props)
	}
	s.send()
	return s
}

func (s *session) send(events ...protocol.Event) *protocol.Response {
	s.t.Helper()
	resp, err := s.eng.Handle(context.Background(), &protocol.Request{Events: events, State: s.state, Props: s.props})
	require.NoError(s.t, err)
	s.state = engine.ApplyDelta(s.state, resp.State)
	s.last = resp
	return resp
}

func (s *session) press(label, data string) *protocol.Response {
	s.t.Helper()
	require.NotNil(s.t, s.last.Blocks)
	id, ok := s.last.Blocks.ActionFor(label, "onPress")
	require.True(s.t, ok, "no button %q in %v", label, s.last.Blocks.Texts())
	ev := protocol.Event{Hook: id, UserAction: &protocol.UserAction{ActionID: "press"}}
	if data != "" {
		ev.UserAction.Data = json.RawMessage(data)
	}
	return s.send(ev)
}

func TestRegistry(t *testing.T) {
	r := Default()
	var names []string
	for _, a := range r.List() {
		names = append(names, a.Name)
		assert.NotEmpty(t, a.Description)
	}
	assert.Equal(t, []string{"counter", "live", "loader", "ticker", "todo"}, names)

	root, ok := r.Lookup("counter")
	require.True(t, ok)
	assert.Equal(t, "Counter", root.Name())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestCounter(t *testing.T) {
	s := open(t, Counter, `{"step":5}`)
	assert.Contains(t, s.last.Blocks.Texts(), "Count: 0")

	s.press("+5", "")
	s.press("+5", "")
	assert.Contains(t, s.last.Blocks.Texts(), "Count: 10")

	resp := s.press("Reset", "")
	assert.Equal(t, value.State{"Counter#0/state#0": json.RawMessage(`0`)}, resp.State)
}

func TestTodo(t *testing.T) {
	s := open(t, Todo, "")
	assert.Contains(t, s.last.Blocks.Texts(), "0 items")

	s.press("Add", `{"text":"milk"}`)
	s.press("Add", `{"text":"eggs"}`)
	assert.Contains(t, s.last.Blocks.Texts(), "[ ] eggs")

	s.press("[ ] milk", "")
	assert.Contains(t, s.last.Blocks.Texts(), "[x] milk")
	const milkRow = "Todo#0.vstack#0.#0.:0.TodoRow#0/state#0"
	assert.JSONEq(t, `true`, string(s.state[milkRow]))

	// The first Remove button belongs to milk.
	resp := s.press("Remove", "")
	assert.Contains(t, s.last.Blocks.Texts(), "1 items")
	assert.True(t, protocol.IsTombstone(resp.State[milkRow]))
	assert.NotContains(t, s.state, milkRow)
	assert.Contains(t, s.state, "Todo#0.vstack#0.#0.:1.TodoRow#0/state#0")
}

func TestTodo_AddWithoutTextFails(t *testing.T) {
	s := open(t, Todo, "")
	id, ok := s.last.Blocks.ActionFor("Add", "onPress")
	require.True(t, ok)

	_, err := s.eng.Handle(context.Background(), &protocol.Request{
		State:  s.state,
		Events: []protocol.Event{{Hook: id, UserAction: &protocol.UserAction{Data: json.RawMessage(`{}`)}}},
	})
	require.Error(t, err)
	assert.True(t, engine.IsHandlerError(err))
}

func TestLive_FollowEmitsSubscribe(t *testing.T) {
	s := open(t, Live, `{"room":"ops"}`)
	assert.Contains(t, s.last.Blocks.Texts(), "#ops (off)")

	resp := s.press("Follow", "")
	require.Len(t, resp.Effects, 1)
	assert.Equal(t, protocol.EffectSubscribe, resp.Effects[0].Type)
	assert.Equal(t, "ops", resp.Effects[0].Channel)
	assert.Contains(t, resp.Blocks.Texts(), "#ops (connecting)")
}

func TestLoader_BlockingResolvesInline(t *testing.T) {
	s := open(t, Loader, "")
	assert.Nil(t, s.last.Blocks, "first render suspends")
	require.Len(t, s.last.Events, 1)

	resp := s.send(protocol.Event{Scope: protocol.ScopeAll, Blocking: true})
	require.NotNil(t, resp.Blocks)
	// No kv service is wired in this test.
	assert.Contains(t, resp.Blocks.Texts(), "error: no kv service")
	assert.Empty(t, resp.Events)
}

func TestLoader_BlockingWithGreetings(t *testing.T) {
	kv := testutil.NewMemoryKV(map[string]json.RawMessage{
		"greeting/world": json.RawMessage(`"hello"`),
		"greeting/moon":  json.RawMessage(`"hi moon"`),
	})
	s := open(t, Loader, "", engine.WithServices(engine.Services{KV: kv}))

	resp := s.send(protocol.Event{Scope: protocol.ScopeAll, Blocking: true})
	require.NotNil(t, resp.Blocks)
	assert.Contains(t, resp.Blocks.Texts(), "hello")

	id, ok := resp.Blocks.ActionFor("Select", "onPress")
	require.True(t, ok)
	resp = s.send(protocol.Event{
		Hook:       id,
		Blocking:   true,
		UserAction: &protocol.UserAction{ActionID: "press", Data: json.RawMessage(`"moon"`)},
	})
	require.NotNil(t, resp.Blocks)
	assert.Contains(t, resp.Blocks.Texts(), "hi moon")
	assert.Empty(t, resp.Events)
	assert.JSONEq(t, `"moon"`, string(s.state["Loader#0/state#0"]))
}
