package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(root *Component, opts ...EngineOption) *Engine {
	base := []EngineOption{WithLogger(quietLogger())}
	return New(root, append(base, opts...)...)
}

func handle(t *testing.T, e *Engine, req *protocol.Request) *protocol.Response {
	t.Helper()
	resp, err := e.Handle(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func press(hook, data string) protocol.Event {
	ev := protocol.Event{Hook: hook, UserAction: &protocol.UserAction{ActionID: "a"}}
	if data != "" {
		ev.UserAction.Data = json.RawMessage(data)
	}
	return ev
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

const (
	counterState  = "Counter#0/state#0"
	counterAction = "Counter#0.vstack#0.button#0/action:onPress"
)

// counter increments on every press and fails when the action data says so.
var counter = Define("Counter", func(c *Ctx, props Props) Element {
	n, set := UseState(c, 0)
	inc := ActionFunc(func(ctx context.Context, data json.RawMessage) error {
		var in struct {
			Fail bool `json:"fail"`
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &in); err != nil {
				return err
			}
		}
		if in.Fail {
			return errors.New("increment refused")
		}
		return set.Update(func(prev int) int { return prev + 1 })
	})
	return El("vstack", nil,
		El("text", nil, Text(fmt.Sprintf("Count: %d", n))),
		El("button", Props{"onPress": inc}, Text("+1")),
	)
})

const (
	toggleState  = "Toggle#0/state#0"
	toggleAction = "Toggle#0.vstack#0.button#0/action:onPress"
	childState   = "Toggle#0.vstack#0.Child#0/state#0"
)

var child = Define("Child", func(c *Ctx, props Props) Element {
	v, _ := UseState(c, "x")
	return El("text", nil, Text(v))
})

// toggle shows or hides a stateful child.
var toggle = Define("Toggle", func(c *Ctx, props Props) Element {
	show, set := UseState(c, true)
	kids := []Element{
		El("button", Props{"onPress": ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
			return set.Set(!show)
		})}, Text("toggle")),
	}
	if show {
		kids = append(kids, child.New(nil))
	}
	return El("vstack", nil, kids...)
})

const loaderHook = "Loader#0/async#0"

// loader loads a greeting for props.dep.
var loader = Define("Loader", func(c *Ctx, props Props) Element {
	r := UseAsync(c, func(ctx context.Context) (string, error) {
		if props["fail"] == true {
			return "", errors.New("backend down")
		}
		return "hi", nil
	}, AsyncOptions[string]{Depends: props["dep"]})
	label := "loading"
	switch r.State {
	case Loaded:
		label = r.Data
	case Failed:
		label = "failed: " + r.Error.Message
	}
	return El("text", nil, Text(label))
})

const (
	liveOn      = "Live#0/state#0"
	liveCount   = "Live#0/state#1"
	liveChannel = "Live#0/channel#0"
	liveAction  = "Live#0.button#0/action:onPress"
)

// live subscribes to room_1 while switched on and counts messages.
var live = Define("Live", func(c *Ctx, props Props) Element {
	on, setOn := UseState(c, false)
	count, setCount := UseState(c, 0)
	ch := UseChannel(c, "room_1", ChannelOptions{
		OnMessage: func(ctx context.Context, _ json.RawMessage) error {
			return setCount.Update(func(n int) int { return n + 1 })
		},
	})
	if on {
		ch.Subscribe()
	} else {
		ch.Unsubscribe()
	}
	return El("button", Props{"onPress": ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
		return setOn.Set(!on)
	})}, Text(fmt.Sprintf("%d messages", count)))
})

func stateOf(t *testing.T, pairs ...string) value.State {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	s := value.State{}
	for i := 0; i < len(pairs); i += 2 {
		s[pairs[i]] = raw(pairs[i+1])
	}
	return s
}
