package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/blockrt/internal/engine"
)

// Loader reads a greeting for the selected name from the kv service. The
// name is local state, so switching it changes the async dependency.
var Loader = engine.Define("Loader", func(c *engine.Ctx, props engine.Props) engine.Element {
	name, setName := engine.UseState(c, "world")
	kv := c.Services().KV

	greeting := engine.UseAsync(c, func(ctx context.Context) (string, error) {
		if kv == nil {
			return "", errors.New("no kv service")
		}
		raw, ok, err := kv.Get(ctx, "greeting/"+name)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no greeting for %q", name)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("greeting for %q: %w", name, err)
		}
		return s, nil
	}, engine.AsyncOptions[string]{Depends: name})

	var label string
	switch greeting.State {
	case engine.Loaded:
		label = greeting.Data
	case engine.Failed:
		label = "error: " + greeting.Error.Message
	default:
		label = "Loading..."
	}

	return engine.El("vstack", nil,
		engine.El("text", nil, engine.Text(label)),
		engine.El("button", engine.Props{"onPress": engine.ActionFunc(func(ctx context.Context, data json.RawMessage) error {
			var next string
			if err := json.Unmarshal(data, &next); err != nil {
				return fmt.Errorf("select name: %w", err)
			}
			return setName.Set(next)
		})}, engine.Text("Select")),
	)
})
