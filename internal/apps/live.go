package apps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/blockrt/internal/engine"
)

// Live follows the channel named by the "room" prop (default "lobby")
// while switched on, and shows the last message.
var Live = engine.Define("Live", func(c *engine.Ctx, props engine.Props) engine.Element {
	on, setOn := engine.UseState(c, false)
	last, setLast := engine.UseState(c, "")
	count, setCount := engine.UseState(c, 0)

	room, _ := props["room"].(string)
	if room == "" {
		room = "lobby"
	}
	ch := engine.UseChannel(c, room, engine.ChannelOptions{
		OnMessage: func(ctx context.Context, data json.RawMessage) error {
			if err := setLast.Set(string(data)); err != nil {
				return err
			}
			return setCount.Update(func(n int) int { return n + 1 })
		},
	})
	if on {
		ch.Subscribe()
	} else {
		ch.Unsubscribe()
	}

	status := "off"
	switch {
	case on && ch.Connected():
		status = "connected"
	case on:
		status = "connecting"
	}

	label := "Follow"
	if on {
		label = "Unfollow"
	}
	return engine.El("vstack", nil,
		engine.El("text", nil, engine.Text(fmt.Sprintf("#%s (%s)", room, status))),
		engine.El("text", nil, engine.Text(fmt.Sprintf("%d messages, last: %s", count, last))),
		engine.El("button", engine.Props{"onPress": engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
			return setOn.Set(!on)
		})}, engine.Text(label)),
	)
})
