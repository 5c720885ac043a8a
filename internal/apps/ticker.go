package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/blockrt/internal/engine"
)

// Ticker asks the host to render again every "interval" milliseconds
// (default 1000) while running. Tick advances the count by hand.
var Ticker = engine.Define("Ticker", func(c *engine.Ctx, props engine.Props) engine.Element {
	running, setRunning := engine.UseState(c, false)
	ticks, setTicks := engine.UseState(c, 0)

	interval := time.Second
	if ms, ok := props["interval"].(float64); ok && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	if running {
		engine.RerenderAfter(c.Context(), interval)
	}

	return engine.El("vstack", nil,
		engine.El("text", nil, engine.Text(fmt.Sprintf("ticks: %d", ticks))),
		engine.El("button", engine.Props{"onPress": engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
			return setTicks.Update(func(n int) int { return n + 1 })
		})}, engine.Text("Tick")),
		engine.El("button", engine.Props{"onPress": engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
			return setRunning.Set(!running)
		})}, engine.Text("Start/Stop")),
	)
})
