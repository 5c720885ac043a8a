package apps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/blockrt/internal/engine"
)

// Counter shows a number with increment and reset buttons. The optional
// "step" prop sets the increment.
var Counter = engine.Define("Counter", func(c *engine.Ctx, props engine.Props) engine.Element {
	n, set := engine.UseState(c, 0)
	step := 1
	if s, ok := props["step"].(float64); ok && s != 0 {
		step = int(s)
	}

	inc := engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
		return set.Update(func(prev int) int { return prev + step })
	})
	reset := engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
		return set.Set(0)
	})

	return engine.El("vstack", nil,
		engine.El("text", nil, engine.Text(fmt.Sprintf("Count: %d", n))),
		engine.El("hstack", nil,
			engine.El("button", engine.Props{"onPress": inc}, engine.Text(fmt.Sprintf("+%d", step))),
			engine.El("button", engine.Props{"onPress": reset}, engine.Text("Reset")),
		),
	)
})
