package engine

import (
	"context"

	"github.com/roach88/blockrt/internal/protocol"
)

// actionHandler adapts an ActionFunc prop to a hook handler. Only user
// action events reach the function.
func actionHandler(fn ActionFunc) handler {
	return func(ctx context.Context, e protocol.Event) error {
		if e.UserAction == nil {
			return nil
		}
		return fn(ctx, e.UserAction.Data)
	}
}
