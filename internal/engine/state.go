package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/blockrt/internal/value"
)

// Hook namespaces. Only the persisted ones take part in the cross
// invocation hook count check; action hooks carry no state.
const (
	nsState   = "state"
	nsAsync   = "async"
	nsChannel = "channel"
	nsAction  = "action"
)

var persistedNamespaces = map[string]bool{
	nsState:   true,
	nsAsync:   true,
	nsChannel: true,
}

var errDetachedSetter = errors.New("setter is not bound to a rendered hook")

// Setter updates a stored value. It is safe to call from any handler of the
// invocation that rendered it; writes made by other-queue handlers are
// discarded when their batch ends.
type Setter[T any] struct {
	inv *invocation
	id  string
}

// ID returns the hook id the setter writes to.
func (s Setter[T]) ID() string {
	return s.id
}

// Set stores v. Storing a value equal to the current one is a no-op.
func (s Setter[T]) Set(v T) error {
	if s.inv == nil {
		return errDetachedSetter
	}
	raw, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("state %s: %w", s.id, err)
	}
	s.inv.write(s.id, raw)
	return nil
}

// Update replaces the value with fn applied to the current one.
func (s Setter[T]) Update(fn func(prev T) T) error {
	if s.inv == nil {
		return errDetachedSetter
	}
	_, err := s.inv.update(s.id, func(cur value.Slot) (json.RawMessage, error) {
		var prev T
		if cur.Present {
			if err := json.Unmarshal(cur.Raw, &prev); err != nil {
				return nil, fmt.Errorf("state %s: decode: %w", s.id, err)
			}
		}
		raw, err := value.MarshalCanonical(fn(prev))
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", s.id, err)
		}
		return raw, nil
	})
	return err
}

// UseState registers a stored value initialised to initial on first
// appearance and returns its current value with a setter.
func UseState[T any](c *Ctx, initial T) (T, Setter[T]) {
	id, ok := c.register(nsState, "", nil)
	if !ok {
		return initial, Setter[T]{}
	}
	inv := c.pass.inv
	setter := Setter[T]{inv: inv, id: id}

	slot := inv.read(id)
	if !slot.Present {
		raw, err := value.MarshalCanonical(initial)
		if err != nil {
			c.fail(&HandlerError{Hook: id, Err: err})
			return initial, setter
		}
		inv.initialize(id, raw)
		return initial, setter
	}

	var v T
	if err := json.Unmarshal(slot.Raw, &v); err != nil {
		c.fail(&HandlerError{Hook: id, Err: fmt.Errorf("decode state: %w", err)})
		return initial, setter
	}
	return v, setter
}
