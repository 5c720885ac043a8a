package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// LoadState is the phase of an async hook.
type LoadState string

const (
	Loading LoadState = "loading"
	Loaded  LoadState = "loaded"
	Failed  LoadState = "error"
)

// AsyncResult is what UseAsync returns.
type AsyncResult[T any] struct {
	State LoadState
	Data  T
	Error *protocol.AsyncError
}

// Ready reports whether the data was loaded.
func (r AsyncResult[T]) Ready() bool {
	return r.State == Loaded
}

// AsyncOptions configures UseAsync.
type AsyncOptions[T any] struct {
	// Depends is the dependency value. The producer runs again whenever it
	// changes; it must be JSON-serialisable.
	Depends any

	// OnComplete runs after a result or failure is applied.
	OnComplete func(ctx context.Context, r AsyncResult[T]) error
}

// asyncState is the persisted form of an async hook.
type asyncState struct {
	LoadState LoadState            `json:"load_state"`
	Data      json.RawMessage      `json:"data"`
	Error     *protocol.AsyncError `json:"error"`
	Depends   json.RawMessage      `json:"depends"`
}

func (s asyncState) marshal() (json.RawMessage, error) {
	if s.Data == nil {
		s.Data = json.RawMessage("null")
	}
	if s.Depends == nil {
		s.Depends = json.RawMessage("null")
	}
	return value.MarshalCanonical(s)
}

// requestID correlates an async request with the dependency it was issued
// for.
func requestID(hook string, depends json.RawMessage) string {
	return hook + "-" + string(depends)
}

// UseAsync registers an async result. On first appearance, or whenever
// Depends changes, the hook moves to loading and suspends with an async
// request for the host. In blocking mode the producer runs inline instead.
// A response whose request id no longer matches the recorded dependency is
// ignored.
func UseAsync[T any](c *Ctx, produce func(ctx context.Context) (T, error), opts AsyncOptions[T]) AsyncResult[T] {
	var result AsyncResult[T]
	result.State = Loading

	inv := c.pass.inv
	var id string
	id, ok := c.register(nsAsync, "", func(ctx context.Context, e protocol.Event) error {
		return handleAsync(ctx, inv, id, produce, opts, e)
	})
	if !ok {
		return result
	}

	depends, err := value.MarshalCanonical(opts.Depends)
	if err != nil {
		c.fail(&HandlerError{Hook: id, Err: fmt.Errorf("dependency: %w", err)})
		return result
	}

	st, present, err := readAsync(inv, id)
	if err != nil {
		c.fail(&HandlerError{Hook: id, Err: err})
		return result
	}

	rid := requestID(id, depends)
	if present && value.Equal(st.Depends, depends) {
		// A load already in flight is resolved inline only in blocking mode.
		if !inv.blocking || st.LoadState != Loading {
			return decodeResult[T](c, id, st)
		}
	} else {
		loading := asyncState{LoadState: Loading, Depends: depends}
		raw, err := loading.marshal()
		if err != nil {
			c.fail(&HandlerError{Hook: id, Err: err})
			return result
		}
		if present {
			inv.write(id, raw)
		} else {
			inv.initialize(id, raw)
		}
		if !inv.blocking {
			c.suspend(id, rid)
			return result
		}
	}

	data, perr := runProducer(c.Context(), produce)
	if err := applyAsync(c.Context(), inv, id, rid, data, perr, opts); err != nil {
		c.fail(&HandlerError{Hook: id, Err: err})
		return result
	}
	st, _, err = readAsync(inv, id)
	if err != nil {
		c.fail(&HandlerError{Hook: id, Err: err})
		return result
	}
	return decodeResult[T](c, id, st)
}

func readAsync(inv *invocation, id string) (asyncState, bool, error) {
	slot := inv.read(id)
	if !slot.Present {
		return asyncState{}, false, nil
	}
	var st asyncState
	if err := json.Unmarshal(slot.Raw, &st); err != nil {
		return asyncState{}, false, fmt.Errorf("decode async state: %w", err)
	}
	return st, true, nil
}

func decodeResult[T any](c *Ctx, id string, st asyncState) AsyncResult[T] {
	r := AsyncResult[T]{State: st.LoadState, Error: st.Error}
	if len(st.Data) > 0 {
		if err := json.Unmarshal(st.Data, &r.Data); err != nil {
			c.fail(&HandlerError{Hook: id, Err: fmt.Errorf("decode async data: %w", err)})
		}
	}
	return r
}

// runProducer calls produce and marshals its result. A panicking producer
// is reported as a failed load.
func runProducer[T any](ctx context.Context, produce func(context.Context) (T, error)) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	v, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(v)
}

// applyAsync stores a producer outcome and runs the completion callback.
func applyAsync[T any](ctx context.Context, inv *invocation, id, rid string, data json.RawMessage, perr error, opts AsyncOptions[T]) error {
	st, present, err := readAsync(inv, id)
	if err != nil {
		return err
	}
	if !present || requestID(id, st.Depends) != rid {
		inv.logger.Debug("stale async response ignored", "invocation_id", inv.id, "hook", id, "request_id", rid)
		return nil
	}

	next := asyncState{Depends: st.Depends}
	switch f, ok := perr.(asyncFailure); {
	case ok:
		next.LoadState = Failed
		next.Error = f.AsyncError
	case perr != nil:
		next.LoadState = Failed
		next.Error = &protocol.AsyncError{Message: perr.Error()}
	default:
		next.LoadState = Loaded
		next.Data = data
	}
	raw, err := next.marshal()
	if err != nil {
		return err
	}
	inv.write(id, raw)

	if opts.OnComplete == nil {
		return nil
	}
	r := AsyncResult[T]{State: next.LoadState, Error: next.Error}
	if len(next.Data) > 0 {
		if err := json.Unmarshal(next.Data, &r.Data); err != nil {
			return fmt.Errorf("decode async data: %w", err)
		}
	}
	return opts.OnComplete(ctx, r)
}

// handleAsync serves the two async events. A request runs the producer and
// emits the response as a main-queue event; a response is applied to state.
func handleAsync[T any](ctx context.Context, inv *invocation, id string, produce func(context.Context) (T, error), opts AsyncOptions[T], e protocol.Event) error {
	switch {
	case e.AsyncRequest != nil:
		st, present, err := readAsync(inv, id)
		if err != nil {
			return err
		}
		rid := e.AsyncRequest.RequestID
		if !present || requestID(id, st.Depends) != rid {
			inv.logger.Debug("stale async request ignored", "invocation_id", inv.id, "hook", id, "request_id", rid)
			return nil
		}
		resp := &protocol.AsyncResponse{RequestID: rid}
		data, perr := runProducer(ctx, produce)
		if perr != nil {
			resp.Error = &protocol.AsyncError{Message: perr.Error()}
		} else {
			resp.Data = data
		}
		if s := sinkFrom(ctx); s != nil {
			s.event(protocol.Event{Hook: id, AsyncResponse: resp})
		}
		return nil

	case e.AsyncResponse != nil:
		resp := e.AsyncResponse
		var perr error
		if resp.Error != nil {
			perr = asyncFailure{resp.Error}
		}
		data := resp.Data
		if data == nil {
			data = json.RawMessage("null")
		}
		return applyAsync(ctx, inv, id, resp.RequestID, data, perr, opts)
	}
	return nil
}

// asyncFailure carries a serialised producer error through applyAsync
// without losing its details.
type asyncFailure struct {
	*protocol.AsyncError
}

func (f asyncFailure) Error() string {
	return f.Message
}
