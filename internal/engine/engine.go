package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// Engine renders one root component per request.
//
// An Engine holds configuration only. Every Handle call builds its own
// invocation, so Handle is safe for concurrent use.
type Engine struct {
	root        *Component
	logger      *slog.Logger
	transformer blocks.Transformer
	services    Services
	ids         IDGenerator
	clock       *Clock
	maxRounds   int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTransformer sets the block transformer. Default: blocks.NewCatalog().
func WithTransformer(t blocks.Transformer) EngineOption {
	return func(e *Engine) {
		e.transformer = t
	}
}

// WithServices sets the service context passed to components.
func WithServices(s Services) EngineOption {
	return func(e *Engine) {
		e.services = s
	}
}

// WithIDGenerator sets the invocation id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithMaxBlockingRounds bounds local resolution in blocking mode.
//
// Default: 10 rounds (DefaultMaxBlockingRounds)
func WithMaxBlockingRounds(n int) EngineOption {
	return func(e *Engine) {
		e.maxRounds = n
	}
}

// WithClock sets the logical clock that numbers invocations.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine rendering root.
func New(root *Component, opts ...EngineOption) *Engine {
	e := &Engine{
		root:        root,
		logger:      slog.Default(),
		transformer: blocks.NewCatalog(),
		ids:         UUIDv7Generator{},
		clock:       NewClock(),
		maxRounds:   DefaultMaxBlockingRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle runs one invocation.
//
// Validation errors are returned as *ValidationError. A handler failure in
// the first batch is returned as *HandlerError; later failures roll back to
// the last checkpoint and come back as requeued events with retry set.
func (e *Engine) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req == nil {
		return nil, &ValidationError{Code: ErrCodeInvalidRequest, Message: "request is nil"}
	}
	if e.root == nil {
		return nil, &ValidationError{Code: ErrCodeInvalidElement, Message: "engine has no root component"}
	}
	for i, ev := range req.Events {
		if err := validateEvent(ev); err != nil {
			err.Path = fmt.Sprintf("events[%d]", i)
			return nil, err
		}
	}
	props, err := decodeProps(req.Props)
	if err != nil {
		return nil, err
	}

	prior := req.State.Clone()
	inv := &invocation{
		id:          e.ids.Generate(),
		seq:         e.clock.Next(),
		ctx:         ctx,
		logger:      e.logger,
		transformer: e.transformer,
		services:    e.services,
		blocking:    slices.ContainsFunc(req.Events, func(ev protocol.Event) bool { return ev.Blocking }),
		maxRounds:   e.maxRounds,
		root:        e.root.New(props),
		prior:       prior,
		priorCounts: countPriorHooks(prior),
		state:       prior.Clone(),
		hookCounts:  make(map[string]map[string]int),
	}

	inv.logger.Info("invocation starting",
		"invocation_id", inv.id,
		"seq", inv.seq,
		"events", len(req.Events),
		"blocking", inv.blocking,
	)

	resp, err := inv.run(req.Events)
	if err != nil {
		inv.logger.Error("invocation failed",
			"invocation_id", inv.id,
			"error", err,
		)
		return nil, err
	}

	inv.logger.Info("invocation complete",
		"invocation_id", inv.id,
		"delta", len(resp.State),
		"effects", len(resp.Effects),
		"events", len(resp.Events),
		"blocks", resp.Blocks != nil,
	)
	return resp, nil
}

func validateEvent(ev protocol.Event) *ValidationError {
	switch ev.Kind() {
	case protocol.KindUnknown:
		return &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: `event must carry exactly one of userAction, asyncRequest, asyncResponse, realtimeEvent, or scope "ALL"`,
		}
	case protocol.KindRenderAll:
		return nil
	}
	if ev.Hook == "" {
		return &ValidationError{Code: ErrCodeInvalidRequest, Message: "event has no target hook"}
	}
	if ev.AsyncRequest != nil && ev.AsyncRequest.RequestID == "" {
		return &ValidationError{Code: ErrCodeInvalidRequest, Message: "async request without request id"}
	}
	if ev.AsyncResponse != nil && ev.AsyncResponse.RequestID == "" {
		return &ValidationError{Code: ErrCodeInvalidRequest, Message: "async response without request id"}
	}
	return nil
}

func decodeProps(raw json.RawMessage) (Props, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Props{}, nil
	}
	var props Props
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, &ValidationError{Code: ErrCodeInvalidRequest, Path: "props", Message: "props must be a JSON object: " + err.Error()}
	}
	return props, nil
}

// run drives the batch state machine and builds the response.
func (inv *invocation) run(incoming []protocol.Event) (*protocol.Response, error) {
	events := incoming
	if len(events) == 0 {
		events = []protocol.Event{protocol.RenderAll()}
	}

	// A main-oriented invocation applies main-queue events and renders the
	// tree; an other-oriented one only runs other-queue handlers. Events of
	// the opposite queue go back to the host untouched unless blocking mode
	// asked for exhaustive resolution.
	mainOriented := len(incoming) == 0 || slices.ContainsFunc(incoming, protocol.Event.MainQueue)
	var work, deferred []protocol.Event
	for _, ev := range events {
		if inv.blocking || ev.MainQueue() == mainOriented {
			work = append(work, ev)
		} else {
			deferred = append(deferred, ev)
		}
	}

	queue := newEventQueue(work)
	quota := newRoundQuota(inv.maxRounds)
	var (
		requeued []protocol.Event
		last     *pass
		reusable bool
		stopped  bool
	)

	for !stopped {
		for !stopped {
			b, ok := queue.Next()
			if !ok {
				break
			}
			inv.logger.Debug("applying batch",
				"invocation_id", inv.id,
				"batch", b.kind(),
				"size", len(b.events),
			)

			p, err := inv.applyBatch(b)
			if err != nil {
				if IsValidationError(err) || !inv.hasCheckpoint() {
					return nil, err
				}
				remaining := append(slices.Clone(b.events), queue.Drain()...)
				for _, ev := range remaining {
					requeued = append(requeued, ev.WithRetry())
				}
				inv.rollback()
				inv.logger.Warn("batch failed, rolled back to checkpoint",
					"invocation_id", inv.id,
					"batch", b.kind(),
					"hook", b.events[0].Hook,
					"requeued", len(requeued),
					"error", err,
				)
				stopped = true
				reusable = false
				break
			}

			last = p
			reusable = b.main && b.events[0].Kind() == protocol.KindRenderAll && p.clean()
			inv.saveCheckpoint()
		}
		if stopped || !inv.blocking {
			break
		}

		produced := inv.takeEvents()
		if len(produced) == 0 {
			break
		}
		if err := quota.Check("events"); err != nil {
			inv.logger.Error("blocking resolution exhausted",
				"invocation_id", inv.id,
				"unresolved", len(produced),
				"error", err,
			)
			inv.events = produced
			break
		}
		queue.Enqueue(produced...)
	}

	final := last
	var tree *blocks.Block
	if mainOriented {
		if reusable && last != nil {
			tree = last.tree
		} else {
			p, err := inv.finalRender(quota)
			switch {
			case err == nil:
				final, tree = p, p.tree
			case IsValidationError(err) || !inv.hasCheckpoint():
				return nil, err
			default:
				// Committed batches stand; the host renders again later.
				inv.rollback()
				if len(requeued) == 0 {
					requeued = append(requeued, protocol.RenderAll().WithRetry())
				}
				inv.logger.Warn("final render failed, rolled back to checkpoint",
					"invocation_id", inv.id,
					"error", err,
				)
			}
		}
	}
	if final == nil {
		p, err := inv.render()
		if err != nil {
			return nil, err
		}
		final = p
	}
	if inv.suspended || !mainOriented {
		tree = nil
	}

	delta, removed := inv.diff(final)
	resp := &protocol.Response{
		State:   delta,
		Effects: collapseRerenders(append(slices.Clone(inv.effects), removed...)),
		Blocks:  tree,
		Events:  make([]protocol.Event, 0, len(inv.events)+len(requeued)+len(deferred)),
	}
	resp.Events = append(resp.Events, inv.events...)
	resp.Events = append(resp.Events, requeued...)
	resp.Events = append(resp.Events, deferred...)
	return resp, nil
}

// applyBatch reloads the hooks and applies one batch. Main-queue batches
// commit the reload pass and the handler's writes. Other-queue batches run
// their handlers concurrently and keep only what the handlers emitted.
func (inv *invocation) applyBatch(b batch) (*pass, error) {
	before := inv.snapshotState()
	p, err := inv.render()
	if err != nil {
		return nil, err
	}

	if b.main {
		inv.commit(p)
		ev := b.events[0]
		if ev.Kind() == protocol.KindRenderAll {
			return p, nil
		}
		s := &sink{}
		if err := p.dispatch(ev, s); err != nil {
			return nil, err
		}
		inv.merge(s)
		return p, nil
	}

	sinks := make([]*sink, len(b.events))
	errs := make([]error, len(b.events))
	var g errgroup.Group
	for i, ev := range b.events {
		i, ev := i, ev
		sinks[i] = &sink{}
		g.Go(func() error {
			errs[i] = p.dispatch(ev, sinks[i])
			return nil
		})
	}
	_ = g.Wait()
	inv.restoreState(before)

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, s := range sinks {
		inv.merge(s)
	}
	return p, nil
}

// finalRender builds the output tree. In blocking mode it renders again
// while a pass writes state after reading it, up to the round quota.
func (inv *invocation) finalRender(quota *roundQuota) (*pass, error) {
	for {
		p, err := inv.render()
		if err != nil {
			return nil, err
		}
		inv.commit(p)
		if !inv.blocking || p.clean() {
			return p, nil
		}
		if err := quota.Check("render"); err != nil {
			inv.logger.Error("blocking render did not settle",
				"invocation_id", inv.id,
				"error", err,
			)
			return p, nil
		}
	}
}

// ApplyDelta returns a copy of state with delta applied; tombstones delete
// their entry. Hosts use it to carry state between invocations.
func ApplyDelta(state, delta value.State) value.State {
	out := state.Clone()
	for id, raw := range delta {
		if protocol.IsTombstone(raw) {
			delete(out, id)
			continue
		}
		out[id] = raw
	}
	return out
}
