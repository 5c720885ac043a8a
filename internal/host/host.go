// Package host plays the platform side of the protocol for local use: it
// keeps session state in the store, sends requests to the engine, applies
// the returned deltas, and feeds returned events back until the session
// settles.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/store"
	"github.com/roach88/blockrt/internal/value"
)

// DefaultMaxSteps bounds how many invocations one Pump may run.
const DefaultMaxSteps = 16

// RerenderJob is the scheduler job name used for rerender effects.
const RerenderJob = "rerender"

// ErrUnknownApp is returned when a session names an app the resolver does
// not know.
var ErrUnknownApp = errors.New("unknown app")

// Resolver finds the root component of an app.
type Resolver interface {
	Lookup(name string) (*engine.Component, bool)
}

// Host drives sessions stored in a store.Store.
type Host struct {
	store    *store.Store
	apps     Resolver
	logger   *slog.Logger
	ids      engine.IDGenerator
	clock    *engine.Clock
	now      func() time.Time
	maxSteps int
	engOpts  []engine.EngineOption
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for the host and its engines.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithIDGenerator sets the invocation id generator.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(h *Host) {
		h.ids = g
	}
}

// WithNow sets the wall clock used to schedule rerender jobs.
func WithNow(now func() time.Time) Option {
	return func(h *Host) {
		h.now = now
	}
}

// WithMaxSteps bounds the invocations of one Pump.
func WithMaxSteps(n int) Option {
	return func(h *Host) {
		h.maxSteps = n
	}
}

// WithEngineOptions passes extra options to every engine the host builds.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(h *Host) {
		h.engOpts = append(h.engOpts, opts...)
	}
}

// New creates a host over st resolving apps through apps.
func New(st *store.Store, apps Resolver, opts ...Option) *Host {
	h := &Host{
		store:    st,
		apps:     apps,
		logger:   slog.Default(),
		ids:      engine.UUIDv7Generator{},
		clock:    engine.NewClock(),
		now:      time.Now,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount creates a session for app, or returns the existing one.
func (h *Host) Mount(ctx context.Context, sessionID, app string, props json.RawMessage) (store.Session, error) {
	if _, ok := h.apps.Lookup(app); !ok {
		return store.Session{}, fmt.Errorf("mount %s: %w: %q", sessionID, ErrUnknownApp, app)
	}
	return h.store.CreateSession(ctx, sessionID, app, props)
}

// Step is one invocation made on behalf of a session.
type Step struct {
	Seq      int64
	Request  *protocol.Request
	Response *protocol.Response
	Err      error
}

// Send runs one invocation with events against the stored session state,
// applies the delta, and records the transcript entry. A failed invocation
// is recorded too and leaves the state untouched.
func (h *Host) Send(ctx context.Context, sessionID string, events []protocol.Event) (Step, error) {
	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return Step{}, err
	}
	eng, err := h.engine(sess)
	if err != nil {
		return Step{}, err
	}
	state, err := h.store.LoadState(ctx, sessionID)
	if err != nil {
		return Step{}, err
	}

	req := &protocol.Request{Events: events, State: state, Props: sess.Props}
	if req.Events == nil {
		req.Events = []protocol.Event{}
	}
	rawReq, err := value.MarshalCanonical(req)
	if err != nil {
		return Step{}, fmt.Errorf("send %s: encode request: %w", sessionID, err)
	}

	resp, handleErr := eng.Handle(ctx, req)
	step := Step{Request: req, Response: resp, Err: handleErr}
	if handleErr != nil {
		step.Seq, err = h.store.AppendTranscript(ctx, sessionID, rawReq, nil, handleErr.Error())
		if err != nil {
			return step, errors.Join(handleErr, err)
		}
		return step, handleErr
	}

	if err := h.store.ApplyDelta(ctx, sessionID, resp.State); err != nil {
		return step, err
	}
	rawResp, err := value.MarshalCanonical(resp)
	if err != nil {
		return step, fmt.Errorf("send %s: encode response: %w", sessionID, err)
	}
	step.Seq, err = h.store.AppendTranscript(ctx, sessionID, rawReq, rawResp, "")
	if err != nil {
		return step, err
	}
	if err := h.scheduleRerenders(ctx, sessionID, resp.Effects); err != nil {
		return step, err
	}
	return step, nil
}

func (h *Host) engine(sess store.Session) (*engine.Engine, error) {
	root, ok := h.apps.Lookup(sess.App)
	if !ok {
		return nil, fmt.Errorf("session %s: %w: %q", sess.ID, ErrUnknownApp, sess.App)
	}
	opts := []engine.EngineOption{
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(h.ids),
		engine.WithClock(h.clock),
		engine.WithServices(engine.Services{
			KV:        h.store.KV(sess.App),
			Scheduler: h.store.Scheduler(),
		}),
	}
	return engine.New(root, append(opts, h.engOpts...)...), nil
}

func (h *Host) scheduleRerenders(ctx context.Context, sessionID string, effects []protocol.Effect) error {
	for _, eff := range effects {
		if eff.Type != protocol.EffectRerender {
			continue
		}
		data, err := json.Marshal(rerenderData{Session: sessionID})
		if err != nil {
			return err
		}
		runAt := h.now().Add(time.Duration(eff.DelayMs) * time.Millisecond)
		id, err := h.store.Scheduler().Schedule(ctx, engine.Job{Name: RerenderJob, RunAt: runAt, Data: data})
		if err != nil {
			return fmt.Errorf("schedule rerender for %s: %w", sessionID, err)
		}
		h.logger.Debug("rerender scheduled",
			"session", sessionID,
			"job_id", id,
			"delay_ms", eff.DelayMs,
		)
	}
	return nil
}

type rerenderData struct {
	Session string `json:"session"`
}
