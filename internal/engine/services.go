package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/roach88/blockrt/internal/protocol"
)

// KVStore is the key-value service available to components.
type KVStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Delete(ctx context.Context, key string) error
}

// Job is a unit of deferred work handed to the Scheduler.
type Job struct {
	Name  string
	RunAt time.Time
	Data  json.RawMessage
}

// Scheduler runs jobs at a later time.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) (string, error)
	Cancel(ctx context.Context, id string) error
}

// Services is the service context passed to every component. The engine
// never intercepts or retries calls made through it.
type Services struct {
	KV        KVStore
	Scheduler Scheduler
	// Clients holds outbound API clients by name.
	Clients map[string]any
}

// Client returns the named outbound client.
func (s Services) Client(name string) (any, bool) {
	c, ok := s.Clients[name]
	return c, ok
}

// sink collects what one pass or one handler call emits. Sinks are merged
// into the invocation only when the batch that produced them commits.
type sink struct {
	effects []protocol.Effect
	events  []protocol.Event
}

func (s *sink) effect(e protocol.Effect) {
	s.effects = append(s.effects, e)
}

func (s *sink) event(e protocol.Event) {
	s.events = append(s.events, e)
}

type sinkKey struct{}

func withSink(ctx context.Context, s *sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

func sinkFrom(ctx context.Context) *sink {
	s, _ := ctx.Value(sinkKey{}).(*sink)
	return s
}

// RerenderAfter asks the host to run the tree again after d. It may be
// called during rendering (with Ctx.Context) or from any handler; outside
// an engine invocation it does nothing.
func RerenderAfter(ctx context.Context, d time.Duration) {
	s := sinkFrom(ctx)
	if s == nil {
		return
	}
	s.effect(protocol.Effect{Type: protocol.EffectRerender, DelayMs: d.Milliseconds()})
}
