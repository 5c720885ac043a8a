package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// invocation is the render context of one Handle call. It owns the prior
// and working state and everything emitted by committed batches. It is
// never shared between Handle calls.
type invocation struct {
	id          string
	seq         int64
	ctx         context.Context
	logger      *slog.Logger
	transformer blocks.Transformer
	services    Services
	blocking    bool
	maxRounds   int
	root        Element

	prior       value.State
	priorCounts map[string]map[string]int

	// mu guards state and writes. Other-queue handlers run concurrently.
	mu     sync.Mutex
	state  value.State
	writes int

	effects   []protocol.Effect
	events    []protocol.Event
	suspended bool

	// hookCounts records the hooks each component path registered on the
	// first pass it ran in this invocation.
	hookCounts map[string]map[string]int

	cp *checkpoint
}

func (inv *invocation) read(id string) value.Slot {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	slot := inv.state.Lookup(id)
	if slot.Present && protocol.IsTombstone(slot.Raw) {
		return value.Absent()
	}
	return slot
}

// initialize stores the first value of a hook. It does not count as a write.
func (inv *invocation) initialize(id string, raw json.RawMessage) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.state[id] = raw
}

// write stores raw under id and reports whether the value changed.
func (inv *invocation) write(id string, raw json.RawMessage) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state.Lookup(id).Equal(value.Some(raw)) {
		return false
	}
	inv.state[id] = raw
	inv.writes++
	return true
}

// update applies fn to the current value of id atomically.
func (inv *invocation) update(id string, fn func(value.Slot) (json.RawMessage, error)) (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	cur := inv.state.Lookup(id)
	if cur.Present && protocol.IsTombstone(cur.Raw) {
		cur = value.Absent()
	}
	raw, err := fn(cur)
	if err != nil {
		return false, err
	}
	if cur.Equal(value.Some(raw)) {
		return false, nil
	}
	inv.state[id] = raw
	inv.writes++
	return true, nil
}

func (inv *invocation) writeCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.writes
}

// checkHookCounts enforces that a component instance registers the same
// hooks on every pass, and the same index-based hooks the prior state
// recorded for it.
func (inv *invocation) checkHookCounts(path string, counts map[string]int) error {
	cur := maps.Clone(counts)
	if cur == nil {
		cur = map[string]int{}
	}
	if first, ok := inv.hookCounts[path]; ok {
		if !maps.Equal(first, cur) {
			return hookCountError(path, first, cur, "previous pass")
		}
	} else {
		inv.hookCounts[path] = cur
	}
	if prior, ok := inv.priorCounts[path]; ok {
		persisted := make(map[string]int, len(cur))
		for ns, n := range cur {
			if persistedNamespaces[ns] {
				persisted[ns] = n
			}
		}
		if !maps.Equal(prior, persisted) {
			return hookCountError(path, prior, persisted, "prior state")
		}
	}
	return nil
}

func hookCountError(path string, want, got map[string]int, against string) error {
	return &ValidationError{
		Code: ErrCodeHookCountMismatch,
		Path: path,
		Message: "component registered " + formatCounts(got) + " but " + against +
			" has " + formatCounts(want) + "; hooks must not be called conditionally",
	}
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "no hooks"
	}
	raw, _ := value.MarshalCanonical(counts)
	return string(raw)
}

// countPriorHooks groups the index-based, non-tombstoned ids of prior by
// component path.
func countPriorHooks(prior value.State) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for id, raw := range prior {
		if protocol.IsTombstone(raw) {
			continue
		}
		p, ok := parseHookID(id)
		if !ok || p.Index < 0 || !persistedNamespaces[p.Namespace] {
			continue
		}
		counts := out[p.Path]
		if counts == nil {
			counts = make(map[string]int)
			out[p.Path] = counts
		}
		if p.Index+1 > counts[p.Namespace] {
			counts[p.Namespace] = p.Index + 1
		}
	}
	return out
}

// commit merges what a committed pass emitted.
func (inv *invocation) commit(p *pass) {
	inv.merge(p.sink)
	if len(p.suspensions) > 0 {
		inv.suspended = true
	}
}

func (inv *invocation) merge(s *sink) {
	inv.effects = append(inv.effects, s.effects...)
	inv.events = append(inv.events, s.events...)
}

// Ctx is the handle a component uses to reach its invocation. It is valid
// only while the component renders; hooks called after that fail the pass.
type Ctx struct {
	pass     *pass
	path     string
	children []Element
	done     bool
}

// Context returns the invocation context. It carries the effect sink, so
// RerenderAfter(c.Context(), d) works during rendering.
func (c *Ctx) Context() context.Context {
	return c.pass.ctx
}

// Services returns the injected service context.
func (c *Ctx) Services() Services {
	return c.pass.inv.services
}

// Children returns the children the component was created with.
func (c *Ctx) Children() []Element {
	return c.children
}

// Path returns the structural path of the component.
func (c *Ctx) Path() string {
	return c.path
}

// Blocking reports whether the invocation resolves async hooks inline.
func (c *Ctx) Blocking() bool {
	return c.pass.inv.blocking
}

// Logger returns the invocation logger annotated with the component path.
func (c *Ctx) Logger() *slog.Logger {
	return c.pass.inv.logger.With("component", c.path)
}

// register allocates the next hook id in namespace and instantiates it for
// this pass. On failure the pass is failed and ok is false.
func (c *Ctx) register(namespace, key string, h handler) (string, bool) {
	if c.done {
		c.fail(&ValidationError{
			Code:    ErrCodeInvalidElement,
			Path:    c.path,
			Message: "hook called after the component finished rendering",
		})
		return "", false
	}
	if c.pass.err != nil {
		return "", false
	}
	id, err := c.pass.ids.hookID(c.path, namespace, key)
	if err != nil {
		c.fail(err)
		return "", false
	}
	c.pass.instantiate(id, h)
	return id, true
}

func (c *Ctx) fail(err error) {
	c.pass.fail(err)
}

// Suspension records that a hook needs a host round trip before the tree
// is complete. It is a result, not an error: the pass that records it keeps
// rendering and its tree is discarded.
type Suspension struct {
	Hook      string
	RequestID string
}

func (c *Ctx) suspend(hook, requestID string) {
	c.pass.suspensions = append(c.pass.suspensions, &Suspension{Hook: hook, RequestID: requestID})
	c.pass.sink.event(protocol.Event{
		Hook:         hook,
		Async:        true,
		AsyncRequest: &protocol.AsyncRequest{RequestID: requestID},
	})
	c.pass.inv.logger.Debug("hook suspended",
		"invocation_id", c.pass.inv.id,
		"hook", hook,
		"request_id", requestID,
	)
}
