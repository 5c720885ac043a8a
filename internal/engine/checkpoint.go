package engine

import (
	"slices"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// checkpoint is the invocation as of the last successful batch.
type checkpoint struct {
	state     value.State
	effects   []protocol.Effect
	events    []protocol.Event
	suspended bool
}

// saveCheckpoint records the current invocation as the rollback target.
func (inv *invocation) saveCheckpoint() {
	inv.cp = &checkpoint{
		state:     inv.snapshotState(),
		effects:   slices.Clone(inv.effects),
		events:    slices.Clone(inv.events),
		suspended: inv.suspended,
	}
}

func (inv *invocation) hasCheckpoint() bool {
	return inv.cp != nil
}

// rollback discards everything since the last checkpoint.
func (inv *invocation) rollback() {
	inv.restoreState(inv.cp.state)
	inv.effects = slices.Clone(inv.cp.effects)
	inv.events = slices.Clone(inv.cp.events)
	inv.suspended = inv.cp.suspended
}

func (inv *invocation) snapshotState() value.State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state.Clone()
}

func (inv *invocation) restoreState(s value.State) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.state = s.Clone()
}

// takeEvents removes the events produced so far, so blocking resolution can
// apply them locally.
func (inv *invocation) takeEvents() []protocol.Event {
	out := inv.events
	inv.events = nil
	if inv.cp != nil {
		inv.cp.events = nil
	}
	return out
}
