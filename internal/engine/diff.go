package engine

import (
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// diff computes the state delta of the invocation against the hooks
// instantiated by the final pass:
//   - instantiated hooks whose value differs from the prior state (absent
//     and null are different),
//   - a tombstone for every prior hook that was not instantiated,
//   - nothing for prior tombstones that stayed gone, which purges them.
//
// Removed channel hooks that were subscribed also yield an unsubscribe.
func (inv *invocation) diff(final *pass) (value.State, []protocol.Effect) {
	delta := value.State{}
	var effects []protocol.Effect

	state := inv.snapshotState()
	for _, id := range final.instantiated {
		cur := state.Lookup(id)
		if !cur.Present {
			continue
		}
		if !cur.Equal(inv.prior.Lookup(id)) {
			delta[id] = cur.Raw
		}
	}

	for _, id := range value.SortedKeys(inv.prior) {
		if final.active[id] {
			continue
		}
		raw := inv.prior[id]
		if protocol.IsTombstone(raw) {
			continue
		}
		delta[id] = protocol.Tombstone
		if eff, ok := unsubscribeOnRemoval(id, raw); ok {
			effects = append(effects, eff)
		}
	}
	return delta, effects
}

// collapseRerenders merges rerender requests into the first one, keeping
// the shortest delay. Other effects keep their order.
func collapseRerenders(effects []protocol.Effect) []protocol.Effect {
	out := make([]protocol.Effect, 0, len(effects))
	at := -1
	for _, e := range effects {
		if e.Type != protocol.EffectRerender {
			out = append(out, e)
			continue
		}
		if at < 0 {
			at = len(out)
			out = append(out, e)
			continue
		}
		if e.DelayMs < out[at].DelayMs {
			out[at].DelayMs = e.DelayMs
		}
	}
	return out
}
