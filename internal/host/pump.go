package host

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
)

// Outcome summarizes a Pump.
type Outcome struct {
	Steps []Step
	// Blocks is the most recent complete tree.
	Blocks *blocks.Block
	// Effects collects every effect in the order returned.
	Effects []protocol.Effect
	// Pending holds events still unresolved when the step bound was hit.
	Pending []protocol.Event
	Settled bool
}

// Pump sends events and then keeps sending whatever each response hands
// back (async requests and responses, requeued events) until nothing is
// left or the step bound is reached. Subscribe and unsubscribe effects are
// acknowledged with a connection status event, the way a platform would
// once the subscription is live.
func (h *Host) Pump(ctx context.Context, sessionID string, events []protocol.Event) (*Outcome, error) {
	out := &Outcome{}
	next := events
	for i := 0; i < h.maxSteps; i++ {
		step, err := h.Send(ctx, sessionID, next)
		out.Steps = append(out.Steps, step)
		if err != nil {
			return out, err
		}
		resp := step.Response
		if resp.Blocks != nil {
			out.Blocks = resp.Blocks
		}
		out.Effects = append(out.Effects, resp.Effects...)

		next = append(slices.Clone(resp.Events), acknowledgements(resp.Effects)...)
		if len(next) == 0 {
			out.Settled = true
			return out, nil
		}
	}
	out.Pending = next
	h.logger.Warn("session did not settle",
		"session", sessionID,
		"steps", h.maxSteps,
		"pending", len(next),
	)
	return out, nil
}

func acknowledgements(effects []protocol.Effect) []protocol.Event {
	var out []protocol.Event
	for _, eff := range effects {
		var status protocol.ChannelStatus
		switch eff.Type {
		case protocol.EffectSubscribe:
			status = protocol.StatusConnected
		case protocol.EffectUnsubscribe:
			status = protocol.StatusDisconnected
		default:
			continue
		}
		out = append(out, protocol.Event{
			Hook: eff.Hook,
			RealtimeEvent: &protocol.RealtimeEvent{
				Event:  protocol.ChannelMessage{Channel: eff.Channel},
				Status: status,
			},
		})
	}
	return out
}

// Publish delivers a message to every channel hook of the session that is
// subscribed to channel, then pumps the result.
func (h *Host) Publish(ctx context.Context, sessionID, channel string, data json.RawMessage) (*Outcome, error) {
	state, err := h.store.LoadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var events []protocol.Event
	for id, raw := range state {
		if engine.Namespace(id) != "channel" {
			continue
		}
		var st struct {
			Channel    string `json:"channel"`
			Subscribed bool   `json:"subscribed"`
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("publish: decode %s: %w", id, err)
		}
		if st.Channel != channel || !st.Subscribed {
			continue
		}
		events = append(events, protocol.Event{
			Hook:          id,
			RealtimeEvent: &protocol.RealtimeEvent{Event: protocol.ChannelMessage{Channel: channel, Data: data}},
		})
	}
	if len(events) == 0 {
		h.logger.Debug("publish with no subscribers",
			"session", sessionID,
			"channel", channel,
		)
		return &Outcome{Settled: true}, nil
	}
	slices.SortFunc(events, func(a, b protocol.Event) int { return strings.Compare(a.Hook, b.Hook) })
	return h.Pump(ctx, sessionID, events)
}

// RunDue runs every due rerender job: each one pumps a render-all event for
// its session. It returns the outcome of each job run, in run-time order.
func (h *Host) RunDue(ctx context.Context, now time.Time) ([]*Outcome, error) {
	sched := h.store.Scheduler()
	jobs, err := sched.Due(ctx, now)
	if err != nil {
		return nil, err
	}
	var outs []*Outcome
	for _, job := range jobs {
		if job.Name != RerenderJob {
			continue
		}
		var data rerenderData
		if err := json.Unmarshal(job.Data, &data); err != nil {
			return outs, fmt.Errorf("job %s: %w", job.ID, err)
		}
		if err := sched.Complete(ctx, job.ID); err != nil {
			return outs, err
		}
		out, err := h.Pump(ctx, data.Session, []protocol.Event{protocol.RenderAll()})
		if out != nil {
			outs = append(outs, out)
		}
		if err != nil {
			return outs, fmt.Errorf("job %s: %w", job.ID, err)
		}
	}
	return outs, nil
}
