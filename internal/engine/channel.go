package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

var channelName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ChannelOptions configures UseChannel. Callbacks are optional.
type ChannelOptions struct {
	OnMessage      func(ctx context.Context, data json.RawMessage) error
	OnSubscribed   func(ctx context.Context) error
	OnUnsubscribed func(ctx context.Context) error
}

// channelState is the persisted form of a channel hook.
type channelState struct {
	Channel    string `json:"channel"`
	Subscribed bool   `json:"subscribed"`
	Connected  bool   `json:"connected"`
}

// Channel is the render-time handle of a channel hook. Subscribe and
// Unsubscribe declare the desired subscription for this pass; the last call
// wins and the host is told only when the desired state changes.
type Channel struct {
	h *channelHandle
}

type channelHandle struct {
	id      string
	name    string
	stored  channelState
	desired bool
}

// Subscribe declares that the channel should be subscribed.
func (ch Channel) Subscribe() {
	if ch.h != nil {
		ch.h.desired = true
	}
}

// Unsubscribe declares that the channel should not be subscribed.
func (ch Channel) Unsubscribe() {
	if ch.h != nil {
		ch.h.desired = false
	}
}

// Subscribed reports the persisted desired state at the start of the pass.
func (ch Channel) Subscribed() bool {
	return ch.h != nil && ch.h.stored.Subscribed
}

// Connected reports whether the host confirmed the subscription.
func (ch Channel) Connected() bool {
	return ch.h != nil && ch.h.stored.Connected
}

// UseChannel registers a subscription to a named realtime channel. Names
// must match [A-Za-z0-9_]+ and be unique within the tree.
func UseChannel(c *Ctx, name string, opts ChannelOptions) Channel {
	inv := c.pass.inv
	var id string
	id, ok := c.register(nsChannel, "", func(ctx context.Context, e protocol.Event) error {
		return handleChannel(ctx, inv, id, name, opts, e)
	})
	if !ok {
		return Channel{}
	}

	if !channelName.MatchString(name) {
		c.fail(&ValidationError{
			Code:    ErrCodeInvalidChannel,
			Path:    id,
			Message: fmt.Sprintf("channel name %q must be non-empty and contain only letters, digits and underscores", name),
		})
		return Channel{}
	}
	if other, dup := c.pass.channels[name]; dup {
		c.fail(&ValidationError{
			Code:    ErrCodeDuplicateChannel,
			Path:    id,
			Message: fmt.Sprintf("channel %q is already used by %s", name, other),
		})
		return Channel{}
	}
	c.pass.channels[name] = id

	st, present, err := readChannel(inv, id)
	if err != nil {
		c.fail(&HandlerError{Hook: id, Err: err})
		return Channel{}
	}
	if !present || st.Channel != name {
		if present && st.Subscribed {
			c.pass.sink.effect(protocol.Effect{Type: protocol.EffectUnsubscribe, Hook: id, Channel: st.Channel})
		}
		st = channelState{Channel: name}
		raw, err := value.MarshalCanonical(st)
		if err != nil {
			c.fail(&HandlerError{Hook: id, Err: err})
			return Channel{}
		}
		inv.initialize(id, raw)
	}

	h := &channelHandle{id: id, name: name, stored: st, desired: st.Subscribed}
	c.pass.subs = append(c.pass.subs, h)
	return Channel{h: h}
}

func readChannel(inv *invocation, id string) (channelState, bool, error) {
	slot := inv.read(id)
	if !slot.Present {
		return channelState{}, false, nil
	}
	var st channelState
	if err := json.Unmarshal(slot.Raw, &st); err != nil {
		return channelState{}, false, fmt.Errorf("decode channel state: %w", err)
	}
	return st, true, nil
}

// reconcileChannels persists each channel's desired state and emits a
// subscribe or unsubscribe effect where it changed.
func (p *pass) reconcileChannels() {
	for _, h := range p.subs {
		if h.desired == h.stored.Subscribed {
			continue
		}
		next := h.stored
		next.Subscribed = h.desired
		if !h.desired {
			next.Connected = false
		}
		raw, err := value.MarshalCanonical(next)
		if err != nil {
			p.fail(&HandlerError{Hook: h.id, Err: err})
			return
		}
		p.inv.write(h.id, raw)

		typ := protocol.EffectUnsubscribe
		if h.desired {
			typ = protocol.EffectSubscribe
		}
		p.sink.effect(protocol.Effect{Type: typ, Hook: h.id, Channel: h.name})
	}
}

func handleChannel(ctx context.Context, inv *invocation, id, name string, opts ChannelOptions, e protocol.Event) error {
	rt := e.RealtimeEvent
	if rt == nil {
		return nil
	}
	if rt.Event.Channel != "" && rt.Event.Channel != name {
		inv.logger.Debug("realtime event for another channel ignored",
			"invocation_id", inv.id,
			"hook", id,
			"channel", rt.Event.Channel,
		)
		return nil
	}

	switch rt.Status {
	case protocol.StatusConnected, protocol.StatusDisconnected:
		connected := rt.Status == protocol.StatusConnected
		_, err := inv.update(id, func(cur value.Slot) (json.RawMessage, error) {
			var st channelState
			if cur.Present {
				if err := json.Unmarshal(cur.Raw, &st); err != nil {
					return nil, fmt.Errorf("decode channel state: %w", err)
				}
			}
			st.Channel = name
			st.Connected = connected
			return value.MarshalCanonical(st)
		})
		if err != nil {
			return err
		}
		if connected && opts.OnSubscribed != nil {
			return opts.OnSubscribed(ctx)
		}
		if !connected && opts.OnUnsubscribed != nil {
			return opts.OnUnsubscribed(ctx)
		}
		return nil
	}

	if opts.OnMessage != nil {
		return opts.OnMessage(ctx, rt.Event.Data)
	}
	return nil
}

// unsubscribeOnRemoval returns the effect that releases a removed channel
// hook's subscription.
func unsubscribeOnRemoval(id string, raw json.RawMessage) (protocol.Effect, bool) {
	p, ok := parseHookID(id)
	if !ok || p.Namespace != nsChannel {
		return protocol.Effect{}, false
	}
	var st channelState
	if err := json.Unmarshal(raw, &st); err != nil || !st.Subscribed {
		return protocol.Effect{}, false
	}
	return protocol.Effect{Type: protocol.EffectUnsubscribe, Hook: id, Channel: st.Channel}, true
}
