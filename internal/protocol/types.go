package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/value"
)

// ScopeAll marks the synthetic render-all event.
const ScopeAll = "ALL"

// Request is one invocation of the engine.
type Request struct {
	Events []Event         `json:"events"`
	State  value.State     `json:"state,omitempty"`
	Props  json.RawMessage `json:"props,omitempty"`
}

// Response is the result of one invocation.
//
// Blocks is set only when a main-queue pass produced a complete tree.
type Response struct {
	State   value.State   `json:"state"`
	Effects []Effect      `json:"effects"`
	Blocks  *blocks.Block `json:"blocks,omitempty"`
	Events  []Event       `json:"events"`
}

// Event is a tagged variant; see Kind.
type Event struct {
	Hook  string `json:"hook,omitempty"`
	Scope string `json:"scope,omitempty"`

	// Async routes the event to the other queue.
	Async bool `json:"async,omitempty"`
	// Retry is set on events requeued after a rolled back batch.
	Retry bool `json:"retry,omitempty"`
	// Blocking forces exhaustive local resolution of async hooks.
	Blocking bool `json:"blocking,omitempty"`

	UserAction    *UserAction    `json:"userAction,omitempty"`
	AsyncRequest  *AsyncRequest  `json:"asyncRequest,omitempty"`
	AsyncResponse *AsyncResponse `json:"asyncResponse,omitempty"`
	RealtimeEvent *RealtimeEvent `json:"realtimeEvent,omitempty"`
}

// UserAction is a user interaction with an action handler hook.
type UserAction struct {
	ActionID string          `json:"actionId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// AsyncRequest asks the engine to run the producer of an async hook.
type AsyncRequest struct {
	RequestID string `json:"requestId"`
}

// AsyncResponse delivers the outcome of an async producer.
type AsyncResponse struct {
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *AsyncError     `json:"error,omitempty"`
}

// AsyncError is the serialised failure of an async producer.
type AsyncError struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// RealtimeEvent is a channel message or a connection status change.
type RealtimeEvent struct {
	Event  ChannelMessage `json:"event"`
	Status ChannelStatus  `json:"status,omitempty"`
}

// ChannelMessage is a payload published on a channel.
type ChannelMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ChannelStatus reports the host's connection state for a channel.
type ChannelStatus string

const (
	StatusConnected    ChannelStatus = "connected"
	StatusDisconnected ChannelStatus = "disconnected"
)

// EventKind identifies which variant an Event is.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindRenderAll
	KindUserAction
	KindAsyncRequest
	KindAsyncResponse
	KindRealtime
)

// String returns the wire-level name of the kind, used in logs.
func (k EventKind) String() string {
	switch k {
	case KindRenderAll:
		return "render_all"
	case KindUserAction:
		return "user_action"
	case KindAsyncRequest:
		return "async_request"
	case KindAsyncResponse:
		return "async_response"
	case KindRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// Kind returns the variant of e. An event with no payload and scope "ALL"
// is a render-all event; an event with more than one payload is unknown.
func (e Event) Kind() EventKind {
	kind := KindUnknown
	set := 0
	if e.UserAction != nil {
		kind = KindUserAction
		set++
	}
	if e.AsyncRequest != nil {
		kind = KindAsyncRequest
		set++
	}
	if e.AsyncResponse != nil {
		kind = KindAsyncResponse
		set++
	}
	if e.RealtimeEvent != nil {
		kind = KindRealtime
		set++
	}
	switch {
	case set == 0 && e.Scope == ScopeAll:
		return KindRenderAll
	case set == 1:
		return kind
	default:
		return KindUnknown
	}
}

// MainQueue reports whether e belongs to the main (state-mutating) queue.
func (e Event) MainQueue() bool {
	return !e.Async
}

// RenderAll returns the synthetic render-all event.
func RenderAll() Event {
	return Event{Scope: ScopeAll}
}

// WithRetry returns a copy of e flagged for retry.
func (e Event) WithRetry() Event {
	e.Retry = true
	return e
}

// EffectType names an outgoing side-effect instruction.
type EffectType string

const (
	EffectSubscribe   EffectType = "subscribe"
	EffectUnsubscribe EffectType = "unsubscribe"
	EffectRerender    EffectType = "rerender"
)

// Effect is an instruction for the host that is independent of the rendered
// tree. Effects are never persisted.
type Effect struct {
	Type    EffectType `json:"type"`
	Hook    string     `json:"hook,omitempty"`
	Channel string     `json:"channel,omitempty"`
	DelayMs int64      `json:"delayMs,omitempty"`
}

// Tombstone is the state value marking a hook that disappeared this pass.
var Tombstone = json.RawMessage(`{"__deleted":true}`)

// IsTombstone reports whether raw is the tombstone marker.
func IsTombstone(raw json.RawMessage) bool {
	if len(raw) == 0 || !bytes.Contains(raw, []byte("__deleted")) {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || len(m) != 1 {
		return false
	}
	return string(bytes.TrimSpace(m["__deleted"])) == "true"
}
