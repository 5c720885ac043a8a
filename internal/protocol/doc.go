// Package protocol defines the wire format exchanged between the host
// platform and the render engine.
//
// A request carries the events to apply, the state map returned by the
// previous response, and the root component props:
//
//	{"events": [...], "state": {"<hook id>": <json>}, "props": <json>}
//
// A response carries the state delta, side-effect instructions, an optional
// rendered block tree, and events the host must deliver back later:
//
//	{"state": {...}, "effects": [...], "blocks": {...}, "events": [...]}
//
// Events are a tagged variant. Exactly one payload field is set per event,
// except for the synthetic render-all event which has only scope "ALL".
// Inbound requests can be checked against the embedded CUE schema with
// Validate before they reach the engine.
package protocol
