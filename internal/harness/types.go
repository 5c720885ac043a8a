package harness

import (
	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// TraceEvent is one invocation made while running a scenario.
type TraceEvent struct {
	Seq int64 `json:"seq"`
	// Events are the request events.
	Events []protocol.Event `json:"events"`
	// Delta is the state delta of the response.
	Delta   value.State       `json:"delta,omitempty"`
	Effects []protocol.Effect `json:"effects,omitempty"`
	// Emitted are the events the response handed back to the host.
	Emitted []protocol.Event `json:"emitted,omitempty"`
	// Texts are the texts of the response tree, when it has one.
	Texts []string `json:"texts,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every invocation in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final hook state of the session.
	State value.State `json:"state,omitempty"`

	// Blocks is the most recent complete tree.
	Blocks *blocks.Block `json:"blocks,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  value.State{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
