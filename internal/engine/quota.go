package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxBlockingRounds bounds local resolution in blocking mode.
const DefaultMaxBlockingRounds = 10

// roundQuota counts resolution rounds in blocking mode.
//
// A round is one refill of the event queue with events produced by the
// previous round, or one extra render forced by state written during a
// render. Hooks whose dependencies keep changing would otherwise loop
// forever.
type roundQuota struct {
	limit   int
	current int
}

func newRoundQuota(limit int) *roundQuota {
	return &roundQuota{limit: limit}
}

// Check consumes one round and fails once the limit is passed.
func (q *roundQuota) Check(phase string) error {
	q.current++
	if q.current > q.limit {
		return &RoundsExceededError{Phase: phase, Rounds: q.current, Limit: q.limit}
	}
	return nil
}

// Current returns the number of rounds consumed.
func (q *roundQuota) Current() int {
	return q.current
}

// RoundsExceededError is raised when blocking resolution does not settle
// within the configured number of rounds. It is logged, not returned: the
// invocation still answers with whatever was resolved and hands the rest
// back to the host.
type RoundsExceededError struct {
	Phase  string // "events" or "render"
	Rounds int
	Limit  int
}

// Error implements the error interface.
func (e *RoundsExceededError) Error() string {
	return fmt.Sprintf("blocking resolution did not settle during %s: %d rounds > %d limit",
		e.Phase, e.Rounds, e.Limit)
}

// IsRoundsExceededError reports whether err is a RoundsExceededError.
func IsRoundsExceededError(err error) bool {
	var re *RoundsExceededError
	return errors.As(err, &re)
}
