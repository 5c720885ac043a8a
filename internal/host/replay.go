package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// Mismatch is a transcript entry that did not replay identically.
type Mismatch struct {
	Seq    int64  `json:"seq"`
	Reason string `json:"reason"`
}

// Replay is the outcome of replaying one session transcript.
type Replay struct {
	Session    string     `json:"session"`
	App        string     `json:"app"`
	Entries    int        `json:"entries"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Deterministic reports whether every entry replayed identically.
func (r *Replay) Deterministic() bool {
	return len(r.Mismatches) == 0
}

// Replay re-runs the recorded transcript of a session. Starting from empty
// state it rebuilds the state each request should have carried by applying
// the recorded deltas, runs every recorded request again, and reports
// entries whose state, response or failure differ from the recording.
func (h *Host) Replay(ctx context.Context, sessionID string) (*Replay, error) {
	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := h.store.ReadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	eng, err := h.engine(sess)
	if err != nil {
		return nil, err
	}

	r := &Replay{Session: sess.ID, App: sess.App, Entries: len(entries)}
	state := value.State{}
	for _, entry := range entries {
		mismatch := func(format string, args ...any) {
			r.Mismatches = append(r.Mismatches, Mismatch{Seq: entry.Seq, Reason: fmt.Sprintf(format, args...)})
		}

		var req protocol.Request
		if err := json.Unmarshal(entry.Request, &req); err != nil {
			return nil, fmt.Errorf("replay %s: entry %d: decode request: %w", sessionID, entry.Seq, err)
		}
		if !stateEqual(state, req.State) {
			mismatch("recorded state differs from the state rebuilt from earlier deltas")
		}

		resp, handleErr := eng.Handle(ctx, &req)
		switch {
		case entry.Response == nil && handleErr == nil:
			mismatch("recorded failure %q, replay succeeded", entry.Error)
		case entry.Response == nil:
			if handleErr.Error() != entry.Error {
				mismatch("recorded failure %q, replay failed with %q", entry.Error, handleErr.Error())
			}
		case handleErr != nil:
			mismatch("recorded success, replay failed with %q", handleErr.Error())
		default:
			raw, err := value.MarshalCanonical(resp)
			if err != nil {
				return nil, fmt.Errorf("replay %s: entry %d: encode response: %w", sessionID, entry.Seq, err)
			}
			if !value.Equal(raw, entry.Response) {
				mismatch("response differs from the recording")
			}
		}

		// The chain follows the recording, so one divergence is reported
		// once rather than at every later entry.
		if entry.Response != nil {
			var recorded protocol.Response
			if err := json.Unmarshal(entry.Response, &recorded); err != nil {
				return nil, fmt.Errorf("replay %s: entry %d: decode response: %w", sessionID, entry.Seq, err)
			}
			state = engine.ApplyDelta(req.State, recorded.State)
		} else {
			state = req.State
		}
	}

	h.logger.Debug("session replayed",
		"session", sessionID,
		"entries", r.Entries,
		"mismatches", len(r.Mismatches),
	)
	return r, nil
}

func stateEqual(a, b value.State) bool {
	if len(a) != len(b) {
		return false
	}
	for id, raw := range a {
		if !b.Lookup(id).Equal(value.Some(raw)) {
			return false
		}
	}
	return true
}
