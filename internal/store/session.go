package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one mounted root component.
type Session struct {
	ID    string
	App   string
	Props json.RawMessage
	// Seq is the number of transcript entries recorded so far.
	Seq int64
}

// CreateSession registers a session. Creating an existing session is a
// no-op as long as the app matches.
func (s *Store) CreateSession(ctx context.Context, id, app string, props json.RawMessage) (Session, error) {
	canonical, err := canonicalText(props)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: props: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, app, props) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, app, canonical)
	if err != nil {
		return Session{}, fmt.Errorf("create session %s: %w", id, err)
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.App != app {
		return Session{}, fmt.Errorf("create session %s: already mounted with app %q", id, sess.App)
	}
	return sess, nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess  Session
		props string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, app, props, seq FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.App, &props, &sess.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.Props = json.RawMessage(props)
	return sess, nil
}

// SetProps replaces the props the session root is rendered with.
func (s *Store) SetProps(ctx context.Context, id string, props json.RawMessage) error {
	canonical, err := canonicalText(props)
	if err != nil {
		return fmt.Errorf("set props %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET props = ? WHERE id = ?`, canonical, id)
	if err != nil {
		return fmt.Errorf("set props %s: %w", id, err)
	}
	return requireRow(res, "set props", id)
}

// DeleteSession removes a session with its state and transcript.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRow(res, "delete session", id)
}

// LoadState returns the hook state of a session. Tombstones are never
// stored, so the result contains live values only.
func (s *Store) LoadState(ctx context.Context, sessionID string) (value.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hook_id, value FROM hook_state
		WHERE session_id = ?
		ORDER BY hook_id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", sessionID, err)
	}
	defer rows.Close()

	state := value.State{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan hook state: %w", err)
		}
		state[id] = json.RawMessage(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hook state: %w", err)
	}
	return state, nil
}

// ApplyDelta merges a response delta into the session state in one
// transaction: tombstones delete their hook, every other entry is upserted.
func (s *Store) ApplyDelta(ctx context.Context, sessionID string, delta value.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply delta: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("apply delta: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("apply delta %s: %w", sessionID, ErrSessionNotFound)
	}

	for _, id := range value.SortedKeys(delta) {
		raw := delta[id]
		if protocol.IsTombstone(raw) {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM hook_state WHERE session_id = ? AND hook_id = ?
			`, sessionID, id); err != nil {
				return fmt.Errorf("apply delta: delete %s: %w", id, err)
			}
			continue
		}
		canonical, err := canonicalText(raw)
		if err != nil {
			return fmt.Errorf("apply delta: %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hook_state (session_id, hook_id, value) VALUES (?, ?, ?)
			ON CONFLICT(session_id, hook_id) DO UPDATE SET value = excluded.value
		`, sessionID, id, canonical); err != nil {
			return fmt.Errorf("apply delta: upsert %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply delta: commit: %w", err)
	}
	return nil
}

// canonicalText normalizes a JSON value for storage. Empty input is null.
func canonicalText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	out, err := value.Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrSessionNotFound)
	}
	return nil
}

// ListSessions returns the ids of every session in id order.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}
