package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is one recorded invocation of a session.
type Entry struct {
	SessionID string
	Seq       int64
	Request   json.RawMessage
	// Response is nil when the invocation failed.
	Response json.RawMessage
	Error    string
}

// AppendTranscript records one invocation and advances the session seq.
// It returns the seq assigned to the entry, starting at 1.
func (s *Store) AppendTranscript(ctx context.Context, sessionID string, req, resp json.RawMessage, errMsg string) (int64, error) {
	reqText, err := canonicalText(req)
	if err != nil {
		return 0, fmt.Errorf("append transcript: request: %w", err)
	}
	var respText sql.NullString
	if resp != nil {
		text, err := canonicalText(resp)
		if err != nil {
			return 0, fmt.Errorf("append transcript: response: %w", err)
		}
		respText = sql.NullString{String: text, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append transcript: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		UPDATE sessions SET seq = seq + 1 WHERE id = ? RETURNING seq
	`, sessionID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("append transcript %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("append transcript: advance seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, seq, request, response, error)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, seq, reqText, respText, errMsg); err != nil {
		return 0, fmt.Errorf("append transcript: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append transcript: commit: %w", err)
	}
	return seq, nil
}

// ReadTranscript returns every entry of a session in seq order.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ReadTranscript(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, request, response, error
		FROM transcripts
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			req  string
			resp sql.NullString
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &req, &resp, &e.Error); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.Request = json.RawMessage(req)
		if resp.Valid {
			e.Response = json.RawMessage(resp.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return entries, nil
}
