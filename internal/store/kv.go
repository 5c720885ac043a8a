package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/blockrt/internal/engine"
)

var _ engine.KVStore = (*KV)(nil)

// KV is the key-value service backed by the kv table. Keys are isolated
// per scope; hosts usually scope by session or by app.
type KV struct {
	db    *sql.DB
	scope string
}

// KV returns the key-value service for scope.
func (s *Store) KV(scope string) *KV {
	return &KV{db: s.db, scope: scope}
}

// Get returns the value stored under key and whether it exists.
func (kv *KV) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw string
	err := kv.db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE scope = ? AND key = ?
	`, kv.scope, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return json.RawMessage(raw), true, nil
}

// Set stores value under key, replacing any previous value.
func (kv *KV) Set(ctx context.Context, key string, value json.RawMessage) error {
	text, err := canonicalText(value)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	_, err = kv.db.ExecContext(ctx, `
		INSERT INTO kv (scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value
	`, kv.scope, key, text)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if _, err := kv.db.ExecContext(ctx, `DELETE FROM kv WHERE scope = ? AND key = ?`, kv.scope, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}
