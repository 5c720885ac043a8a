package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

func TestCreateSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "s1", "counter", json.RawMessage(`{ "b": 1, "a": 2 }`))
	require.NoError(t, err)
	assert.Equal(t, "counter", sess.App)
	assert.Equal(t, `{"a":2,"b":1}`, string(sess.Props))
	assert.Zero(t, sess.Seq)

	again, err := s.CreateSession(ctx, "s1", "counter", nil)
	require.NoError(t, err)
	assert.Equal(t, sess, again, "second create keeps the original row")

	_, err = s.CreateSession(ctx, "s1", "loader", nil)
	assert.ErrorContains(t, err, `already mounted with app "counter"`)
}

func TestGetSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.SetProps(context.Background(), "missing", nil), ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(context.Background(), "missing"), ErrSessionNotFound)
}

func TestApplyDelta(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSession(ctx, "s1", "counter", nil)
	require.NoError(t, err)

	err = s.ApplyDelta(ctx, "s1", value.State{
		"App#0/state#0": json.RawMessage(`1`),
		"App#0/state#1": json.RawMessage(`{"y": 2, "x": 1}`),
	})
	require.NoError(t, err)

	state, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, value.State{
		"App#0/state#0": json.RawMessage(`1`),
		"App#0/state#1": json.RawMessage(`{"x":1,"y":2}`),
	}, state)

	err = s.ApplyDelta(ctx, "s1", value.State{
		"App#0/state#0": json.RawMessage(`2`),
		"App#0/state#1": protocol.Tombstone,
		"App#0/state#9": protocol.Tombstone,
	})
	require.NoError(t, err)

	state, err = s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, value.State{"App#0/state#0": json.RawMessage(`2`)}, state)
}

func TestApplyDelta_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	err := s.ApplyDelta(context.Background(), "nope", value.State{"a/state#0": json.RawMessage(`1`)})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestApplyDelta_InvalidJSONRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSession(ctx, "s1", "counter", nil)
	require.NoError(t, err)

	err = s.ApplyDelta(ctx, "s1", value.State{
		"a/state#0": json.RawMessage(`1`),
		"b/state#0": json.RawMessage(`{not json`),
	})
	require.Error(t, err)

	state, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestDeleteSession_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSession(ctx, "s1", "counter", nil)
	require.NoError(t, err)
	require.NoError(t, s.ApplyDelta(ctx, "s1", value.State{"a/state#0": json.RawMessage(`1`)}))
	_, err = s.AppendTranscript(ctx, "s1", json.RawMessage(`{}`), json.RawMessage(`{}`), "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	state, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state)
	entries, err := s.ReadTranscript(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscript(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.CreateSession(ctx, "s1", "counter", nil)
	require.NoError(t, err)

	seq, err := s.AppendTranscript(ctx, "s1", json.RawMessage(`{"events":[]}`), json.RawMessage(`{"state":{}}`), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	seq, err = s.AppendTranscript(ctx, "s1", json.RawMessage(`{"events":[{"hook":"x"}]}`), nil, "HOOK_COUNT_MISMATCH")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	entries, err := s.ReadTranscript(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, `{"state":{}}`, string(entries[0].Response))
	assert.Empty(t, entries[0].Error)
	assert.Nil(t, entries[1].Response)
	assert.Equal(t, "HOOK_COUNT_MISMATCH", entries[1].Error)

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sess.Seq)

	_, err = s.AppendTranscript(ctx, "ghost", json.RawMessage(`{}`), nil, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
