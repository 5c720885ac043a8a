package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/protocol"
)

func other(hook string) protocol.Event {
	return protocol.Event{Hook: hook, Async: true, AsyncRequest: &protocol.AsyncRequest{RequestID: hook + "-r"}}
}

func TestEventQueue_Batches(t *testing.T) {
	q := newEventQueue([]protocol.Event{
		other("a"), other("b"),
		press("m1", ""),
		press("m2", ""),
		other("c"),
	})

	var got [][]string
	var mains []bool
	for {
		b, ok := q.Next()
		if !ok {
			break
		}
		var hooks []string
		for _, ev := range b.events {
			hooks = append(hooks, ev.Hook)
		}
		got = append(got, hooks)
		mains = append(mains, b.main)
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"m1"}, {"m2"}, {"c"}}, got)
	assert.Equal(t, []bool{false, true, true, false}, mains)
	assert.Zero(t, q.Len())
}

func TestEventQueue_EnqueueAndDrain(t *testing.T) {
	q := newEventQueue(nil)
	_, ok := q.Next()
	assert.False(t, ok)

	q.Enqueue(other("a"))
	q.Enqueue(other("b"), press("m", ""))
	require.Equal(t, 3, q.Len())

	b, ok := q.Next()
	require.True(t, ok)
	assert.Len(t, b.events, 2)
	assert.Equal(t, "other_queue", b.kind())

	// Appending to a returned batch must not clobber the queue.
	_ = append(b.events, other("z"))
	rest := q.Drain()
	require.Len(t, rest, 1)
	assert.Equal(t, "m", rest[0].Hook)
	assert.Zero(t, q.Len())
}

func TestRoundQuota(t *testing.T) {
	q := newRoundQuota(2)
	require.NoError(t, q.Check("events"))
	require.NoError(t, q.Check("render"))

	err := q.Check("render")
	require.Error(t, err)
	assert.True(t, IsRoundsExceededError(err))
	assert.Contains(t, err.Error(), "during render: 3 rounds > 2 limit")
	assert.Equal(t, 3, q.Current())
}
