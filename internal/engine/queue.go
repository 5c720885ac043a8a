package engine

import "github.com/roach88/blockrt/internal/protocol"

// batch is the unit of dispatch: exactly one main-queue event, or a maximal
// run of consecutive other-queue events.
type batch struct {
	main   bool
	events []protocol.Event
}

// kind names the batch for logs.
func (b batch) kind() string {
	if b.main {
		return b.events[0].Kind().String()
	}
	return "other_queue"
}

// eventQueue is the FIFO of events still to be applied in one invocation.
//
// It is owned by a single invocation and is not safe for concurrent use.
type eventQueue struct {
	events []protocol.Event
}

func newEventQueue(events []protocol.Event) *eventQueue {
	q := &eventQueue{events: make([]protocol.Event, 0, len(events))}
	q.events = append(q.events, events...)
	return q
}

// Enqueue adds events to the back of the queue.
func (q *eventQueue) Enqueue(events ...protocol.Event) {
	q.events = append(q.events, events...)
}

// Next removes and returns the next batch.
func (q *eventQueue) Next() (batch, bool) {
	if len(q.events) == 0 {
		return batch{}, false
	}
	if q.events[0].MainQueue() {
		b := batch{main: true, events: q.events[:1:1]}
		q.events = q.events[1:]
		return b, true
	}
	n := 1
	for n < len(q.events) && !q.events[n].MainQueue() {
		n++
	}
	b := batch{events: q.events[:n:n]}
	q.events = q.events[n:]
	return b, true
}

// Drain removes and returns every remaining event.
func (q *eventQueue) Drain() []protocol.Event {
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	return len(q.events)
}
