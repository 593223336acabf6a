package core

import (
	"sync"

	"github.com/genloop/genloop/internal/message"
)

// DrainMode selects how a steering or follow-up queue discharges on a
// poll (spec.md §4.4).
type DrainMode string

const (
	// DrainOneAtATime removes and returns the oldest queued message as
	// a one-element list. Default for both queues.
	DrainOneAtATime DrainMode = "one_at_a_time"
	// DrainAll returns every queued message, in enqueue order, and
	// empties the queue.
	DrainAll DrainMode = "all"
)

// messageQueue is the steering/follow-up injection queue: a plain FIFO
// with a configurable discharge policy, safe for concurrent Enqueue
// from the caller and Drain from the run loop.
type messageQueue struct {
	mu    sync.Mutex
	items []message.Message
	mode  DrainMode
}

// Enqueue appends a message for later injection.
func (q *messageQueue) Enqueue(m message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
}

func (q *messageQueue) setMode(mode DrainMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mode = mode
}

// Drain removes and returns the next batch per the configured mode.
// Returns nil if the queue is empty.
func (q *messageQueue) Drain() []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	if q.mode == DrainAll {
		out := q.items
		q.items = nil
		return out
	}
	out := q.items[:1:1]
	q.items = q.items[1:]
	return out
}
