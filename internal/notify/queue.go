// Package notify implements the bounded notification queue that decouples
// a commit (resource/collection validate-then-publish) from subscriber
// callbacks. The bounded-channel-plus-drop-counter shape is grounded on
// BeadsLog's daemon mutation feed (internal/rpc/server_core.go's
// mutationChan / droppedEvents / recentMutations ring buffer), repurposed
// here as the core pub/sub primitive instead of a CLI activity feed.
package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the default bounded channel size for a new Queue.
const DefaultCapacity = 256

// Queue is a bounded FIFO of deferred callbacks. Send enqueues; Process
// dequeues and invokes a batch. Pause/Play redirect Send into a side buffer
// so a caller can suspend delivery (e.g. during a bulk import), then release
// them in order; Play drops (and counts) any buffered callback that no
// longer fits in the bounded channel.
type Queue struct {
	ch       chan func()
	capacity int

	mu     sync.Mutex
	paused bool
	side   []func()

	dropped atomic.Int64

	immediate bool
}

// New returns a Queue with the given bounded capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan func(), capacity), capacity: capacity}
}

// Immediate returns a Queue that invokes every Send synchronously and
// inline, matching spec.md's "a sentinel immediate queue invokes callbacks
// synchronously from the publish site". Process/Pause/Play are no-ops on
// it.
func Immediate() *Queue {
	return &Queue{immediate: true}
}

// IsImmediate reports whether this is the synchronous sentinel queue.
func (q *Queue) IsImmediate() bool { return q.immediate }

// Send enqueues f for later delivery (or invokes it inline on the
// immediate queue). While paused, f is appended to the side buffer
// instead, preserving order for when Play is called. If the bounded
// channel is full, f is dropped and the drop counter is incremented rather
// than blocking the committing transaction.
func (q *Queue) Send(f func()) {
	if q.immediate {
		f()
		return
	}
	q.mu.Lock()
	if q.paused {
		q.side = append(q.side, f)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	select {
	case q.ch <- f:
	default:
		q.dropped.Add(1)
	}
}

// Dropped returns the number of callbacks dropped because the queue was
// full at Send time.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Pause suspends delivery: subsequent Sends accumulate in a side buffer
// until Play is called.
func (q *Queue) Pause() {
	if q.immediate {
		return
	}
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Play resumes delivery, draining the side buffer into the bounded
// channel in the order it was accumulated.
func (q *Queue) Play() {
	if q.immediate {
		return
	}
	q.mu.Lock()
	buffered := q.side
	q.side = nil
	q.paused = false
	q.mu.Unlock()

	for _, f := range buffered {
		select {
		case q.ch <- f:
		default:
			q.dropped.Add(1)
		}
	}
}

// Process dequeues and invokes callbacks for up to maxWait, returning the
// number invoked. A maxWait of 0 drains whatever is immediately available
// without blocking.
func (q *Queue) Process(maxWait time.Duration) int {
	if q.immediate {
		return 0
	}
	n := 0
	deadline := time.Now().Add(maxWait)
	for {
		var f func()
		if maxWait <= 0 {
			select {
			case f = <-q.ch:
			default:
				return n
			}
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return n
			}
			select {
			case f = <-q.ch:
			case <-time.After(remaining):
				return n
			}
		}
		f()
		n++
	}
}

// Len reports how many callbacks are currently queued for delivery
// (excludes anything buffered while paused).
func (q *Queue) Len() int {
	if q.immediate {
		return 0
	}
	return len(q.ch)
}
