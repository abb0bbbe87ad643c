// Package scheduler implements the simulator's min-instant priority
// queue: a container/heap-backed queue of message.Event ordered by
// instant, with insertion-sequence tiebreak so events sharing an
// instant pop in FIFO order. The shape (heap.Interface over a slice of
// (event, seq) entries) follows the shared-clock event queue pattern
// used by the one discrete-event simulator found in the reference
// corpus for exactly this requirement.
package scheduler

import (
	"container/heap"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
)

// Queue is a pending set of events ordered by (Instant, insertion
// sequence). It is not safe for concurrent use; a Simulator owns one
// Queue exclusively.
type Queue struct {
	h       eventHeap
	nextSeq uint64
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{h: make(eventHeap, 0)}
	heap.Init(&q.h)
	return q
}

// Push enqueues ev, stamping it with the next insertion sequence
// number for deterministic tiebreaking.
func (q *Queue) Push(ev message.Event) {
	ev = ev.WithSeq(q.nextSeq)
	q.nextSeq++
	heap.Push(&q.h, ev)
}

// PopMin removes and returns the event with the smallest instant,
// breaking ties by insertion order. ok is false if the queue is empty.
func (q *Queue) PopMin() (ev message.Event, ok bool) {
	if q.h.Len() == 0 {
		return message.Event{}, false
	}
	return heap.Pop(&q.h).(message.Event), true
}

// Empty reports whether the queue holds no pending events.
func (q *Queue) Empty() bool { return q.h.Len() == 0 }

// Len returns the number of pending events.
func (q *Queue) Len() int { return q.h.Len() }

// eventHeap implements heap.Interface over message.Event, ordered by
// (Instant, seq).
type eventHeap []message.Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Instant != h[j].Instant {
		return h[i].Instant < h[j].Instant
	}
	return h[i].Seq() < h[j].Seq()
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(message.Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
