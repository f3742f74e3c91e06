// Package queue implements the two bounded queues the pipeline driver
// wires workers through: a multi-producer/multi-consumer queue of
// pending windows, and a multi-producer/single-consumer queue of worker
// results. Per the Design Notes in SPEC_FULL.md, a lock-free queue
// library isn't essential to satisfy the contract; a mutex+condvar
// bounded queue with bulk enqueue does the job.
package queue

import (
	"sync"

	"github.com/adamnovak/lancet2/genome"
)

// WindowQueue is a bounded MPMC queue of *genome.Window. A single
// producer bulk-enqueues the entire window list at startup; any number
// of worker goroutines call Pop to dequeue in arbitrary order. There is
// no FIFO fairness guarantee.
type WindowQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*genome.Window
	closed bool
}

// NewWindowQueue creates an empty WindowQueue.
func NewWindowQueue() *WindowQueue {
	q := &WindowQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushAll bulk-enqueues ws without blocking. It must be called before any
// worker starts calling Pop, and exactly once.
func (q *WindowQueue) PushAll(ws []*genome.Window) {
	q.mu.Lock()
	q.items = append(q.items, ws...)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pop blocks until a window is available or the queue is closed and
// drained, returning (window, true) in the former case and (nil, false)
// in the latter. Workers use the latter to detect end-of-work.
func (q *WindowQueue) Pop() (*genome.Window, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	w := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return w, true
}

// Close marks the queue as exhausted: no more items will ever be pushed,
// and any blocked or future Pop once the queue is empty returns
// (nil, false). Since the driver bulk-enqueues the full window list
// before spawning any worker (SPEC_FULL.md §4.5), Close can safely be
// called immediately after PushAll.
func (q *WindowQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
