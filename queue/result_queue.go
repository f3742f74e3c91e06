package queue

import (
	"sync"

	"github.com/adamnovak/lancet2/variant"
)

// ResultQueue is an MPSC-style queue: any number of worker goroutines call
// Push, and a single driver goroutine calls Pop in a blocking wait-dequeue
// loop with no spinning.
type ResultQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []variant.WindowResult
}

// NewResultQueue creates an empty ResultQueue.
func NewResultQueue() *ResultQueue {
	q := &ResultQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues r. Safe to call concurrently from any number of workers.
func (q *ResultQueue) Push(r variant.WindowResult) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until a result is available, then returns it. Only the
// driver goroutine should call Pop.
func (q *ResultQueue) Pop() variant.WindowResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r
}
