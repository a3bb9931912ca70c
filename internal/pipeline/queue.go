package pipeline

import (
	"sync"
	"time"
)

// jobQueue is an unbounded FIFO of job ids with a single consumer.
type jobQueue struct {
	mu    sync.Mutex
	items []int64
	ready chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{ready: make(chan struct{}, 1)}
}

func (q *jobQueue) push(id int64) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.signal()
}

// pushFront returns an id that was popped but never handed to a worker.
func (q *jobQueue) pushFront(id int64) {
	q.mu.Lock()
	q.items = append([]int64{id}, q.items...)
	q.mu.Unlock()
	q.signal()
}

func (q *jobQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop waits up to timeout for an id.
func (q *jobQueue) pop(timeout time.Duration) (int64, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return id, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-timer.C:
			return 0, false
		}
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
