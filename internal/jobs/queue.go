package jobs

import (
	"github.com/ternarybob/custodia/internal/common"
)

// Queue is the bounded FIFO of admitted job IDs. Enqueue never blocks;
// a full queue fails admission with common.ErrOverloaded.
type Queue struct {
	ch chan string
}

// NewQueue creates a queue with the given capacity
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan string, capacity)}
}

// Enqueue adds a job ID, failing immediately when the queue is full
func (q *Queue) Enqueue(jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	default:
		return common.ErrOverloaded
	}
}

// Dequeue exposes the receive side for workers
func (q *Queue) Dequeue() <-chan string {
	return q.ch
}

// Len returns the number of queued IDs
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}
