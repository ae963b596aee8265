package scheduler

import (
	"context"
	"errors"
	"sync"
)

var errQueueClosed = errors.New("job queue is closed")

// jobQueue is the FIFO of pending job IDs. One consumer (the scheduler loop)
// blocks on Pop; producers Push from API goroutines. Remove supports
// cancelling a job that has not started yet.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ids    []string
	closed bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *jobQueue) Push(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}
	q.ids = append(q.ids, jobID)
	q.cond.Signal()
	return nil
}

// Pop blocks until a job is available, the queue closes, or ctx is done.
func (q *jobQueue) Pop(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ids) == 0 && !q.closed {
		done := make(chan struct{})
		go func() {
			q.cond.Wait()
			close(done)
		}()

		select {
		case <-ctx.Done():
			q.cond.Broadcast()
			// The waiter re-acquires the lock before done closes; returning
			// earlier would race the deferred unlock against it.
			<-done
			return "", ctx.Err()
		case <-done:
		}
	}

	if len(q.ids) == 0 {
		return "", errQueueClosed
	}

	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, nil
}

// Remove deletes a still-queued job. Returns false when the job already left
// the queue.
func (q *jobQueue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.ids {
		if id == jobID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (q *jobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
