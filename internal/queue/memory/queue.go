// Package memory provides the bounded in-process job queue the async API
// feeds and the workers drain.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Queue errors.
var (
	ErrClosed = crawler.ErrQueueClosed
	ErrFull   = errors.New("queue full")
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan crawler.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan crawler.QueueItem, capacity)}
}

// Enqueue pushes a job, waiting for room until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job crawler.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.JobID, ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// TryEnqueue pushes a job only if there is room right now.
func (q *Queue) TryEnqueue(job crawler.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next job, respecting context cancellation. Jobs still
// buffered when the queue closes are drained first.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return crawler.QueueItem{}, ErrClosed
		}
		return job, nil
	}
}

// Len is the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting jobs. It waits for in-flight Enqueue calls to give up.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
