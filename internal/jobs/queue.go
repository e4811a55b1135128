package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/foospulse/foospulse/internal/logging"
)

// Handler processes one job. A nil return acknowledges it.
type Handler func(ctx context.Context, job Job) error

// Queue is an at-least-once job transport
type Queue interface {
	// Publish enqueues job. Publishing the same job ID twice may be deduplicated.
	Publish(ctx context.Context, job Job) error
	// Consume runs workers concurrent handlers until ctx is done.
	Consume(ctx context.Context, workers int, handle Handler) error
	Close() error
}

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// MemoryQueue is an in-process queue for tests and single-binary setups
// without a broker. Jobs do not survive a restart; the outbox does.
type MemoryQueue struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	ch     chan Job
	closed bool
	logger *slog.Logger
}

// NewMemoryQueue creates a queue holding up to size pending jobs
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		seen:   make(map[string]struct{}),
		ch:     make(chan Job, size),
		logger: logger,
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, dup := q.seen[job.ID]; dup {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- job:
		q.seen[job.ID] = struct{}{}
		return nil
	default:
		// the outbox keeps the row and the relay tries again
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-q.ch:
					if !ok {
						return
					}
					if err := handle(ctx, job); err != nil && !errors.Is(err, ErrExhausted) {
						q.requeue(job, err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// requeue puts back a job whose handler was interrupted
func (q *MemoryQueue) requeue(job Job, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- job:
	default:
		logging.Warn(q.logger, "memory queue full, dropping interrupted job",
			logging.FieldJobID, job.ID, logging.FieldJobKind, job.Kind, "error", err)
	}
}

// Pending returns how many jobs are waiting
func (q *MemoryQueue) Pending() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
