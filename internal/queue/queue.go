// Package queue runs indexing jobs one at a time in submission order.
package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Action is the work executed for a queued job
type Action func(ctx context.Context) error

type entry struct {
	jobID  string
	action Action
}

// Queue is a single-worker FIFO job queue. Only one job runs at any time;
// the rest wait in submission order.
type Queue struct {
	mu      sync.Mutex
	pending []entry
	current string
	wake    chan struct{}

	logger *zap.Logger
	done   sync.WaitGroup
}

func New(logger *zap.Logger) *Queue {
	return &Queue{
		wake:   make(chan struct{}, 1),
		logger: logger.Named("queue"),
	}
}

// Start launches the worker goroutine. The worker drains the queue until
// ctx is cancelled; a cancelled ctx also flows into running actions.
func (q *Queue) Start(ctx context.Context) {
	q.done.Add(1)
	go q.run(ctx)
}

// Wait blocks until the worker goroutine has exited
func (q *Queue) Wait() {
	q.done.Wait()
}

// Enqueue appends a job and returns its 1-based queue position. Position 1
// means the job runs next (or immediately when the worker is idle).
func (q *Queue) Enqueue(jobID string, action Action) int {
	q.mu.Lock()
	q.pending = append(q.pending, entry{jobID: jobID, action: action})
	position := len(q.pending)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return position
}

// Len returns how many jobs are waiting, not counting the running one
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// CurrentJobID returns the running job's id, or "" when idle
func (q *Queue) CurrentJobID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// IsJobQueued reports whether the job is running or waiting
func (q *Queue) IsJobQueued(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == jobID {
		return true
	}
	for _, e := range q.pending {
		if e.jobID == jobID {
			return true
		}
	}
	return false
}

func (q *Queue) run(ctx context.Context) {
	defer q.done.Done()
	for {
		e, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.logger.Info("job started", zap.String("jobId", e.jobID))
		err := q.execute(ctx, e)
		if err != nil {
			q.logger.Error("job failed", zap.String("jobId", e.jobID), zap.Error(err))
		} else {
			q.logger.Info("job finished", zap.String("jobId", e.jobID))
		}

		q.mu.Lock()
		q.current = ""
		q.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) next() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return entry{}, false
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	q.current = e.jobID
	return e, true
}

// execute runs the action and converts a panic into an error so one bad
// job cannot take down the worker.
func (q *Queue) execute(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return e.action(ctx)
}
