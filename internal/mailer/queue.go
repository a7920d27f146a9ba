package mailer

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

var ErrQueueClosed = errors.New("queue closed")

const queueBacklog = 256

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	err  error
	done chan struct{}
}

// Queue runs submitted calls in FIFO order, one at a time, no faster than
// the configured rate. It paces calls to a provider API that enforces a
// per-second limit. There is no priority and no reordering.
type Queue struct {
	limiter *rate.Limiter
	jobs    chan *job

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewQueue starts the worker. perSecond must be positive.
func NewQueue(perSecond float64) *Queue {
	q := &Queue{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		jobs:    make(chan *job, queueBacklog),
		stop:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case j := <-q.jobs:
			if err := q.limiter.Wait(j.ctx); err != nil {
				j.err = err
			} else {
				j.fn(j.ctx)
			}
			close(j.done)
		}
	}
}

// Do enqueues fn and blocks until it has run. fn is skipped, and an error
// returned, when ctx ends before fn's turn comes.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context)) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case q.jobs <- j:
	case <-q.stop:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.done:
		return j.err
	case <-q.stop:
		return ErrQueueClosed
	}
}

// Close stops the worker after the job in flight, if any, finishes.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stop)
	q.mu.Unlock()
	q.wg.Wait()
}
