// src/writequeue/queue.go
//
// All storage mutations funnel through one bounded FIFO queue with a single
// worker, so writes are strictly ordered and never overlap. Reads bypass the
// queue entirely; sqlite's WAL mode keeps them cheap alongside the writer.
package writequeue

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
)

var (
	// ErrQueueFull is deliberate backpressure: the caller decides whether to
	// retry, the queue never blocks an enqueue.
	ErrQueueFull = errors.New("write queue full")
	// ErrQueueClosed is returned after Shutdown has begun.
	ErrQueueClosed = errors.New("write queue closed")
	// ErrQueuePaused is returned while a restore is swapping the database
	// files underneath the handle.
	ErrQueuePaused = errors.New("write queue paused")
)

// Task is one logical write. It runs inside its own transaction; composing
// store calls against the same tx is how multi-statement operations stay
// atomic, and "nested" operations flatten into this scope.
type Task func(tx *sql.Tx) error

type job struct {
	name    string
	fn      Task
	barrier chan struct{} // non-nil for drain barriers; fn is not run
	done    chan error
}

// Queue serializes write tasks against the storage handle.
type Queue struct {
	handle *database.Handle
	jobs   chan job

	// intakeMu protects enqueues against the channel close in Shutdown.
	intakeMu sync.RWMutex
	closed   atomic.Bool
	sealed   atomic.Bool // set just before the jobs channel is closed
	paused   atomic.Bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates the queue and starts its worker. Capacity bounds the number of
// queued (not yet started) tasks.
func New(handle *database.Handle, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	q := &Queue{
		handle:  handle,
		jobs:    make(chan job, capacity),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	for j := range q.jobs {
		if j.barrier != nil {
			close(j.barrier)
			continue
		}
		j.done <- q.execute(j)
	}
}

func (q *Queue) execute(j job) error {
	db := q.handle.DB()
	if db == nil {
		return errors.New("storage handle is closed")
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := j.fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			logger.L.Error("Rollback failed after write task error", "task", j.name, "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Pending reports how many tasks are queued but not yet started.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Submit enqueues a write task and waits for its completion. Enqueueing past
// capacity fails immediately with ErrQueueFull. Once a task is dequeued it
// runs to completion; the context only abandons the wait, not the task.
func (q *Queue) Submit(ctx context.Context, name string, fn Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if q.paused.Load() {
		return ErrQueuePaused
	}
	j := job{name: name, fn: fn, done: make(chan error, 1)}
	q.intakeMu.RLock()
	if q.closed.Load() {
		q.intakeMu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		q.intakeMu.RUnlock()
	default:
		q.intakeMu.RUnlock()
		logger.L.Warn("Write queue at capacity, rejecting task", "task", name, "capacity", cap(q.jobs))
		return ErrQueueFull
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		logger.L.Warn("Caller stopped waiting for write task; task still runs", "task", name)
		return ctx.Err()
	}
}

// drainBarrier enqueues a barrier and waits until the worker reaches it,
// meaning every previously queued task has finished.
func (q *Queue) drainBarrier(ctx context.Context) error {
	b := job{name: "drain-barrier", barrier: make(chan struct{})}
	q.intakeMu.RLock()
	if q.sealed.Load() {
		q.intakeMu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- b:
		q.intakeMu.RUnlock()
	case <-ctx.Done():
		q.intakeMu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-b.barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and drains queued work, waiting up to timeout. On
// expiry it proceeds anyway: durability of whatever is still in flight rests
// on sqlite's WAL journal, not on this wait.
func (q *Queue) Shutdown(timeout time.Duration) {
	q.closed.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := q.drainBarrier(ctx); err != nil {
		logger.L.Warn("Write queue drain timed out; proceeding with shutdown", "pending", q.Pending(), "error", err)
	}
	q.stopOnce.Do(func() {
		q.intakeMu.Lock()
		q.sealed.Store(true)
		close(q.jobs)
		q.intakeMu.Unlock()
	})
	select {
	case <-q.stopped:
	case <-ctx.Done():
	}
}

// Quiesce drains the queue without closing it: after it returns (nil), no
// write is queued or in flight. The backup engine sequences file operations
// behind this.
func (q *Queue) Quiesce(ctx context.Context) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	return q.drainBarrier(ctx)
}

// Pause stops accepting new tasks; Submit fails with ErrQueuePaused until
// Resume. Already-queued work keeps running. The backup engine pauses intake
// for the whole span of a restore, during which the handle is closed and the
// database files are being replaced.
func (q *Queue) Pause() {
	q.paused.Store(true)
}

// Resume reopens intake after a Pause.
func (q *Queue) Resume() {
	q.paused.Store(false)
}
