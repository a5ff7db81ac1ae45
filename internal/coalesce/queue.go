// Package coalesce implements a keyed write-behind queue. Bursts of writes to
// the same key collapse into one deferred write whose result is shared by
// every caller that joined it.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrClosed is returned when scheduling on a closed queue.
	ErrClosed = errors.New("write queue closed")
	// ErrDiscarded is delivered to waiters of a write dropped by Discard.
	ErrDiscarded = errors.New("write discarded")
)

// WriteFunc performs the deferred write.
type WriteFunc func(ctx context.Context) error

// Pending is a handle on a scheduled write shared by all callers that joined it.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Done is closed once the write settles.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write settles and returns its error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	fn      WriteFunc
	pending *Pending
	timer   *time.Timer
	// due is set once the delay elapsed or a flush was requested while an
	// earlier write for the key was still running.
	due bool
}

type slot struct {
	queued   *job
	inflight *Pending
}

// Queue is safe for concurrent use. At most one write per key runs at a time.
type Queue struct {
	delay  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue that defers writes by delay.
func New(delay time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		delay:  delay,
		logger: logger,
		slots:  make(map[string]*slot),
	}
}

// Schedule queues fn for key. If a write for key is already waiting, its
// function is replaced and the existing handle is returned.
func (q *Queue) Schedule(key string, fn WriteFunc) (*Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	s := q.slots[key]
	if s == nil {
		s = &slot{}
		q.slots[key] = s
	}
	if s.queued != nil {
		s.queued.fn = fn
		return s.queued.pending, nil
	}

	j := &job{fn: fn, pending: newPending()}
	s.queued = j
	j.timer = time.AfterFunc(q.delay, func() { q.fire(key, j) })
	return j.pending, nil
}

// HasPending reports whether key has a queued or running write.
func (q *Queue) HasPending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.slots[key]
	return s != nil && (s.queued != nil || s.inflight != nil)
}

// Flush starts the queued write for key immediately (after any running one)
// and waits for everything outstanding on key to settle.
func (q *Queue) Flush(ctx context.Context, key string) error {
	q.mu.Lock()
	s := q.slots[key]
	if s == nil {
		q.mu.Unlock()
		return nil
	}
	var waits []*Pending
	if s.inflight != nil {
		waits = append(waits, s.inflight)
	}
	if s.queued != nil {
		s.queued.due = true
		waits = append(waits, s.queued.pending)
		if s.inflight == nil {
			q.startLocked(key, s)
		}
	}
	q.mu.Unlock()

	var errs []error
	for _, p := range waits {
		if err := p.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FlushAll flushes every key. Keys are flushed in sorted order.
func (q *Queue) FlushAll(ctx context.Context) error {
	q.mu.Lock()
	keys := make([]string, 0, len(q.slots))
	for k := range q.slots {
		keys = append(keys, k)
	}
	q.mu.Unlock()
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := q.Flush(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops a write for key that has not started yet. Waiters receive
// ErrDiscarded. A running write is not interrupted.
func (q *Queue) Discard(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.slots[key]
	if s == nil || s.queued == nil {
		return
	}
	j := s.queued
	s.queued = nil
	j.timer.Stop()
	j.pending.err = ErrDiscarded
	close(j.pending.done)
	if s.inflight == nil {
		delete(q.slots, key)
	}
}

// Close flushes all outstanding writes and rejects new ones.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	err := q.FlushAll(ctx)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (q *Queue) fire(key string, j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.slots[key]
	if s == nil || s.queued != j {
		return
	}
	j.due = true
	if s.inflight != nil {
		return
	}
	q.startLocked(key, s)
}

// startLocked moves the queued job into flight. Caller holds q.mu.
func (q *Queue) startLocked(key string, s *slot) {
	j := s.queued
	s.queued = nil
	j.timer.Stop()
	s.inflight = j.pending
	q.wg.Add(1)
	go q.run(key, j)
}

func (q *Queue) run(key string, j *job) {
	defer q.wg.Done()

	err := q.call(key, j.fn)
	if err != nil {
		q.logger.Error("deferred write failed", "key", key, "error", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	j.pending.err = err
	close(j.pending.done)

	s := q.slots[key]
	s.inflight = nil
	switch {
	case s.queued != nil && s.queued.due:
		q.startLocked(key, s)
	case s.queued == nil:
		delete(q.slots, key)
	}
}

func (q *Queue) call(key string, fn WriteFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write for %s panicked: %v", key, r)
		}
	}()
	return fn(context.Background())
}
