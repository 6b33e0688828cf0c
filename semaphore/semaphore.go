// Package semaphore implements the back-pressure admission-control
// primitive described in spec §4.2: bounded concurrency plus an optional
// bounded outstanding count and byte-weighted queue memory, with
// suspend/drop-oldest/drop-newest/error overflow strategies and strict
// FIFO wakeups.
package semaphore

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Strategy selects the overflow policy once max_concurrency is saturated.
type Strategy int

const (
	// StrategySuspend blocks the caller in the FIFO wait queue.
	StrategySuspend Strategy = iota
	// StrategyDropOldest evicts the front of the wait queue to admit the
	// newer caller.
	StrategyDropOldest
	// StrategyDropNewest rejects the new caller immediately.
	StrategyDropNewest
	// StrategyError behaves like StrategyDropNewest but surfaces a
	// deterministic ErrQueueFull instead of ErrBackPressureFull.
	StrategyError
)

// Token represents one granted permit. Release must be called exactly
// once; a second call is a no-op rather than a panic (documented choice —
// see spec §4.2 "Observable effects").
type Token struct {
	sem      *BackPressureSemaphore
	size     int
	released bool
	mu       sync.Mutex
}

// Release returns the permit. Safe to call multiple times; only the first
// call has effect.
func (t *Token) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()
	t.sem.release(t.size)
}

// Size returns the byte weight this token was acquired with.
func (t *Token) Size() int { return t.size }

type waiter struct {
	size     int
	ready    chan *Token
	err      chan error
	canceled bool
}

// BackPressureSemaphore bounds concurrent executions, optionally bounds the
// combined active+queued count ("outstanding"), and optionally bounds the
// sum of queued token sizes ("queue memory"). It is safe for concurrent use.
type BackPressureSemaphore struct {
	mu sync.Mutex

	maxConcurrency int
	maxOutstanding int // 0 == unbounded
	maxQueueMemory int // 0 == unbounded
	strategy       Strategy

	active       int
	queue        *list.List // of *waiter
	queuedMemory int

	logger zerolog.Logger
}

// Config configures a BackPressureSemaphore. MaxOutstanding and
// MaxQueueMemory of 0 mean unbounded.
type Config struct {
	MaxConcurrency int
	MaxOutstanding int
	MaxQueueMemory int
	Strategy       Strategy
	Logger         zerolog.Logger
}

// New constructs a BackPressureSemaphore. MaxConcurrency must be positive.
func New(cfg Config) (*BackPressureSemaphore, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("semaphore: max_concurrency must be positive, got %d", cfg.MaxConcurrency)
	}
	return &BackPressureSemaphore{
		maxConcurrency: cfg.MaxConcurrency,
		maxOutstanding: cfg.MaxOutstanding,
		maxQueueMemory: cfg.MaxQueueMemory,
		strategy:       cfg.Strategy,
		queue:          list.New(),
		logger:         cfg.Logger,
	}, nil
}

// Acquire obtains a Token sized size bytes (0 if the caller doesn't weight
// its queue memory). It blocks, fails fast, or drops an older waiter
// according to Strategy once max_concurrency is saturated. ctx cancellation
// while suspended removes the waiter from the queue and returns
// ErrCancelled; no permit is leaked.
func (s *BackPressureSemaphore) Acquire(ctx context.Context, size int) (*Token, error) {
	s.mu.Lock()

	if s.active < s.maxConcurrency {
		s.active++
		s.mu.Unlock()
		return &Token{sem: s, size: size}, nil
	}

	// Saturated: consult overflow policy.
	queuedCount := s.queue.Len()
	wouldOutstanding := s.active + queuedCount + 1
	overOutstanding := s.maxOutstanding > 0 && wouldOutstanding > s.maxOutstanding
	overMemory := s.maxQueueMemory > 0 && s.queuedMemory+size > s.maxQueueMemory
	over := overOutstanding || overMemory

	switch s.strategy {
	case StrategyDropNewest:
		if over {
			s.mu.Unlock()
			return nil, ErrBackPressureFull
		}
	case StrategyError:
		if over {
			s.mu.Unlock()
			return nil, ErrQueueFull
		}
	case StrategyDropOldest:
		if over {
			if s.queue.Len() == 0 {
				// Nothing queued to evict in its place — admitting this
				// caller would still push outstanding/memory past the cap,
				// so reject it the same way drop_newest would.
				s.mu.Unlock()
				return nil, ErrBackPressureFull
			}
			front := s.queue.Front()
			w := front.Value.(*waiter)
			s.queue.Remove(front)
			w.canceled = true
			s.queuedMemory -= w.size
			w.err <- ErrBackPressureDropped
		}
		// fall through to enqueue
	case StrategySuspend:
		// fall through to enqueue unconditionally (bounded only by
		// blocking — no synchronous rejection).
	}

	w := &waiter{
		size:  size,
		ready: make(chan *Token, 1),
		err:   make(chan error, 1),
	}
	elem := s.queue.PushBack(w)
	s.queuedMemory += size
	s.mu.Unlock()

	select {
	case tok := <-w.ready:
		return tok, nil
	case err := <-w.err:
		return nil, err
	case <-ctx.Done():
		s.mu.Lock()
		if !w.canceled {
			// Still queued: remove ourselves atomically. If we've
			// already been popped (active granted or dropped) by a
			// concurrent release/acquire, one of the other channels
			// holds a value, but ctx.Done() already fired first, so we
			// treat this as a cancellation; a racing grant is released
			// below so its permit is rolled back.
			s.removeWaiterLocked(elem, w)
		}
		s.mu.Unlock()
		// Drain any race-won grant so the permit isn't leaked.
		select {
		case tok := <-w.ready:
			tok.Release()
		default:
		}
		return nil, ErrCancelled
	}
}

// removeWaiterLocked deletes elem from the queue in O(1) via its node
// handle and rolls back its queued memory charge. Caller holds s.mu and
// must have already checked !w.canceled.
func (s *BackPressureSemaphore) removeWaiterLocked(elem *list.Element, w *waiter) {
	s.queue.Remove(elem)
	s.queuedMemory -= w.size
	w.canceled = true
}

// release decrements active and wakes waiters strictly FIFO while slots
// remain.
func (s *BackPressureSemaphore) release(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active > 0 {
		s.active--
	}

	for s.active < s.maxConcurrency {
		front := s.queue.Front()
		if front == nil {
			return
		}
		w := front.Value.(*waiter)
		s.queue.Remove(front)
		s.queuedMemory -= w.size
		w.canceled = true
		s.active++
		w.ready <- &Token{sem: s, size: w.size}
	}
}

// Active returns the current number of granted, unreleased permits.
func (s *BackPressureSemaphore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Queued returns the current number of suspended waiters.
func (s *BackPressureSemaphore) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Outstanding returns Active()+Queued().
func (s *BackPressureSemaphore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active + s.queue.Len()
}
