package semaphore

import "errors"

// Sentinel errors surfaced by Acquire. Compare with errors.Is.
var (
	// ErrBackPressureFull is returned under StrategyDropNewest when the
	// queue is saturated.
	ErrBackPressureFull = errors.New("semaphore: back-pressure limit reached")
	// ErrQueueFull is returned under StrategyError when the queue is
	// saturated; distinct from ErrBackPressureFull so callers can tell
	// the two overflow strategies apart deterministically.
	ErrQueueFull = errors.New("semaphore: outstanding queue is full")
	// ErrBackPressureDropped is returned to a waiter evicted under
	// StrategyDropOldest to admit a newer caller.
	ErrBackPressureDropped = errors.New("semaphore: waiter dropped to admit a newer request")
	// ErrCancelled is returned when ctx is done while a caller is
	// suspended in the wait queue.
	ErrCancelled = errors.New("semaphore: acquire cancelled")
)
