package objpool

import (
	"sync"
	"sync/atomic"
)

// closed marks a pool as torn down: Release becomes a no-op (item dropped)
// rather than true Go weak-pointer semantics, which the language doesn't
// expose for arbitrary GC'd values. This gives PooledObject the same
// externally observable contract spec §4.3.2 describes ("weak reference;
// if the pool is already destroyed, the object is simply dropped") without
// needing reference-counted pool lifetimes.
//
// Shutdown marks the pool closed; any PooledObject whose Release runs
// afterward drops its item instead of returning it.
func (p *ObjectPool[T]) Shutdown() {
	atomic.StoreInt32(&p.closed, 1)
}

func (p *ObjectPool[T]) isClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// PooledObject is an RAII wrapper owning a T on loan from a specific pool.
// Release returns the item to the pool at most once, guarded by a
// monotonic isReturned flag under a small mutex — a second Release call,
// including one racing with the first, is a safe no-op.
type PooledObject[T any] struct {
	pool       *ObjectPool[T]
	value      T
	mu         sync.Mutex
	isReturned bool
}

func newPooledObject[T any](pool *ObjectPool[T], value T) *PooledObject[T] {
	return &PooledObject[T]{pool: pool, value: value}
}

// Value returns the loaned item.
func (p *PooledObject[T]) Value() T { return p.value }

// Release returns the item to its origin pool exactly once. If the pool has
// since been shut down, the item is simply dropped. Safe to call multiple
// times or concurrently; only the first call has effect.
func (p *PooledObject[T]) Release() {
	p.mu.Lock()
	if p.isReturned {
		p.mu.Unlock()
		return
	}
	p.isReturned = true
	p.mu.Unlock()

	if p.pool.isClosed() {
		return
	}
	p.pool.Release(p.value)
}

// IsReturned reports whether Release has already run.
func (p *PooledObject[T]) IsReturned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isReturned
}
