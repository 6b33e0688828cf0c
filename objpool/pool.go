// Package objpool implements the bounded, reusable-object pool described
// in spec §4.3: RAII return via PooledObject, hit/miss statistics,
// high/low water marks, and a process-wide registry supporting
// memory-pressure-driven shrinking.
package objpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Config configures an ObjectPool[T].
type Config[T any] struct {
	Name      string
	MaxSize   int
	HighWater int // defaults to 80% of MaxSize when 0
	LowWater  int // defaults to 20% of MaxSize when 0
	Factory   func() T
	Reset     func(T)
	Logger    zerolog.Logger
}

// Statistics is an immutable snapshot of an ObjectPool's lifetime and
// current counters.
type Statistics struct {
	Name               string
	TotalAllocated     int64
	CurrentlyAvailable int
	CurrentlyInUse     int
	MaxSize            int
	Acquisitions       int64
	Releases           int64
	Hits               int64
	Misses             int64
	Evictions          int64
	PeakUsage          int64
}

// HitRate returns Hits/Acquisitions, or 0 when there have been no
// acquisitions yet.
func (s Statistics) HitRate() float64 {
	if s.Acquisitions == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Acquisitions)
}

// Efficiency returns Acquisitions/TotalAllocated — average reuses per
// allocation, per spec §9's explicit formula choice (not the
// percentage-of-saved-allocations variant).
func (s Statistics) Efficiency() float64 {
	if s.TotalAllocated == 0 {
		return 0
	}
	return float64(s.Acquisitions) / float64(s.TotalAllocated)
}

// ObjectPool is a bounded reservoir of reusable T values. An internal size
// semaphore bounds the number of items on loan (in use) to MaxSize, and the
// available stack is separately capped at MaxSize; acquire blocks until a
// slot is free, then either pops an available item (hit) or calls Factory
// (miss).
type ObjectPool[T any] struct {
	name      string
	maxSize   int
	highWater int
	lowWater  int
	factory   func() T
	reset     func(T)
	logger    zerolog.Logger

	sizeSem chan struct{} // buffered to maxSize; one token == one in-circulation slot

	mu        sync.Mutex
	available []T

	totalAllocated int64
	acquisitions   int64
	releases       int64
	hits           int64
	misses         int64
	evictions      int64
	peakUsage      int64
	inUse          int64
	closed         int32
}

// New constructs an ObjectPool. Validates max_size > 0 and
// 0 <= low_water <= high_water <= max_size, applying the spec §6 defaults
// (80%/20% of max_size) when HighWater/LowWater are left at 0.
func New[T any](cfg Config[T]) (*ObjectPool[T], error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("objpool: max_size must be positive, got %d", cfg.MaxSize)
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("objpool: factory is required")
	}
	high := cfg.HighWater
	if high == 0 {
		high = (cfg.MaxSize * 80) / 100
		if high == 0 {
			high = cfg.MaxSize
		}
	}
	low := cfg.LowWater
	if low == 0 {
		low = (cfg.MaxSize * 20) / 100
	}
	if low > high || high > cfg.MaxSize || low < 0 {
		return nil, fmt.Errorf("objpool: invariant violated, need 0 <= low_water(%d) <= high_water(%d) <= max_size(%d)", low, high, cfg.MaxSize)
	}

	reset := cfg.Reset
	if reset == nil {
		reset = func(T) {}
	}

	p := &ObjectPool[T]{
		name:      cfg.Name,
		maxSize:   cfg.MaxSize,
		highWater: high,
		lowWater:  low,
		factory:   cfg.Factory,
		reset:     reset,
		logger:    cfg.Logger,
		sizeSem:   make(chan struct{}, cfg.MaxSize),
	}
	for i := 0; i < cfg.MaxSize; i++ {
		p.sizeSem <- struct{}{}
	}
	return p, nil
}

// Acquire waits for a size-permit then returns an item, either popped from
// the available stack (hit) or newly constructed (miss).
func (p *ObjectPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-p.sizeSem:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	atomic.AddInt64(&p.acquisitions, 1)

	p.mu.Lock()
	n := len(p.available)
	if n > 0 {
		item := p.available[n-1]
		p.available = p.available[:n-1]
		p.mu.Unlock()
		atomic.AddInt64(&p.hits, 1)
		inUse := atomic.AddInt64(&p.inUse, 1)
		p.bumpPeak(inUse)
		return item, nil
	}
	p.mu.Unlock()

	atomic.AddInt64(&p.misses, 1)
	atomic.AddInt64(&p.totalAllocated, 1)
	item := p.factory()
	inUse := atomic.AddInt64(&p.inUse, 1)
	p.bumpPeak(inUse)
	return item, nil
}

func (p *ObjectPool[T]) bumpPeak(inUse int64) {
	for {
		peak := atomic.LoadInt64(&p.peakUsage)
		if inUse <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&p.peakUsage, peak, inUse) {
			return
		}
	}
}

// Release resets item and returns it to the pool, evicting it instead when
// the available stack is already at max_size. Always signals the size
// semaphore so a waiting Acquire can proceed.
func (p *ObjectPool[T]) Release(item T) {
	p.reset(item)
	atomic.AddInt64(&p.releases, 1)
	atomic.AddInt64(&p.inUse, -1)

	p.mu.Lock()
	if len(p.available) < p.maxSize {
		p.available = append(p.available, item)
		p.mu.Unlock()
	} else {
		p.mu.Unlock()
		atomic.AddInt64(&p.evictions, 1)
	}

	select {
	case p.sizeSem <- struct{}{}:
	default:
		// Should not happen under correct accounting, but never block a
		// release.
		p.logger.Warn().Str("pool", p.name).Msg("objpool: size semaphore already full on release")
	}
}

// AcquirePooled returns a PooledObject RAII wrapper around an acquired
// item; its Release is the only path back to the pool. No finalizer is
// installed, so a wrapper that is never released does not return its item.
func (p *ObjectPool[T]) AcquirePooled(ctx context.Context) (*PooledObject[T], error) {
	item, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return newPooledObject(p, item), nil
}

// Preallocate populates up to min(n, max_size) items via Factory so early
// acquisitions are hits.
func (p *ObjectPool[T]) Preallocate(n int) {
	if n > p.maxSize {
		n = p.maxSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.available) < n {
		select {
		case <-p.sizeSem:
		default:
			return
		}
		atomic.AddInt64(&p.totalAllocated, 1)
		p.available = append(p.available, p.factory())
		p.sizeSem <- struct{}{}
	}
}

// ShrinkTo removes surplus available items so len(available) <= target.
// Returns the number evicted.
func (p *ObjectPool[T]) ShrinkTo(target int) int {
	if target < 0 {
		target = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.available)
	if n <= target {
		return 0
	}
	evicted := n - target
	p.available = p.available[:target]
	atomic.AddInt64(&p.evictions, int64(evicted))
	return evicted
}

// ShrinkToPercentage shrinks available to p*max_size, clamping p to [0,1].
func (p *ObjectPool[T]) ShrinkToPercentage(pct float64) int {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	target := int(float64(p.maxSize) * pct)
	return p.ShrinkTo(target)
}

// Clear empties the available stack, preserving lifetime stats and slice
// capacity.
func (p *ObjectPool[T]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.available)
	p.available = p.available[:0]
	if n > 0 {
		atomic.AddInt64(&p.evictions, int64(n))
	}
}

// Statistics returns an immutable snapshot of the pool's counters.
func (p *ObjectPool[T]) Statistics() Statistics {
	p.mu.Lock()
	avail := len(p.available)
	p.mu.Unlock()

	return Statistics{
		Name:               p.name,
		TotalAllocated:     atomic.LoadInt64(&p.totalAllocated),
		CurrentlyAvailable: avail,
		CurrentlyInUse:     int(atomic.LoadInt64(&p.inUse)),
		MaxSize:            p.maxSize,
		Acquisitions:       atomic.LoadInt64(&p.acquisitions),
		Releases:           atomic.LoadInt64(&p.releases),
		Hits:               atomic.LoadInt64(&p.hits),
		Misses:             atomic.LoadInt64(&p.misses),
		Evictions:          atomic.LoadInt64(&p.evictions),
		PeakUsage:          atomic.LoadInt64(&p.peakUsage),
	}
}

// Name returns the pool's configured name.
func (p *ObjectPool[T]) Name() string { return p.name }

// LowWater returns the configured low-water mark.
func (p *ObjectPool[T]) LowWater() int { return p.lowWater }

// HighWater returns the configured high-water mark.
func (p *ObjectPool[T]) HighWater() int { return p.highWater }

// MaxSize returns the configured max size.
func (p *ObjectPool[T]) MaxSize() int { return p.maxSize }
