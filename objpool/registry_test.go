package objpool

import (
	"context"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *PoolRegistry {
	t.Helper()
	r := NewRegistry(RegistryConfig{
		MinShrinkInterval:           50 * time.Millisecond,
		IntelligentShrinkingEnabled: true,
	})
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistryAggregatedStatistics(t *testing.T) {
	r := newTestRegistry(t)

	poolA := newPoolT(t, 4)
	poolA.Preallocate(2)
	poolB := newPoolT(t, 6)
	poolB.Preallocate(3)

	r.Register(poolA)
	r.Register(poolB)

	agg := r.AggregatedStatistics()
	if agg.MaxSize != 10 {
		t.Fatalf("MaxSize = %d, want 10", agg.MaxSize)
	}
	if agg.CurrentlyAvailable != 5 {
		t.Fatalf("CurrentlyAvailable = %d, want 5", agg.CurrentlyAvailable)
	}
}

func TestRegistryUnregisterRemovesPool(t *testing.T) {
	r := newTestRegistry(t)
	pool := newPoolT(t, 2)
	id := r.Register(pool)

	if len(r.AllStatistics()) != 1 {
		t.Fatalf("expected 1 registered pool")
	}
	r.Unregister(id)
	if len(r.AllStatistics()) != 0 {
		t.Fatalf("expected 0 registered pools after Unregister")
	}
}

func TestShrinkThrottling(t *testing.T) {
	r := NewRegistry(RegistryConfig{MinShrinkInterval: time.Hour})
	t.Cleanup(r.Shutdown)

	pool := newPoolT(t, 10)
	pool.Preallocate(10)
	r.Register(pool)

	evicted := r.ShrinkAllToPercentage(0.2, false)
	if evicted != 8 {
		t.Fatalf("first shrink evicted = %d, want 8", evicted)
	}

	evicted = r.ShrinkAllToPercentage(0.0, false)
	if evicted != 0 {
		t.Fatalf("throttled shrink evicted = %d, want 0", evicted)
	}
	if r.ThrottledCount() != 1 {
		t.Fatalf("ThrottledCount = %d, want 1", r.ThrottledCount())
	}

	evicted = r.ShrinkAllToPercentage(0.0, true)
	if evicted != 2 {
		t.Fatalf("forced shrink evicted = %d, want 2", evicted)
	}
}

func TestShrinkAllIntelligentlyFallsBackWithoutHistory(t *testing.T) {
	r := newTestRegistry(t)
	pool := newPoolT(t, 10)
	pool.Preallocate(10)
	r.Register(pool)

	r.ShrinkAllIntelligently(PressureCritical, true)
	if got := pool.Statistics().CurrentlyAvailable; got != 2 {
		t.Fatalf("CurrentlyAvailable = %d, want 2 (25%% fallback of 10) with no demand history", got)
	}
}

func TestShrinkAllIntelligentlyUsesDemandHistory(t *testing.T) {
	r := newTestRegistry(t)
	pool := newPoolT(t, 10)
	pool.Preallocate(10)
	r.Register(pool)

	for i := 0; i < 5; i++ {
		w, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		r.RecordDemand(pool.Name())
		pool.Release(w)
	}

	r.ShrinkAllIntelligently(PressureNormal, true)
	stats := pool.Statistics()
	if stats.CurrentlyAvailable < pool.LowWater() || stats.CurrentlyAvailable > pool.HighWater() {
		t.Fatalf("CurrentlyAvailable = %d, want within [%d,%d]", stats.CurrentlyAvailable, pool.LowWater(), pool.HighWater())
	}
}

func TestHandleMemoryPressureTriggersShrink(t *testing.T) {
	r := newTestRegistry(t)
	pool := newPoolT(t, 10)
	pool.Preallocate(10)
	r.Register(pool)

	r.HandleMemoryPressure(PressureCritical)
	if got := pool.Statistics().CurrentlyAvailable; got >= 10 {
		t.Fatalf("CurrentlyAvailable = %d, expected shrink below initial 10", got)
	}
}

func TestShrinkPoolByNameReturnsNegativeOneWhenMissing(t *testing.T) {
	r := newTestRegistry(t)
	if got := r.ShrinkPool("nonexistent", 0, true); got != -1 {
		t.Fatalf("ShrinkPool for missing name = %d, want -1", got)
	}
}
