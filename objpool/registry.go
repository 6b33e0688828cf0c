package objpool

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool is the type-erased surface of ObjectPool[T] the registry needs:
// every concrete ObjectPool[T] satisfies it structurally, no adapter
// required.
type Pool interface {
	Name() string
	Statistics() Statistics
	LowWater() int
	HighWater() int
	MaxSize() int
	ShrinkTo(target int) int
	ShrinkToPercentage(pct float64) int
}

// RegistryConfig holds the process-wide, thread-safe knobs spec §4.3.3
// names.
type RegistryConfig struct {
	MetricsEnabledByDefault    bool
	CleanupInterval            time.Duration
	MinShrinkInterval          time.Duration
	IntelligentShrinkingEnabled bool
	Logger                     zerolog.Logger
}

// DefaultRegistryConfig returns spec §6's defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MetricsEnabledByDefault:    false,
		CleanupInterval:            30 * time.Second,
		MinShrinkInterval:          10 * time.Second,
		IntelligentShrinkingEnabled: true,
	}
}

type registeredPool struct {
	pool           Pool
	lastShrink     time.Time
	demandHistory  []int // recent CurrentlyInUse samples, most recent last
}

// PoolRegistry is a process-wide registry of live pools. It throttles
// shrink requests per pool to MinShrinkInterval unless forced. It holds
// ordinary (strong) references: Go has no true weak maps for arbitrary
// interface values, so an entry is removed only by an explicit Unregister
// call, and the periodic cleanup tick does no pruning (see DESIGN.md's
// objpool notes).
type PoolRegistry struct {
	mu      sync.Mutex
	pools   map[uuid.UUID]*registeredPool
	cfg     RegistryConfig
	logger  zerolog.Logger

	throttledCount int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry constructs a PoolRegistry and starts its background cleanup
// sweeper. Call Shutdown to stop it (tests should always do this).
func NewRegistry(cfg RegistryConfig) *PoolRegistry {
	r := &PoolRegistry{
		pools:  make(map[uuid.UUID]*registeredPool),
		cfg:    cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		r.wg.Add(1)
		go r.sweepLoop()
	}
	return r
}

func (r *PoolRegistry) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Sweeping is a no-op beyond bookkeeping since registered
			// pools are only removed via explicit Unregister; the tick
			// exists as the hook point a real weak-map implementation
			// would use to prune dead entries.
		case <-r.stopCh:
			return
		}
	}
}

// Shutdown stops the background cleanup sweeper. Safe to call once.
func (r *PoolRegistry) Shutdown() {
	close(r.stopCh)
	r.wg.Wait()
}

// Register adds pool to the registry under a fresh ID, returning that ID
// for later Unregister calls.
func (r *PoolRegistry) Register(pool Pool) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[id] = &registeredPool{pool: pool}
	return id
}

// Unregister removes a pool from the registry, callable from a pool's own
// teardown path.
func (r *PoolRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, id)
}

// AllStatistics returns every registered pool's statistics keyed by name.
func (r *PoolRegistry) AllStatistics() map[string]Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Statistics, len(r.pools))
	for _, rp := range r.pools {
		stats := rp.pool.Statistics()
		out[stats.Name] = stats
	}
	return out
}

// AggregatedStatistics sums counters across every registered pool.
func (r *PoolRegistry) AggregatedStatistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	var agg Statistics
	for _, rp := range r.pools {
		s := rp.pool.Statistics()
		agg.TotalAllocated += s.TotalAllocated
		agg.CurrentlyAvailable += s.CurrentlyAvailable
		agg.CurrentlyInUse += s.CurrentlyInUse
		agg.MaxSize += s.MaxSize
		agg.Acquisitions += s.Acquisitions
		agg.Releases += s.Releases
		agg.Hits += s.Hits
		agg.Misses += s.Misses
		agg.Evictions += s.Evictions
		if s.PeakUsage > agg.PeakUsage {
			agg.PeakUsage = s.PeakUsage
		}
	}
	return agg
}

// ThrottledCount returns how many shrink requests were silently dropped
// for running inside MinShrinkInterval of the previous shrink on the same
// pool, with force=false.
func (r *PoolRegistry) ThrottledCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.throttledCount
}

// allowShrinkLocked reports whether a shrink on rp may proceed now, updating
// lastShrink and the throttled counter as a side effect. Caller holds r.mu.
func (r *PoolRegistry) allowShrinkLocked(rp *registeredPool, force bool) bool {
	now := time.Now()
	if !force && !rp.lastShrink.IsZero() && now.Sub(rp.lastShrink) < r.cfg.MinShrinkInterval {
		r.throttledCount++
		return false
	}
	rp.lastShrink = now
	return true
}

// ShrinkAllToPercentage shrinks every registered pool's available stack to
// pct*max_size, subject to the per-pool shrink throttle unless force.
func (r *PoolRegistry) ShrinkAllToPercentage(pct float64, force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, rp := range r.pools {
		if !r.allowShrinkLocked(rp, force) {
			continue
		}
		total += rp.pool.ShrinkToPercentage(pct)
	}
	return total
}

// ShrinkPool shrinks the named pool's available stack to size, subject to
// the shrink throttle unless force. Returns the number of items evicted,
// or -1 if no pool with that name is registered.
func (r *PoolRegistry) ShrinkPool(name string, size int, force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rp := range r.pools {
		if rp.pool.Name() == name {
			if !r.allowShrinkLocked(rp, force) {
				return 0
			}
			return rp.pool.ShrinkTo(size)
		}
	}
	return -1
}

// PressureLevel mirrors the memorypressure package's Level without
// importing it, keeping objpool dependency-free of memorypressure.
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureWarning
	PressureCritical
)

// fixed fallback percentages used when a pool has no demand history yet,
// per spec §4.3.3.
func fallbackPercentage(level PressureLevel) float64 {
	switch level {
	case PressureWarning:
		return 0.6
	case PressureCritical:
		return 0.25
	default:
		return 1.0
	}
}

// ShrinkAllIntelligently chooses a per-pool target between low_water and
// high_water informed by recent demand history, falling back to the fixed
// percentages from spec §4.3.3 when a pool has no history yet. Returns the
// total number of items evicted across all pools.
func (r *PoolRegistry) ShrinkAllIntelligently(level PressureLevel, force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, rp := range r.pools {
		if !r.allowShrinkLocked(rp, force) {
			continue
		}
		if !r.cfg.IntelligentShrinkingEnabled || len(rp.demandHistory) == 0 {
			total += rp.pool.ShrinkToPercentage(fallbackPercentage(level))
			continue
		}
		target := intelligentTarget(rp, level)
		total += rp.pool.ShrinkTo(target)
	}
	return total
}

// HandleMemoryPressure adapts a memory-pressure level transition into an
// intelligent shrink pass across every registered pool. Intended to be
// wired as a memorypressure.Handler by a caller that owns both a Detector
// and this PoolRegistry (kept as plain functions here to avoid an import
// cycle between objpool and memorypressure).
func (r *PoolRegistry) HandleMemoryPressure(level PressureLevel) {
	r.ShrinkAllIntelligently(level, false)
}

// RecordDemand appends a CurrentlyInUse sample to the named pool's demand
// history, bounded to a short rolling window, used by ShrinkAllIntelligently.
func (r *PoolRegistry) RecordDemand(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rp := range r.pools {
		if rp.pool.Name() == name {
			stats := rp.pool.Statistics()
			rp.demandHistory = append(rp.demandHistory, stats.CurrentlyInUse)
			const maxHistory = 20
			if len(rp.demandHistory) > maxHistory {
				rp.demandHistory = rp.demandHistory[len(rp.demandHistory)-maxHistory:]
			}
			return
		}
	}
}

// intelligentTarget picks a shrink target between low_water and high_water
// based on the average of recent demand, scaled down under pressure.
func intelligentTarget(rp *registeredPool, level PressureLevel) int {
	sum := 0
	for _, d := range rp.demandHistory {
		sum += d
	}
	avgDemand := sum / len(rp.demandHistory)

	low, high := rp.pool.LowWater(), rp.pool.HighWater()
	target := avgDemand
	switch level {
	case PressureWarning:
		target = (avgDemand + low) / 2
	case PressureCritical:
		target = low
	}
	if target < low {
		target = low
	}
	if target > high {
		target = high
	}
	return target
}
