// Package memorypressure implements the singleton memory-pressure signal
// distributor from spec §4.7: clients register idempotent handlers keyed by
// UUID, and a level transition fans out to all of them concurrently
// without the detector waiting on handler completion.
package memorypressure

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level is the three-way memory-pressure signal.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Handler is invoked on every level transition. Handlers must be
// idempotent and must not block the detector — Notify invokes them
// concurrently and does not wait for completion.
type Handler func(level Level)

// Detector is a process-wide singleton distributing memory-pressure level
// transitions to registered handlers. Use New for an isolated instance in
// tests; Default for the process-wide singleton.
type Detector struct {
	mu       sync.RWMutex
	level    Level
	handlers map[uuid.UUID]Handler
	logger   zerolog.Logger
}

// New constructs an isolated Detector, starting at Level Normal.
func New(logger zerolog.Logger) *Detector {
	return &Detector{
		level:    Normal,
		handlers: make(map[uuid.UUID]Handler),
		logger:   logger,
	}
}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Default returns the process-wide Detector singleton, constructing it
// lazily with a no-op logger on first use.
func Default() *Detector {
	defaultOnce.Do(func() {
		defaultDetector = New(zerolog.Nop())
	})
	return defaultDetector
}

// Register subscribes handler to level transitions, returning an ID usable
// with Unregister.
func (d *Detector) Register(handler Handler) uuid.UUID {
	id := uuid.New()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = handler
	return id
}

// Unregister removes a previously registered handler.
func (d *Detector) Unregister(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
}

// Level returns the current pressure level.
func (d *Detector) Level() Level {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.level
}

// Notify transitions the detector to level and fans out to every
// registered handler concurrently, regardless of whether level actually
// changed — callers (OS pressure notifications, or a test harness
// simulating one) decide when to call it. Notify does not wait for
// handlers to finish.
func (d *Detector) Notify(level Level) {
	d.mu.Lock()
	d.level = level
	handlers := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	d.logger.Debug().Str("level", level.String()).Int("handlers", len(handlers)).Msg("memorypressure: notifying")

	for _, h := range handlers {
		go func(h Handler) {
			h(level)
		}(h)
	}
}
