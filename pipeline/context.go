package pipeline

import (
	"sync"
	"time"
)

// ContextKey is a process-unique, type-safe key for CommandContext storage.
// Two ContextKey[V] values compare equal only when they are the same
// variable; declare one package-level ContextKey per logical slot.
type ContextKey[V any] struct {
	name string
}

// NewContextKey creates a new, distinct ContextKey[V]. name is used only for
// diagnostics (String()); identity is the pointer/value itself, not the
// name.
func NewContextKey[V any](name string) *ContextKey[V] {
	return &ContextKey[V]{name: name}
}

func (k *ContextKey[V]) String() string { return k.name }

// inline slot identities — the five hottest keys observed in middleware
// chains (spec §4.1 rationale). Every CommandContext stores these directly
// in struct fields instead of the map, avoiding map overhead on the hot
// path. They are exported as *ContextKey[string]/*ContextKey[time.Time] so
// Get/Set can recognize them by pointer identity.
var (
	RequestIDKey     = NewContextKey[string]("request_id")
	UserIDKey        = NewContextKey[string]("user_id")
	StartTimeKey     = NewContextKey[time.Time]("start_time")
	CorrelationIDKey = NewContextKey[string]("correlation_id")
	TraceIDKey       = NewContextKey[string]("trace_id")
)

// CommandContext is mutable, per-invocation, thread-safe state threaded
// through a pipeline execution: immutable metadata plus a typed key/value
// bag with five inline fast-path slots for the hottest keys.
//
// All access is serialized by an internal mutex; Clear replaces storage
// wholesale while preserving metadata. A CommandContext may be borrowed
// from a ContextPool and returned on Reset for reuse.
type CommandContext struct {
	mu       sync.Mutex
	metadata CommandMetadata

	// inline fast-path slots
	requestIDSet     bool
	requestID        string
	userIDSet        bool
	userID           string
	startTimeSet     bool
	startTime        time.Time
	correlationIDSet bool
	correlationID    string
	traceIDSet       bool
	traceID          string

	// cold-path storage, lazily allocated
	storage map[any]any
}

// NewContext creates a CommandContext with empty storage, seeding inline
// slots from metadata when present.
func NewContext(metadata CommandMetadata) *CommandContext {
	c := &CommandContext{metadata: metadata}
	if metadata.HasUserID() {
		c.userIDSet = true
		c.userID = metadata.UserID
	}
	if metadata.HasCorrelationID() {
		c.correlationIDSet = true
		c.correlationID = metadata.CorrelationID
	}
	return c
}

// Metadata returns the context's immutable metadata.
func (c *CommandContext) Metadata() CommandMetadata {
	return c.metadata
}

// ContextGet retrieves a typed value for key from ctx. The zero value and
// false are returned when absent.
func ContextGet[V any](c *CommandContext, key *ContextKey[V]) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch any(key) {
	case any(RequestIDKey):
		if c.requestIDSet {
			return any(c.requestID).(V), true
		}
		var zero V
		return zero, false
	case any(UserIDKey):
		if c.userIDSet {
			return any(c.userID).(V), true
		}
		var zero V
		return zero, false
	case any(StartTimeKey):
		if c.startTimeSet {
			return any(c.startTime).(V), true
		}
		var zero V
		return zero, false
	case any(CorrelationIDKey):
		if c.correlationIDSet {
			return any(c.correlationID).(V), true
		}
		var zero V
		return zero, false
	case any(TraceIDKey):
		if c.traceIDSet {
			return any(c.traceID).(V), true
		}
		var zero V
		return zero, false
	}

	if c.storage == nil {
		var zero V
		return zero, false
	}
	v, ok := c.storage[key]
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// ContextSet stores value under key, writing the matching inline slot for
// the five well-known keys and lazily allocating the map otherwise.
func ContextSet[V any](c *CommandContext, key *ContextKey[V], value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch any(key) {
	case any(RequestIDKey):
		c.requestIDSet = true
		c.requestID = any(value).(string)
		return
	case any(UserIDKey):
		c.userIDSet = true
		c.userID = any(value).(string)
		return
	case any(StartTimeKey):
		c.startTimeSet = true
		c.startTime = any(value).(time.Time)
		return
	case any(CorrelationIDKey):
		c.correlationIDSet = true
		c.correlationID = any(value).(string)
		return
	case any(TraceIDKey):
		c.traceIDSet = true
		c.traceID = any(value).(string)
		return
	}

	if c.storage == nil {
		c.storage = make(map[any]any)
	}
	c.storage[key] = value
}

// ContextRemove deletes the value stored under key, if any.
func ContextRemove[V any](c *CommandContext, key *ContextKey[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch any(key) {
	case any(RequestIDKey):
		c.requestIDSet = false
		var zero string
		c.requestID = zero
		return
	case any(UserIDKey):
		c.userIDSet = false
		var zero string
		c.userID = zero
		return
	case any(StartTimeKey):
		c.startTimeSet = false
		var zero time.Time
		c.startTime = zero
		return
	case any(CorrelationIDKey):
		c.correlationIDSet = false
		var zero string
		c.correlationID = zero
		return
	case any(TraceIDKey):
		c.traceIDSet = false
		var zero string
		c.traceID = zero
		return
	}

	if c.storage != nil {
		delete(c.storage, key)
	}
}

// Clear empties storage, preserving metadata. Every inline slot is unset,
// including those NewContext seeded from metadata. Used when a context is
// returned to a ContextPool for reuse: clears cold-path data but keeps the
// map allocation (entries are deleted in place) to avoid a realloc on the
// next borrow.
func (c *CommandContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *CommandContext) clearLocked() {
	c.requestIDSet = false
	c.userIDSet = false
	c.startTimeSet = false
	c.correlationIDSet = false
	c.traceIDSet = false
	var zeroStr string
	var zeroTime time.Time
	c.requestID, c.userID, c.correlationID, c.traceID = zeroStr, zeroStr, zeroStr, zeroStr
	c.startTime = zeroTime
	for k := range c.storage {
		delete(c.storage, k)
	}
}

// reset reinitializes the context for a new borrow from a pool: clears all
// state and installs fresh metadata, re-seeding inline slots from it.
func (c *CommandContext) reset(metadata CommandMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.metadata = metadata
	if metadata.HasUserID() {
		c.userIDSet = true
		c.userID = metadata.UserID
	}
	if metadata.HasCorrelationID() {
		c.correlationIDSet = true
		c.correlationID = metadata.CorrelationID
	}
}

// Snapshot is an immutable point-in-time copy of a CommandContext's
// storage, safe to hand off across goroutines/tasks without further
// synchronization.
type Snapshot struct {
	Metadata      CommandMetadata
	RequestID     *string
	UserID        *string
	StartTime     *time.Time
	CorrelationID *string
	TraceID       *string
	Extra         map[any]any
}

// Snapshot returns an immutable copy of the context's current state.
func (c *CommandContext) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Metadata: c.metadata}
	if c.requestIDSet {
		v := c.requestID
		s.RequestID = &v
	}
	if c.userIDSet {
		v := c.userID
		s.UserID = &v
	}
	if c.startTimeSet {
		v := c.startTime
		s.StartTime = &v
	}
	if c.correlationIDSet {
		v := c.correlationID
		s.CorrelationID = &v
	}
	if c.traceIDSet {
		v := c.traceID
		s.TraceID = &v
	}
	if len(c.storage) > 0 {
		s.Extra = make(map[any]any, len(c.storage))
		for k, v := range c.storage {
			s.Extra[k] = v
		}
	}
	return s
}

// Keys returns the union of set inline slots and cold-path map keys. Each
// entry is the *ContextKey value itself (the exported inline-slot keys such
// as RequestIDKey, or the key used with ContextSet), not its name.
func (c *CommandContext) Keys() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]any, 0, len(c.storage)+5)
	if c.requestIDSet {
		keys = append(keys, RequestIDKey)
	}
	if c.userIDSet {
		keys = append(keys, UserIDKey)
	}
	if c.startTimeSet {
		keys = append(keys, StartTimeKey)
	}
	if c.correlationIDSet {
		keys = append(keys, CorrelationIDKey)
	}
	if c.traceIDSet {
		keys = append(keys, TraceIDKey)
	}
	for k := range c.storage {
		keys = append(keys, k)
	}
	return keys
}
