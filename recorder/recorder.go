// Package recorder implements spec §4.6: pipeline structural
// introspection (Description/Trace/Compare) and a bounded in-memory
// execution recorder.
package recorder

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord captures one completed pipeline execution.
type ExecutionRecord struct {
	ID            uuid.UUID
	CommandType   string
	CommandID     uuid.UUID
	CorrelationID string
	Start         time.Time
	End           time.Time
	Success       bool
	ErrorKind     string
	ErrorMessage  string
	MiddlewareTrace []string
	Metadata      map[string]string
}

// Duration returns End.Sub(Start).
func (r ExecutionRecord) Duration() time.Duration { return r.End.Sub(r.Start) }

// Stats is an aggregate snapshot over everything a Recorder has ever seen,
// including records already trimmed from the bounded ring.
type Stats struct {
	CurrentCount     int
	TotalRecorded    int64
	TotalSuccess     int64
	TotalFailure     int64
	CommandTypeCount int
	AverageDuration  time.Duration
}

// SuccessRate returns TotalSuccess/TotalRecorded, or 0 if nothing recorded.
func (s Stats) SuccessRate() float64 {
	if s.TotalRecorded == 0 {
		return 0
	}
	return float64(s.TotalSuccess) / float64(s.TotalRecorded)
}

// FailureRate returns TotalFailure/TotalRecorded, or 0 if nothing recorded.
func (s Stats) FailureRate() float64 {
	if s.TotalRecorded == 0 {
		return 0
	}
	return float64(s.TotalFailure) / float64(s.TotalRecorded)
}

// Recorder is a bounded, in-memory ring of ExecutionRecords with an index
// by record ID. Lookups by command type, correlation ID, success or failure
// scan the retained records; there is no per-type index or failed-ID set.
// Trimming is
// strictly FIFO oldest-first once MaxRecords is exceeded. Lifetime
// counters (TotalRecorded, TotalSuccess, TotalFailure, total duration) are
// preserved across Clear and only zeroed by Reset.
type Recorder struct {
	mu         sync.Mutex
	maxRecords int

	records []ExecutionRecord // oldest first
	byID    map[uuid.UUID]int // index into records, adjusted on trim

	totalRecorded  int64
	totalSuccess   int64
	totalFailure   int64
	totalDuration  time.Duration
	commandTypeSet map[string]struct{}
}

// New constructs a Recorder bounded to maxRecords (spec §6 default 1000).
func New(maxRecords int) *Recorder {
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &Recorder{
		maxRecords:     maxRecords,
		byID:           make(map[uuid.UUID]int),
		commandTypeSet: make(map[string]struct{}),
	}
}

// Record appends rec, trimming the oldest entry first if the ring is at
// capacity, and updates lifetime counters and indices.
func (r *Recorder) Record(rec ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if len(r.records) > r.maxRecords {
		r.records = r.records[len(r.records)-r.maxRecords:]
	}
	r.rebuildIndexLocked()

	r.totalRecorded++
	if rec.Success {
		r.totalSuccess++
	} else {
		r.totalFailure++
	}
	r.totalDuration += rec.Duration()
	r.commandTypeSet[rec.CommandType] = struct{}{}
}

func (r *Recorder) rebuildIndexLocked() {
	for k := range r.byID {
		delete(r.byID, k)
	}
	for i, rec := range r.records {
		r.byID[rec.ID] = i
	}
}

// Recent returns up to n records, newest-first.
func (r *Recorder) Recent(n int) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.records)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]ExecutionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = r.records[total-1-i]
	}
	return out
}

// All returns every currently retained record, oldest-first.
func (r *Recorder) All() []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExecutionRecord, len(r.records))
	copy(out, r.records)
	return out
}

// ExecutionsForType returns up to n records (newest-first) matching
// commandType.
func (r *Recorder) ExecutionsForType(commandType string, n int) []ExecutionRecord {
	return r.filterNewestFirst(n, func(rec ExecutionRecord) bool {
		return rec.CommandType == commandType
	})
}

// Failures returns up to n failed records, newest-first.
func (r *Recorder) Failures(n int) []ExecutionRecord {
	return r.filterNewestFirst(n, func(rec ExecutionRecord) bool { return !rec.Success })
}

// Successes returns up to n successful records, newest-first.
func (r *Recorder) Successes(n int) []ExecutionRecord {
	return r.filterNewestFirst(n, func(rec ExecutionRecord) bool { return rec.Success })
}

// ExecutionsBetween returns every currently retained record whose Start
// falls within [from, to], oldest-first.
func (r *Recorder) ExecutionsBetween(from, to time.Time) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ExecutionRecord
	for _, rec := range r.records {
		if !rec.Start.Before(from) && !rec.Start.After(to) {
			out = append(out, rec)
		}
	}
	return out
}

// ExecutionsWithCorrelationID returns every currently retained record with
// the given correlation ID, oldest-first.
func (r *Recorder) ExecutionsWithCorrelationID(correlationID string) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ExecutionRecord
	for _, rec := range r.records {
		if rec.CorrelationID == correlationID {
			out = append(out, rec)
		}
	}
	return out
}

// ByID looks up a single record by ID, if still retained.
func (r *Recorder) ByID(id uuid.UUID) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return r.records[idx], true
}

func (r *Recorder) filterNewestFirst(n int, pred func(ExecutionRecord) bool) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ExecutionRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if pred(r.records[i]) {
			out = append(out, r.records[i])
			if n > 0 && len(out) == n {
				break
			}
		}
	}
	return out
}

// Stats returns an aggregate snapshot, including lifetime counters
// unaffected by Clear.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var avg time.Duration
	if r.totalRecorded > 0 {
		avg = r.totalDuration / time.Duration(r.totalRecorded)
	}
	return Stats{
		CurrentCount:     len(r.records),
		TotalRecorded:    r.totalRecorded,
		TotalSuccess:     r.totalSuccess,
		TotalFailure:     r.totalFailure,
		CommandTypeCount: len(r.commandTypeSet),
		AverageDuration:  avg,
	}
}

// Clear empties the current ring (All/Recent/ByID return nothing
// afterward) while preserving lifetime counters.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = r.records[:0]
	for k := range r.byID {
		delete(r.byID, k)
	}
}

// Reset zeroes everything, including lifetime counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.byID = make(map[uuid.UUID]int)
	r.commandTypeSet = make(map[string]struct{})
	r.totalRecorded, r.totalSuccess, r.totalFailure, r.totalDuration = 0, 0, 0, 0
}
