package recorder

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func rec(commandType string, success bool, start time.Time) ExecutionRecord {
	return ExecutionRecord{
		ID:          uuid.New(),
		CommandType: commandType,
		Start:       start,
		End:         start.Add(10 * time.Millisecond),
		Success:     success,
	}
}

func TestRecordTrimsOldestFirst(t *testing.T) {
	r := New(2)
	base := time.Now()
	first := rec("A", true, base)
	second := rec("B", true, base.Add(time.Second))
	third := rec("C", true, base.Add(2*time.Second))

	r.Record(first)
	r.Record(second)
	r.Record(third)

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2 (bounded to maxRecords)", len(all))
	}
	if all[0].CommandType != "B" || all[1].CommandType != "C" {
		t.Fatalf("All() = %+v, want [B, C] oldest-first after trimming A", all)
	}
	if _, ok := r.ByID(first.ID); ok {
		t.Fatal("trimmed record A should not be found by ByID")
	}
}

func TestStatsPreservesLifetimeCountersAcrossClear(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Record(rec("A", true, base))
	r.Record(rec("A", false, base.Add(time.Second)))

	r.Clear()
	if len(r.All()) != 0 {
		t.Fatalf("All() after Clear = %v, want empty", r.All())
	}
	stats := r.Stats()
	if stats.TotalRecorded != 2 || stats.TotalSuccess != 1 || stats.TotalFailure != 1 {
		t.Fatalf("stats after Clear = %+v, want lifetime counters preserved", stats)
	}
}

func TestResetZeroesLifetimeCounters(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Record(rec("A", true, base))
	r.Reset()

	stats := r.Stats()
	if stats.TotalRecorded != 0 || stats.CurrentCount != 0 {
		t.Fatalf("stats after Reset = %+v, want all zero", stats)
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Record(rec("A", true, base))
	r.Record(rec("B", true, base.Add(time.Second)))
	r.Record(rec("C", true, base.Add(2*time.Second)))

	recent := r.Recent(2)
	if len(recent) != 2 || recent[0].CommandType != "C" || recent[1].CommandType != "B" {
		t.Fatalf("Recent(2) = %+v, want [C, B]", recent)
	}
}

func TestFailuresAndSuccessesFilter(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Record(rec("A", true, base))
	r.Record(rec("A", false, base.Add(time.Second)))
	r.Record(rec("A", false, base.Add(2*time.Second)))

	if got := len(r.Failures(0)); got != 2 {
		t.Fatalf("len(Failures) = %d, want 2", got)
	}
	if got := len(r.Successes(0)); got != 1 {
		t.Fatalf("len(Successes) = %d, want 1", got)
	}
}

func TestExecutionsWithCorrelationID(t *testing.T) {
	r := New(10)
	base := time.Now()
	a := rec("A", true, base)
	a.CorrelationID = "corr-1"
	b := rec("A", true, base.Add(time.Second))
	b.CorrelationID = "corr-2"
	r.Record(a)
	r.Record(b)

	got := r.ExecutionsWithCorrelationID("corr-1")
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("ExecutionsWithCorrelationID(corr-1) = %+v, want [a]", got)
	}
}

func TestStatsAverageDuration(t *testing.T) {
	r := New(10)
	base := time.Now()
	r.Record(rec("A", true, base))
	r.Record(rec("A", true, base.Add(time.Second)))

	stats := r.Stats()
	if stats.AverageDuration != 10*time.Millisecond {
		t.Fatalf("AverageDuration = %v, want 10ms", stats.AverageDuration)
	}
	if rate := stats.SuccessRate(); rate != 1 {
		t.Fatalf("SuccessRate = %f, want 1", rate)
	}
}
