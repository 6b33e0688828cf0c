package memorypressure

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNotifyFansOutToRegisteredHandlers(t *testing.T) {
	d := New(zerolog.Nop())

	var mu sync.Mutex
	received := make([]Level, 0, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	d.Register(func(level Level) {
		defer wg.Done()
		mu.Lock()
		received = append(received, level)
		mu.Unlock()
	})
	d.Register(func(level Level) {
		defer wg.Done()
		mu.Lock()
		received = append(received, level)
		mu.Unlock()
	})

	d.Notify(Warning)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handlers to run")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received = %v, want 2 entries", received)
	}
	for _, l := range received {
		if l != Warning {
			t.Fatalf("handler saw %v, want Warning", l)
		}
	}
	if d.Level() != Warning {
		t.Fatalf("Level() = %v, want Warning", d.Level())
	}
}

func TestUnregisterStopsFutureNotifications(t *testing.T) {
	d := New(zerolog.Nop())

	var calls int
	var mu sync.Mutex
	id := d.Register(func(level Level) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	d.Unregister(id)
	d.Notify(Critical)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 after Unregister", calls)
	}
}

func TestLevelStringNames(t *testing.T) {
	cases := map[Level]string{Normal: "normal", Warning: "warning", Critical: "critical"}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", level, got, want)
		}
	}
}

func TestDefaultReturnsSameSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default() should return the same instance across calls")
	}
}
