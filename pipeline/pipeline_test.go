package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfred-ai/alfred-pipeline/semaphore"
)

// appendMiddleware is a test Middleware[string,string] that calls through to
// next and appends suffix to the result on the way back out.
type appendMiddleware struct {
	priority int
	suffix   string
}

func (m appendMiddleware) Priority() int { return m.priority }

func (m appendMiddleware) Execute(ctx context.Context, cmd string, cctx *CommandContext, next Next[string, string]) (string, error) {
	result, err := next(ctx, cmd, cctx)
	if err != nil {
		return result, err
	}
	return result + m.suffix, nil
}

func uppercaseHandler(ctx context.Context, cmd string, cctx *CommandContext) (string, error) {
	upper := make([]byte, len(cmd))
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return string(upper), nil
}

// E1: command Transform("hello"), handler uppercases, middlewares append
// "!" then "?" at the same (custom) priority. Expected "HELLO?!".
func TestE1BasicChain(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "!"}); err != nil {
		t.Fatalf("AddMiddleware !: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "?"}); err != nil {
		t.Fatalf("AddMiddleware ?: %v", err)
	}

	result, err := p.Execute(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "HELLO?!" {
		t.Fatalf("result = %q, want %q", result, "HELLO?!")
	}
}

// E2: three middlewares appending "3", "1", "2" at priorities 500, 100, 300.
// Expected "HELLO321".
func TestE2PriorityOrdering(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: 500, suffix: "3"}); err != nil {
		t.Fatalf("AddMiddleware 3: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: 100, suffix: "1"}); err != nil {
		t.Fatalf("AddMiddleware 1: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: 300, suffix: "2"}); err != nil {
		t.Fatalf("AddMiddleware 2: %v", err)
	}

	result, err := p.Execute(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "HELLO321" {
		t.Fatalf("result = %q, want %q", result, "HELLO321")
	}
}

// E3: pipeline with max_depth=2; third add_middleware fails with
// MaxDepthExceeded.
func TestE3MaxDepthExceeded(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler, MaxDepth: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "a"}); err != nil {
		t.Fatalf("AddMiddleware 1: %v", err)
	}
	if err := p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "b"}); err != nil {
		t.Fatalf("AddMiddleware 2: %v", err)
	}
	err = p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "c"})
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Fatalf("err = %v, want ErrMaxDepthExceeded", err)
	}
}

// E4: max_concurrency=1, max_outstanding=1, strategy=drop_newest; two
// concurrent requests: first acquires, second fails with BackPressureFull,
// first completes normally.
func TestE4BackPressureDropNewest(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	blockingHandler := func(ctx context.Context, cmd string, cctx *CommandContext) (string, error) {
		close(entered)
		<-release
		return cmd, nil
	}

	p, err := New(Config[string, string]{
		Handler: blockingHandler,
		BackPressure: &semaphore.Config{
			MaxConcurrency: 1,
			MaxOutstanding: 1,
			Strategy:       semaphore.StrategyDropNewest,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Execute(context.Background(), "x", nil)
		firstDone <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first request never entered handler")
	}

	_, err = p.Execute(context.Background(), "y", nil)
	if !errors.Is(err, ErrBackPressureFull) {
		t.Fatalf("second Execute err = %v, want ErrBackPressureFull", err)
	}

	close(release)
	select {
	case err := <-firstDone:
		if err != nil {
			t.Fatalf("first Execute err = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first request never completed")
	}
}

// E8: interceptor trims whitespace; command "  hi  " reaches handler as "hi".
func TestE8InterceptorTransforms(t *testing.T) {
	var seenByHandler string
	handler := func(ctx context.Context, cmd string, cctx *CommandContext) (string, error) {
		seenByHandler = cmd
		return cmd, nil
	}
	p, err := New(Config[string, string]{Handler: handler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.AddInterceptor(func(cmd string) string {
		start, end := 0, len(cmd)
		for start < end && cmd[start] == ' ' {
			start++
		}
		for end > start && cmd[end-1] == ' ' {
			end--
		}
		return cmd[start:end]
	})

	if _, err := p.Execute(context.Background(), "  hi  ", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seenByHandler != "hi" {
		t.Fatalf("handler saw %q, want %q", seenByHandler, "hi")
	}
}

// Property 7: every structural mutation bumps generation; the cached chain
// is never stale.
func TestChainCacheCoherence(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gen0 := p.Generation()

	if err := p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "!"}); err != nil {
		t.Fatalf("AddMiddleware: %v", err)
	}
	gen1 := p.Generation()
	if gen1 == gen0 {
		t.Fatal("generation did not change after AddMiddleware")
	}

	result, err := p.Execute(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "HI!" {
		t.Fatalf("result = %q, want %q", result, "HI!")
	}

	removed := p.RemoveMiddlewareWhere(func(Middleware[string, string]) bool { return true })
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	gen2 := p.Generation()
	if gen2 == gen1 {
		t.Fatal("generation did not change after RemoveMiddlewareWhere")
	}

	result, err = p.Execute(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Execute after removal: %v", err)
	}
	if result != "HI" {
		t.Fatalf("result after removal = %q, want %q (stale cached chain would still append !)", result, "HI")
	}
}

// Property 11: two consecutive Describe() calls on an unmodified pipeline
// compare equal.
func TestIntrospectionIdempotence(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "!"})

	d1 := p.Describe()
	d2 := p.Describe()
	if !d1.Equal(d2) {
		t.Fatalf("Describe() not idempotent: %+v != %+v", d1, d2)
	}
}

type secureCommand struct {
	value string
}

func (secureCommand) Tags() []CapabilityTag { return []CapabilityTag{"requires_encryption"} }

type plainCommand struct {
	value string
}

// markerMiddleware sets a context marker when it runs.
type markerMiddleware struct{}

func (markerMiddleware) Priority() int { return PriorityCustom }

func (markerMiddleware) Execute(ctx context.Context, cmd any, cctx *CommandContext, next Next[any, any]) (any, error) {
	ContextSet(cctx, markerKey, true)
	return next(ctx, cmd, cctx)
}

var markerKey = NewContextKey[bool]("marker")

// E7: Scoped<RequiresEncryption> middleware runs on SecureCommand (sets
// marker), does not run on a plain command (marker absent).
func TestE7ScopedMiddleware(t *testing.T) {
	handler := func(ctx context.Context, cmd any, cctx *CommandContext) (any, error) {
		return cmd, nil
	}
	p, err := New(Config[any, any]{Handler: handler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	scoped := NewScopedMiddleware[any, any]("requires_encryption", markerMiddleware{})
	if err := p.AddMiddleware(scoped); err != nil {
		t.Fatalf("AddMiddleware: %v", err)
	}

	secureCtx := NewContext(NewMetadata())
	if _, err := p.Execute(context.Background(), secureCommand{value: "s"}, secureCtx); err != nil {
		t.Fatalf("Execute secure: %v", err)
	}
	if marked, ok := ContextGet(secureCtx, markerKey); !ok || !marked {
		t.Fatal("marker not set for SecureCommand")
	}

	plainCtx := NewContext(NewMetadata())
	if _, err := p.Execute(context.Background(), plainCommand{value: "p"}, plainCtx); err != nil {
		t.Fatalf("Execute plain: %v", err)
	}
	if _, ok := ContextGet(plainCtx, markerKey); ok {
		t.Fatal("marker set for plain command, want absent")
	}
}

// Property 8: a conditional middleware whose ShouldActivate returns false
// has zero observable effect on the context during that execution.
type conditionalMiddleware struct {
	active bool
}

func (c *conditionalMiddleware) Priority() int { return PriorityCustom }

func (c *conditionalMiddleware) Execute(ctx context.Context, cmd string, cctx *CommandContext, next Next[string, string]) (string, error) {
	ContextSet(cctx, markerStrKey, "touched")
	return next(ctx, cmd, cctx)
}

func (c *conditionalMiddleware) ShouldActivate(cmd string, cctx *CommandContext) bool {
	return c.active
}

var markerStrKey = NewContextKey[string]("marker_str")

func TestConditionalMiddlewareSkipsWhenInactive(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cond := &conditionalMiddleware{active: false}
	if err := p.AddMiddleware(cond); err != nil {
		t.Fatalf("AddMiddleware: %v", err)
	}

	cctx := NewContext(NewMetadata())
	if _, err := p.Execute(context.Background(), "hi", cctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := ContextGet(cctx, markerStrKey); ok {
		t.Fatal("inactive conditional middleware left an observable side effect")
	}
}

func TestHandlerDomainErrorWrappedByKind(t *testing.T) {
	domainErr := errors.New("insufficient funds")
	handler := func(ctx context.Context, cmd string, cctx *CommandContext) (string, error) {
		return "", domainErr
	}
	p, err := New(Config[string, string]{Handler: handler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Execute(context.Background(), "withdraw", nil)
	if !IsKind(err, KindHandlerError) {
		t.Fatalf("err = %v, want KindHandlerError", err)
	}
	if !errors.Is(err, domainErr) {
		t.Fatal("errors.Is should see through to the original domain error")
	}
}

func TestConcurrentExecuteIsRaceFree(t *testing.T) {
	p, err := New(Config[string, string]{Handler: uppercaseHandler})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.AddMiddleware(appendMiddleware{priority: PriorityCustom, suffix: "!"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := p.Execute(context.Background(), "go", nil)
			if err != nil {
				t.Errorf("Execute: %v", err)
				return
			}
			if result != "GO!" {
				t.Errorf("result = %q, want GO!", result)
			}
		}()
	}
	wg.Wait()
}
