package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErasedHandler is the type-erased boundary a dynamic pipeline dispatches
// to: cmd arrives as `any` and must be downcast exactly once inside the
// wrapper installed at Register time (spec §9's "type-erased handler
// registries" note), never by callers.
type ErasedHandler func(ctx context.Context, cmd any, cctx *CommandContext) (any, error)

// ErasedMiddleware is the shared-middleware shape a DynamicPipeline applies
// across every registered command type.
type ErasedMiddleware = Middleware[any, any]

// DynamicPipeline multiplexes dispatch across many command types by
// runtime type, per spec §4.5.2: a registry of monomorphic handler
// wrappers keyed by reflect.Type, plus shared middleware and interceptors
// applied regardless of which handler ends up running.
type DynamicPipeline struct {
	mu           sync.Mutex
	handlers     map[reflect.Type]ErasedHandler
	middlewares  []*namedMiddleware[any, any]
	interceptors []Interceptor[any]
	nextSeq      int
}

// NewDynamicPipeline constructs an empty DynamicPipeline.
func NewDynamicPipeline() *DynamicPipeline {
	return &DynamicPipeline{handlers: make(map[reflect.Type]ErasedHandler)}
}

func commandTypeOf[C any]() reflect.Type {
	var zero C
	t := reflect.TypeOf(zero)
	if t != nil {
		return t
	}
	return reflect.TypeOf(&zero).Elem()
}

// wrapHandler builds the ErasedHandler boundary wrapper for a typed
// Handler[C,R]: downcasts cmd once, upcasts the result once.
func wrapHandler[C any, R any](handler Handler[C, R]) ErasedHandler {
	return func(ctx context.Context, cmd any, cctx *CommandContext) (any, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, ErrInvalidCommandType
		}
		result, err := handler(ctx, typed, cctx)
		return result, err
	}
}

// Register installs handler for command type C, overwriting any existing
// registration.
func Register[C any, R any](d *DynamicPipeline, handler Handler[C, R]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[commandTypeOf[C]()] = wrapHandler(handler)
}

// RegisterOnce installs handler for command type C, failing with
// ErrAlreadyRegistered if one is already present.
func RegisterOnce[C any, R any](d *DynamicPipeline, handler Handler[C, R]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := commandTypeOf[C]()
	if _, exists := d.handlers[key]; exists {
		return ErrAlreadyRegistered
	}
	d.handlers[key] = wrapHandler(handler)
	return nil
}

// Unregister removes the handler for command type C, reporting whether one
// was present.
func Unregister[C any](d *DynamicPipeline) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := commandTypeOf[C]()
	if _, ok := d.handlers[key]; !ok {
		return false
	}
	delete(d.handlers, key)
	return true
}

// IsRegistered reports whether command type C has a handler.
func IsRegistered[C any](d *DynamicPipeline) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[commandTypeOf[C]()]
	return ok
}

// RegistrationCount returns the number of distinct command types with a
// registered handler.
func (d *DynamicPipeline) RegistrationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// Clear removes every registered handler.
func (d *DynamicPipeline) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[reflect.Type]ErasedHandler)
}

// AddMiddleware appends a shared middleware applied to every dispatch,
// sorted into place by priority.
func (d *DynamicPipeline) AddMiddleware(name string, mw ErasedMiddleware) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry := &namedMiddleware[any, any]{mw: mw, name: name, sequence: d.nextSeq}
	d.nextSeq++
	idx := sort.Search(len(d.middlewares), func(i int) bool {
		return d.middlewares[i].mw.Priority() > mw.Priority()
	})
	d.middlewares = append(d.middlewares, nil)
	copy(d.middlewares[idx+1:], d.middlewares[idx:])
	d.middlewares[idx] = entry
}

// AddInterceptor appends a shared interceptor run before dispatch.
func (d *DynamicPipeline) AddInterceptor(ic Interceptor[any]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interceptors = append(d.interceptors, ic)
}

// chain builds the middleware chain around terminal. Unlike the typed
// Pipeline, DynamicPipeline does not cache the built chain: the terminal
// handler varies per dispatched command type, so there is nothing stable
// to memoize keyed only on middleware composition (spec §4.5.2 names no
// chain cache for the dynamic shape).
func (d *DynamicPipeline) chain(terminal ErasedHandler) Next[any, any] {
	d.mu.Lock()
	defer d.mu.Unlock()

	handler := Handler[any, any](func(ctx context.Context, cmd any, cctx *CommandContext) (any, error) {
		return terminal(ctx, cmd, cctx)
	})
	return buildChain[any, any](d.middlewares, handler)
}

// Send dispatches cmd by its runtime type: runs shared interceptors, looks
// up the registered handler (failing with ErrNoHandler if none), and runs
// the shared middleware chain around it.
func (d *DynamicPipeline) Send(ctx context.Context, cmd any, cctx *CommandContext) (any, error) {
	d.mu.Lock()
	cmd = runInterceptors(d.interceptors, cmd)
	handler, ok := d.handlers[reflect.TypeOf(cmd)]
	d.mu.Unlock()

	if !ok {
		return nil, ErrNoHandler
	}

	if cctx == nil {
		cctx = NewContext(NewMetadata())
	}

	chain := d.chain(handler)
	return chain(ctx, cmd, cctx)
}

// SendTyped dispatches cmd like Send but asserts the result to R,
// returning ErrInvalidResultType on mismatch.
func SendTyped[R any](d *DynamicPipeline, ctx context.Context, cmd any, cctx *CommandContext) (R, error) {
	var zero R
	result, err := d.Send(ctx, cmd, cctx)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrInvalidResultType, result)
	}
	return typed, nil
}
