package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/alfred-ai/alfred-pipeline/recorder"
	"github.com/alfred-ai/alfred-pipeline/semaphore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures a typed Pipeline[C,R].
type Config[C any, R any] struct {
	Handler          Handler[C, R]
	MaxDepth         int // default 100
	UseContextPool   bool
	ContextPoolSize  int // default 50
	BackPressure     *semaphore.Config
	Recorder         *recorder.Recorder
	Logger           zerolog.Logger
}

// Pipeline is the typed, single-command-type, single-handler dispatch
// engine from spec §4.5.1: an ordered middleware chain plus interceptors,
// with an optional back-pressure gate and context pool, and a cached
// chain invalidated by any structural mutation.
type Pipeline[C any, R any] struct {
	mu           sync.Mutex // serializes composition only; execution never holds it
	handler      Handler[C, R]
	middlewares  []*namedMiddleware[C, R]
	interceptors []Interceptor[C]
	maxDepth     int
	nextSeq      int

	generation       uint64
	cachedChain      Next[C, R]
	cachedGeneration uint64
	cacheValid       bool

	backPressure   *semaphore.BackPressureSemaphore
	contextPool    *ContextPool
	useContextPool bool

	recorder *recorder.Recorder
	logger   zerolog.Logger

	commandTypeName string
	handlerTypeName string
}

// New constructs a typed Pipeline. MaxDepth defaults to 100,
// ContextPoolSize to 50 when UseContextPool is true and size is left at 0.
func New[C any, R any](cfg Config[C, R]) (*Pipeline[C, R], error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("pipeline: handler is required")
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 100
	}

	p := &Pipeline[C, R]{
		handler:         cfg.Handler,
		maxDepth:        maxDepth,
		useContextPool:  cfg.UseContextPool,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		commandTypeName: typeName[C](),
		handlerTypeName: typeName[R](),
	}

	if cfg.BackPressure != nil {
		sem, err := semaphore.New(*cfg.BackPressure)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		p.backPressure = sem
	}

	if cfg.UseContextPool {
		size := cfg.ContextPoolSize
		if size <= 0 {
			size = 50
		}
		pool, err := NewContextPool(size, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		p.contextPool = pool
	}

	return p, nil
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return reflect.TypeOf(&zero).Elem().String()
	}
	return t.String()
}

// AddMiddleware inserts mw at its sorted priority position, breaking ties
// by insertion order. Fails with ErrMaxDepthExceeded once the chain is
// already at MaxDepth. Bumps the generation counter, invalidating the
// cached chain.
func (p *Pipeline[C, R]) AddMiddleware(mw Middleware[C, R]) error {
	return p.AddNamedMiddleware(fmt.Sprintf("%T", mw), mw)
}

// AddNamedMiddleware is AddMiddleware with an explicit introspection name
// instead of the Go type name of mw.
func (p *Pipeline[C, R]) AddNamedMiddleware(name string, mw Middleware[C, R]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.middlewares) >= p.maxDepth {
		return ErrMaxDepthExceeded
	}

	entry := &namedMiddleware[C, R]{mw: mw, name: name, sequence: p.nextSeq}
	p.nextSeq++

	idx := sort.Search(len(p.middlewares), func(i int) bool {
		return p.middlewares[i].mw.Priority() > mw.Priority()
	})
	p.middlewares = append(p.middlewares, nil)
	copy(p.middlewares[idx+1:], p.middlewares[idx:])
	p.middlewares[idx] = entry

	p.bumpGenerationLocked()
	return nil
}

// RemoveMiddlewareWhere removes every middleware for which pred returns
// true, returning the count removed. Bumps the generation if anything was
// removed.
func (p *Pipeline[C, R]) RemoveMiddlewareWhere(pred func(Middleware[C, R]) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.middlewares[:0]
	removed := 0
	for _, entry := range p.middlewares {
		if pred(entry.mw) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	p.middlewares = kept
	if removed > 0 {
		p.bumpGenerationLocked()
	}
	return removed
}

// RemoveMiddlewareOfType removes every middleware whose concrete Go type
// matches sample's, returning the count removed. Pass a nil-valued
// instance of the target type, e.g. RemoveMiddlewareOfType((*MyMW)(nil)).
func (p *Pipeline[C, R]) RemoveMiddlewareOfType(sample Middleware[C, R]) int {
	want := reflect.TypeOf(sample)
	return p.RemoveMiddlewareWhere(func(mw Middleware[C, R]) bool {
		return reflect.TypeOf(mw) == want
	})
}

// ClearMiddlewares removes every middleware. Bumps the generation.
func (p *Pipeline[C, R]) ClearMiddlewares() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.middlewares) == 0 {
		return
	}
	p.middlewares = nil
	p.bumpGenerationLocked()
}

// AddInterceptor appends an interceptor to the ordered pre-middleware
// chain. Interceptors don't participate in the middleware cache, so this
// does not bump the generation.
func (p *Pipeline[C, R]) AddInterceptor(ic Interceptor[C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interceptors = append(p.interceptors, ic)
}

func (p *Pipeline[C, R]) bumpGenerationLocked() {
	p.generation++
	p.cacheValid = false
}

// chain returns the cached middleware chain if it's current for the
// pipeline's generation, building and caching a fresh one otherwise. Spec
// §8 "chain cache coherence": no execution ever uses a chain built from a
// prior generation.
func (p *Pipeline[C, R]) chain() Next[C, R] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheValid && p.cachedGeneration == p.generation {
		return p.cachedChain
	}
	built := buildChain[C, R](p.middlewares, p.handler)
	p.cachedChain = built
	p.cachedGeneration = p.generation
	p.cacheValid = true
	return built
}

// Execute runs cmd through the interceptor chain, then the middleware
// chain, then the handler, per spec §4.5.1. If the pipeline was
// constructed with back pressure, a token is acquired first and released
// on every exit path; if constructed with a context pool and cctx is nil,
// one is borrowed and returned on exit.
func (p *Pipeline[C, R]) Execute(ctx context.Context, cmd C, cctx *CommandContext) (R, error) {
	var zero R

	var token *semaphore.Token
	if p.backPressure != nil {
		tok, err := p.backPressure.Acquire(ctx, 0)
		if err != nil {
			return zero, translateSemaphoreErr(err)
		}
		token = tok
		defer token.Release()
	}

	cmd = runInterceptors(p.interceptors, cmd)

	borrowed := false
	if cctx == nil {
		if p.useContextPool && p.contextPool != nil {
			acquired, err := p.contextPool.Acquire(ctx, NewMetadata())
			if err != nil {
				return zero, fmt.Errorf("pipeline: acquire context: %w", err)
			}
			cctx = acquired
			borrowed = true
		} else {
			cctx = NewContext(NewMetadata())
		}
	}
	if borrowed {
		defer p.contextPool.Release(cctx)
	}

	ContextSet(cctx, StartTimeKey, time.Now())
	ContextSet(cctx, RequestIDKey, cctx.Metadata().ID.String())

	start := time.Now()
	chain := p.chain()
	result, err := chain(ctx, cmd, cctx)
	p.record(cctx, start, time.Now(), err)
	return result, err
}

func (p *Pipeline[C, R]) record(cctx *CommandContext, start, end time.Time, err error) {
	if p.recorder == nil {
		return
	}
	rec := recorder.ExecutionRecord{
		ID:          uuid.New(),
		CommandType: p.commandTypeName,
		CommandID:   cctx.Metadata().ID,
		Start:       start,
		End:         end,
		Success:     err == nil,
		Metadata:    map[string]string{"handler_type": p.handlerTypeName},
	}
	if cctx.Metadata().HasCorrelationID() {
		rec.CorrelationID = cctx.Metadata().CorrelationID
	}
	if err != nil {
		if pe, ok := err.(*PipelineError); ok {
			rec.ErrorKind = pe.Kind.String()
			rec.ErrorMessage = pe.Message
		} else {
			rec.ErrorKind = KindUnknown.String()
			rec.ErrorMessage = err.Error()
		}
	}
	p.recorder.Record(rec)
}

// Describe returns a structural snapshot of this pipeline's composition.
func (p *Pipeline[C, R]) Describe() recorder.Description {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]recorder.MiddlewareInfo, len(p.middlewares))
	for i, entry := range p.middlewares {
		_, conditional := isConditional[C, R](entry.mw)
		_, scoped := isScoped[C, R](entry.mw)
		infos[i] = recorder.MiddlewareInfo{
			Name:          entry.name,
			Priority:      entry.mw.Priority(),
			IsConditional: conditional,
			IsScoped:      scoped,
		}
	}
	return recorder.Description{
		CommandType:      p.commandTypeName,
		HandlerType:      p.handlerTypeName,
		InterceptorCount: len(p.interceptors),
		Middlewares:      infos,
	}
}

// Trace reports which middlewares would activate for cmd without
// executing the handler: unconditional middleware is always marked
// active; conditional middleware's predicate is evaluated; scoped
// middleware's activation is decided by the command's tag set.
func (p *Pipeline[C, R]) Trace(cmd C, cctx *CommandContext) recorder.Trace {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := recorder.Trace{Handler: p.handlerTypeName, InterceptorCount: len(p.interceptors)}
	for _, entry := range p.middlewares {
		reason := "unconditional"
		active := true
		if _, scoped := isScoped[C, R](entry.mw); scoped {
			cond := entry.mw.(ConditionalMiddleware[C, R])
			active = cond.ShouldActivate(cmd, cctx)
			reason = "scoped"
		} else if cond, ok := isConditional[C, R](entry.mw); ok {
			active = cond.ShouldActivate(cmd, cctx)
			reason = "conditional"
		}
		tentry := recorder.TraceEntry{Name: entry.name, Active: active, Skipped: !active, Reason: reason}
		if active {
			t.Active = append(t.Active, tentry)
		} else {
			t.Skipped = append(t.Skipped, tentry)
		}
	}
	return t
}

// MiddlewareCount returns the current number of registered middlewares.
func (p *Pipeline[C, R]) MiddlewareCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.middlewares)
}

// Generation returns the current chain generation counter, useful for
// asserting cache invalidation in tests.
func (p *Pipeline[C, R]) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func translateSemaphoreErr(err error) error {
	switch err {
	case semaphore.ErrBackPressureFull:
		return ErrBackPressureFull
	case semaphore.ErrQueueFull:
		return ErrQueueFull
	case semaphore.ErrBackPressureDropped:
		return ErrBackPressureDropped
	case semaphore.ErrCancelled:
		return ErrCancelled
	default:
		return err
	}
}
