package pipeline

import "context"

// Priority bands from spec §4.4. Lower numeric value runs earlier on the
// way in (and later on the way out, standard onion ordering). Within a
// band, insertion order breaks ties.
const (
	PriorityAuthentication = 100
	PriorityAuthorization  = 200
	PriorityValidation     = 300
	PriorityPreProcessing  = 500
	PriorityPostProcessing = 800
	PriorityCustom         = 1000
)

// Middleware wraps handler execution with cross-cutting behavior. Priority
// determines chain position (lower runs first); Execute receives the
// continuation to the next link and may observe/transform the command,
// the context, and the result/error on the way back out.
type Middleware[C any, R any] interface {
	Priority() int
	Execute(ctx context.Context, cmd C, cctx *CommandContext, next Next[C, R]) (R, error)
}

// ConditionalMiddleware additionally decides, per invocation, whether it
// activates at all. A middleware whose ShouldActivate returns false has no
// observable effect on the command or context during that execution — the
// chain routes straight to next.
type ConditionalMiddleware[C any, R any] interface {
	Middleware[C, R]
	ShouldActivate(cmd C, cctx *CommandContext) bool
}

// ScopedMiddleware is a ConditionalMiddleware that activates exactly when
// the command carries a specific capability tag.
type ScopedMiddleware[C any, R any] struct {
	Tag    CapabilityTag
	Inner  Middleware[C, R]
}

// NewScopedMiddleware builds a ScopedMiddleware activating inner only when
// cmd carries tag.
func NewScopedMiddleware[C any, R any](tag CapabilityTag, inner Middleware[C, R]) *ScopedMiddleware[C, R] {
	return &ScopedMiddleware[C, R]{Tag: tag, Inner: inner}
}

func (s *ScopedMiddleware[C, R]) Priority() int { return s.Inner.Priority() }

func (s *ScopedMiddleware[C, R]) Execute(ctx context.Context, cmd C, cctx *CommandContext, next Next[C, R]) (R, error) {
	return s.Inner.Execute(ctx, cmd, cctx, next)
}

// ShouldActivate implements ConditionalMiddleware by checking the command's
// tag set. Commands that don't implement Tagged never activate a scoped
// middleware.
func (s *ScopedMiddleware[C, R]) ShouldActivate(cmd C, cctx *CommandContext) bool {
	return HasTag(cmd, s.Tag)
}

// namedMiddleware is the internal bookkeeping entry kept by a pipeline:
// the middleware itself plus sort-stable insertion order and a
// human-readable name for introspection.
type namedMiddleware[C any, R any] struct {
	mw       Middleware[C, R]
	name     string
	sequence int
}

func isConditional[C any, R any](mw Middleware[C, R]) (ConditionalMiddleware[C, R], bool) {
	cond, ok := mw.(ConditionalMiddleware[C, R])
	return cond, ok
}

func isScoped[C any, R any](mw Middleware[C, R]) (*ScopedMiddleware[C, R], bool) {
	scoped, ok := mw.(*ScopedMiddleware[C, R])
	return scoped, ok
}
