package pipeline

import "context"

// Handler is the terminal processor for a command of type C producing a
// result of type R. A handler's own errors should be returned as plain
// domain errors; the pipeline wraps them in HandlerError on the way out so
// callers can distinguish handler failures from framework infrastructure
// errors by type.
type Handler[C any, R any] func(ctx context.Context, cmd C, cctx *CommandContext) (R, error)

// Next is the continuation a Middleware invokes to proceed to the next
// link in the chain (another middleware or, at the innermost link, the
// handler itself).
type Next[C any, R any] func(ctx context.Context, cmd C, cctx *CommandContext) (R, error)
