package pipeline

import "context"

// buildChain folds the already priority-sorted middleware list right-to-left
// over the terminal handler call, per spec §4.5.3: each fold step produces
// a Next that, when invoked, checks conditional/scoped activation and
// either calls through to the inner middleware or skips straight to the
// next link.
func buildChain[C any, R any](mws []*namedMiddleware[C, R], handler Handler[C, R]) Next[C, R] {
	next := Next[C, R](func(ctx context.Context, cmd C, cctx *CommandContext) (R, error) {
		result, err := handler(ctx, cmd, cctx)
		if err != nil {
			return result, HandlerError(err)
		}
		return result, nil
	})

	for i := len(mws) - 1; i >= 0; i-- {
		entry := mws[i]
		inner := next // capture current continuation for this link
		next = makeLink[C, R](entry.mw, inner)
	}
	return next
}

// makeLink produces the Next for a single middleware, honoring
// ConditionalMiddleware.ShouldActivate (which also covers ScopedMiddleware,
// itself a ConditionalMiddleware) by routing straight to inner when
// inactive, with zero observable effect on the command or context.
func makeLink[C any, R any](mw Middleware[C, R], inner Next[C, R]) Next[C, R] {
	if cond, ok := isConditional[C, R](mw); ok {
		return func(ctx context.Context, cmd C, cctx *CommandContext) (R, error) {
			if !cond.ShouldActivate(cmd, cctx) {
				return inner(ctx, cmd, cctx)
			}
			result, err := mw.Execute(ctx, cmd, cctx, inner)
			if err != nil {
				return result, wrapMiddlewareErr(err)
			}
			return result, nil
		}
	}
	return func(ctx context.Context, cmd C, cctx *CommandContext) (R, error) {
		result, err := mw.Execute(ctx, cmd, cctx, inner)
		if err != nil {
			return result, wrapMiddlewareErr(err)
		}
		return result, nil
	}
}

// wrapMiddlewareErr leaves framework errors (already a *PipelineError, e.g.
// a HandlerError bubbled up from an inner link, or an error a middleware
// deliberately re-raises) untouched, and wraps any other error returned by
// a middleware as MiddlewareError so it's distinguishable by kind.
func wrapMiddlewareErr(err error) error {
	if _, ok := err.(*PipelineError); ok {
		return err
	}
	return MiddlewareError(err)
}
