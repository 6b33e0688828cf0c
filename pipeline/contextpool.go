package pipeline

import (
	"context"

	"github.com/alfred-ai/alfred-pipeline/objpool"
	"github.com/rs/zerolog"
)

// ContextPool recycles CommandContext instances across invocations via
// objpool.ObjectPool, avoiding an allocation per execution in steady state.
// Borrowed contexts are reset (not just Clear()'d) with fresh metadata on
// each acquisition.
type ContextPool struct {
	pool *objpool.ObjectPool[*CommandContext]
}

// NewContextPool builds a ContextPool bounded to size, per spec §6's
// Pipeline.context_pool_size knob.
func NewContextPool(size int, logger zerolog.Logger) (*ContextPool, error) {
	pool, err := objpool.New(objpool.Config[*CommandContext]{
		Name:    "pipeline-context-pool",
		MaxSize: size,
		Factory: func() *CommandContext { return &CommandContext{} },
		Reset:   func(c *CommandContext) { c.Clear() },
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return &ContextPool{pool: pool}, nil
}

// Acquire borrows a CommandContext seeded with metadata.
func (p *ContextPool) Acquire(ctx context.Context, metadata CommandMetadata) (*CommandContext, error) {
	cctx, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	cctx.reset(metadata)
	return cctx, nil
}

// Release returns cctx to the pool.
func (p *ContextPool) Release(cctx *CommandContext) {
	p.pool.Release(cctx)
}

// Statistics exposes the underlying pool's statistics.
func (p *ContextPool) Statistics() objpool.Statistics {
	return p.pool.Statistics()
}
