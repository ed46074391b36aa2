package transfer

import (
	"context"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/storagelite/storagelite/pkg/errors"
)

// ChunkFunc transfers one chunk and returns its failure, if any.
type ChunkFunc func(ctx context.Context, c Chunk) error

// Execute runs fn for every chunk of plan with at most concurrency chunks in
// flight. After the first failure no further chunks are started; chunks
// already running are allowed to finish and their results are ignored.
// Execute returns only after every started chunk has returned.
func Execute(ctx context.Context, plan Plan, fn ChunkFunc, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	var failed atomic.Bool
	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(concurrency)

	for _, c := range plan.Chunks {
		if failed.Load() || ctx.Err() != nil {
			break
		}
		c := c
		p.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := fn(ctx, c); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCanceledError(context.Cause(ctx))
	}
	return nil
}
