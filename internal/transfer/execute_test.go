package transfer

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagelite/storagelite/pkg/errors"
)

func TestExecute_AllChunks(t *testing.T) {
	p, err := NewPlan(100, 7)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[int]bool{}
	var inflight, peak atomic.Int32

	err = Execute(context.Background(), p, func(ctx context.Context, c Chunk) error {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[c.Index] = true
		mu.Unlock()
		return nil
	}, 3)
	require.NoError(t, err)

	assert.Len(t, seen, p.Len())
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestExecute_StopsAfterFirstFailure(t *testing.T) {
	p, err := NewPlan(100, 1)
	require.NoError(t, err)

	boom := stderrors.New("boom")
	var started atomic.Int32
	err = Execute(context.Background(), p, func(ctx context.Context, c Chunk) error {
		started.Add(1)
		if c.Index == 2 {
			return boom
		}
		time.Sleep(time.Millisecond)
		return nil
	}, 2)

	assert.ErrorIs(t, err, boom)
	assert.Less(t, started.Load(), int32(100))
}

func TestExecute_Canceled(t *testing.T) {
	p, err := NewPlan(10, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var started atomic.Int32
	err = Execute(ctx, p, func(ctx context.Context, c Chunk) error {
		started.Add(1)
		return nil
	}, 4)

	assert.Equal(t, errors.CategoryCancellation, errors.CategoryOf(err))
	assert.Zero(t, started.Load())
}

func TestExecute_EmptyPlan(t *testing.T) {
	err := Execute(context.Background(), Plan{}, func(context.Context, Chunk) error {
		t.Fatal("no chunk expected")
		return nil
	}, 0)
	assert.NoError(t, err)
}
