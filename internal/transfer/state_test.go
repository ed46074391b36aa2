package transfer

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Lifecycle(t *testing.T) {
	p, err := NewPlan(25, 10)
	require.NoError(t, err)

	st := NewState(Upload, "container/blob", p)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, StatusInitiated, st.Status())
	assert.Equal(t, []int{0, 1, 2}, st.RemainingChunks())

	// completion order does not affect the committed order
	st.MarkChunkCompleted(p.Chunks[2], "c")
	st.MarkChunkFailed(p.Chunks[1], stderrors.New("timeout"))
	st.MarkChunkCompleted(p.Chunks[0], "a")
	assert.Equal(t, StatusInProgress, st.Status())
	assert.False(t, st.IsComplete())
	assert.Equal(t, []int{1}, st.RemainingChunks())

	st.MarkChunkCompleted(p.Chunks[1], "b")
	st.MarkChunkCompleted(p.Chunks[1], "b")
	assert.True(t, st.IsComplete())
	assert.Equal(t, []string{"a", "b", "c"}, st.CompletedIDs())

	snap := st.Snapshot()
	assert.Equal(t, int64(25), snap.BytesTransferred)
	assert.Equal(t, 3, snap.CompletedChunks)
	assert.InDelta(t, 100.0, snap.Percent(), 0.001)

	st.MarkCommitted()
	assert.True(t, st.Status().IsTerminal())
}

func TestState_AddChunks(t *testing.T) {
	st := NewState(Download, "fs/file", Plan{ChunkSize: 10})
	st.AddChunks(0, 1)
	st.MarkChunkCompleted(Chunk{Index: 0, Length: 10}, "")
	st.AddChunks(30, 2)

	snap := st.Snapshot()
	assert.Equal(t, int64(30), snap.TotalSize)
	assert.Equal(t, 3, snap.TotalChunks)
	assert.InDelta(t, 33.33, snap.Percent(), 0.01)
}

func TestProgress_PercentEmpty(t *testing.T) {
	assert.Zero(t, Progress{}.Percent())
	assert.Equal(t, 100.0, Progress{Status: StatusCommitted}.Percent())
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	done := NewState(Upload, "a", Plan{})
	running := NewState(Download, "b", Plan{})
	tr.Track(done)
	tr.Track(running)
	assert.Equal(t, 2, tr.Len())

	got, ok := tr.Get(running.ID)
	require.True(t, ok)
	assert.Same(t, running, got)

	done.MarkCommitted()
	active := tr.Active()
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)

	assert.Zero(t, tr.Cleanup(time.Hour))
	assert.Equal(t, 1, tr.Cleanup(-time.Second))
	_, ok = tr.Get(done.ID)
	assert.False(t, ok)

	tr.Remove(running.ID)
	assert.Zero(t, tr.Len())
}
