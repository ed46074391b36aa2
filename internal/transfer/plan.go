// Package transfer splits large uploads and downloads into chunks and runs
// them through the executor with bounded fan-out.
package transfer

import (
	"github.com/storagelite/storagelite/pkg/errors"
)

// Chunk is one contiguous piece of a transfer.
type Chunk struct {
	Index  int
	Offset int64
	Length int64
}

// End is the offset one past the chunk's last byte.
func (c Chunk) End() int64 {
	return c.Offset + c.Length
}

// Plan is an ordered, gap-free and overlap-free cover of [0, Total).
type Plan struct {
	Total     int64
	ChunkSize int64
	Chunks    []Chunk
}

// NewPlan splits total bytes into chunks of chunkSize; the last chunk holds the
// remainder. A total of zero yields an empty plan.
func NewPlan(total, chunkSize int64) (Plan, error) {
	if total < 0 {
		return Plan{}, errors.NewConfigError(errors.ErrCodeInvalidConfig, "transfer size must be non-negative, got %d", total)
	}
	if chunkSize <= 0 {
		return Plan{}, errors.NewConfigError(errors.ErrCodeInvalidConfig, "chunk size must be positive, got %d", chunkSize)
	}

	n := ChunkCount(total, chunkSize)
	p := Plan{Total: total, ChunkSize: chunkSize, Chunks: make([]Chunk, 0, n)}
	for i := 0; i < n; i++ {
		off := int64(i) * chunkSize
		length := chunkSize
		if off+length > total {
			length = total - off
		}
		p.Chunks = append(p.Chunks, Chunk{Index: i, Offset: off, Length: length})
	}
	return p, nil
}

// ChunkCount is the number of chunks NewPlan produces.
func ChunkCount(total, chunkSize int64) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((total + chunkSize - 1) / chunkSize)
}

// Len is the number of chunks.
func (p Plan) Len() int {
	return len(p.Chunks)
}

// Shift returns a copy of the plan with every offset moved by delta and every
// index moved by first. It is used to plan the remainder of a download after
// the first chunk.
func (p Plan) Shift(delta int64, first int) Plan {
	out := Plan{Total: p.Total, ChunkSize: p.ChunkSize, Chunks: make([]Chunk, len(p.Chunks))}
	for i, c := range p.Chunks {
		out.Chunks[i] = Chunk{Index: c.Index + first, Offset: c.Offset + delta, Length: c.Length}
	}
	return out
}
