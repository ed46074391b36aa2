// Package buffer pools the chunk buffers used by uploads and downloads.
package buffer

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	minClassShift = 16 // 64KB
	maxClassShift = 28 // 256MB
)

// BytePool hands out byte slices from power-of-two size classes. Requests
// larger than the biggest class are allocated directly and never pooled.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]sync.Pool

	gets        atomic.Int64
	puts        atomic.Int64
	misses      atomic.Int64
	outstanding atomic.Int64
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i := range p.classes {
		size := 1 << (minClassShift + i)
		p.classes[i].New = func() interface{} {
			p.misses.Add(1)
			return make([]byte, size)
		}
	}
	return p
}

// class returns the index of the smallest class holding size, or -1.
func class(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Get returns a slice of length size. Its contents are undefined.
func (p *BytePool) Get(size int) []byte {
	p.gets.Add(1)
	p.outstanding.Add(1)
	c := class(size)
	if c < 0 {
		p.misses.Add(1)
		return make([]byte, size)
	}
	buf := p.classes[c].Get().([]byte)
	return buf[:size]
}

// Put returns a slice obtained from Get. Slices whose capacity is not a pool
// class are dropped.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	p.puts.Add(1)
	p.outstanding.Add(-1)

	capacity := cap(buf)
	c := class(capacity)
	if c < 0 || 1<<(minClassShift+c) != capacity {
		return
	}
	// nolint:staticcheck // SA6002: sync.Pool.Put requires interface{}, slice allocation is expected
	p.classes[c].Put(buf[:capacity])
}

// PoolStats reports pool usage.
type PoolStats struct {
	Gets        int64 `json:"gets"`
	Puts        int64 `json:"puts"`
	Misses      int64 `json:"misses"`
	Outstanding int64 `json:"outstanding"`
	MinClass    int   `json:"min_class"`
	MaxClass    int   `json:"max_class"`
}

// Stats returns current pool statistics.
func (p *BytePool) Stats() PoolStats {
	return PoolStats{
		Gets:        p.gets.Load(),
		Puts:        p.puts.Load(),
		Misses:      p.misses.Load(),
		Outstanding: p.outstanding.Load(),
		MinClass:    1 << minClassShift,
		MaxClass:    1 << maxClassShift,
	}
}

var defaultBytePool = NewBytePool()

// Default returns the process-wide pool.
func Default() *BytePool {
	return defaultBytePool
}
