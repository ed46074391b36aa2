package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of handles in use and recycles idle ones.
//
// Acquire blocks the calling task until a handle is free or ctx is done; it
// never fails because the pool is momentarily exhausted.
type Pool struct {
	mu      sync.Mutex
	sem     *semaphore.Weighted
	idle    []Handle
	factory Factory
	maxSize int
	closed  bool

	// Statistics
	stats PoolStats
}

// PoolStats tracks handle pool statistics
type PoolStats struct {
	Active      int       `json:"active"`
	Idle        int       `json:"idle"`
	Total       int       `json:"total"`
	MaxSize     int       `json:"max_size"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Waits       int64     `json:"waits"`
	Timeouts    int64     `json:"timeouts"`
	Created     int64     `json:"created"`
	PeakActive  int       `json:"peak_active"`
	LastCreated time.Time `json:"last_created"`
}

// NewPool creates a pool of at most maxSize handles.
func NewPool(maxSize int, factory Factory) (*Pool, error) {
	if maxSize <= 0 {
		maxSize = 8 // Default pool size
	}

	if factory == nil {
		return nil, fmt.Errorf("handle factory cannot be nil")
	}

	return &Pool{
		sem:     semaphore.NewWeighted(int64(maxSize)),
		idle:    make([]Handle, 0, maxSize),
		factory: factory,
		maxSize: maxSize,
		stats: PoolStats{
			MaxSize: maxSize,
		},
	}, nil
}

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = fmt.Errorf("handle pool is closed")

// Acquire takes a handle, waiting for one to be released if all are in use.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	if !p.sem.TryAcquire(1) {
		p.mu.Lock()
		p.stats.Waits++
		p.mu.Unlock()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.mu.Lock()
			p.stats.Timeouts++
			p.mu.Unlock()
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}

	var h Handle
	if n := len(p.idle); n > 0 {
		h = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.stats.Hits++
	} else {
		h = p.factory()
		p.stats.Misses++
		p.stats.Created++
		p.stats.Total++
		p.stats.LastCreated = time.Now()
	}

	p.stats.Active++
	if p.stats.Active > p.stats.PeakActive {
		p.stats.PeakActive = p.stats.Active
	}
	return h, nil
}

// Release resets h and returns it to the pool. It must be called exactly once
// for every successful Acquire.
func (p *Pool) Release(h Handle) {
	if h == nil {
		return
	}
	h.Reset()

	p.mu.Lock()
	p.stats.Active--
	if !p.closed {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	p.sem.Release(1)
}

// Warmup pre-creates up to count idle handles.
func (p *Pool) Warmup(count int) {
	if count <= 0 || count > p.maxSize {
		count = p.maxSize
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for int(p.stats.Total) < count && !p.closed {
		p.idle = append(p.idle, p.factory())
		p.stats.Created++
		p.stats.Total++
		p.stats.LastCreated = time.Now()
	}
}

// InUse is the number of handles currently acquired.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.Active
}

// Stats returns current pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.Idle = len(p.idle)
	return stats
}

// MaxSize is the handle limit.
func (p *Pool) MaxSize() int {
	return p.maxSize
}

// Close drops idle handles and rejects further acquisitions. Handles still in use
// are discarded when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.idle = nil
	return nil
}
