package transfer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction of a transfer.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Status of a transfer.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusCommitted  Status = "committed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the transfer will not change any more.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

// ChunkState is the progress of one chunk.
type ChunkState struct {
	Index        int       `json:"index"`
	Offset       int64     `json:"offset"`
	Size         int64     `json:"size"`
	ID           string    `json:"id,omitempty"`
	Completed    bool      `json:"completed"`
	Failures     int       `json:"failures"`
	Error        string    `json:"error,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// State tracks one chunked transfer. It is safe for concurrent use by the
// chunks of that transfer.
type State struct {
	mu sync.RWMutex

	ID            string
	Direction     Direction
	Target        string
	TotalSize     int64
	ChunkSize     int64
	TotalChunks   int
	StartedAt     time.Time
	LastUpdatedAt time.Time

	chunks          map[int]*ChunkState
	completedChunks int
	bytesDone       int64
	status          Status
}

// Progress is a point-in-time copy of a State.
type Progress struct {
	ID               string    `json:"id"`
	Direction        Direction `json:"direction"`
	Target           string    `json:"target"`
	Status           Status    `json:"status"`
	TotalSize        int64     `json:"total_size"`
	BytesTransferred int64     `json:"bytes_transferred"`
	CompletedChunks  int       `json:"completed_chunks"`
	TotalChunks      int       `json:"total_chunks"`
	StartedAt        time.Time `json:"started_at"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// Percent returns completion as a percentage (0-100).
func (p Progress) Percent() float64 {
	if p.TotalChunks == 0 {
		if p.Status == StatusCommitted {
			return 100
		}
		return 0
	}
	return float64(p.CompletedChunks) / float64(p.TotalChunks) * 100
}

// NewState creates a tracker for plan.
func NewState(direction Direction, target string, plan Plan) *State {
	now := time.Now()
	return &State{
		ID:            uuid.NewString(),
		Direction:     direction,
		Target:        target,
		TotalSize:     plan.Total,
		ChunkSize:     plan.ChunkSize,
		TotalChunks:   plan.Len(),
		StartedAt:     now,
		LastUpdatedAt: now,
		chunks:        make(map[int]*ChunkState),
		status:        StatusInitiated,
	}
}

func (s *State) chunk(c Chunk) *ChunkState {
	cs, ok := s.chunks[c.Index]
	if !ok {
		cs = &ChunkState{Index: c.Index, Offset: c.Offset, Size: c.Length}
		s.chunks[c.Index] = cs
	}
	return cs
}

// AddChunks grows the plan, for downloads whose size is learned from the
// first response.
func (s *State) AddChunks(total int64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalSize = total
	s.TotalChunks += count
	s.LastUpdatedAt = time.Now()
}

// MarkChunkCompleted records a successful chunk. id is the block id for block
// uploads and empty otherwise.
func (s *State) MarkChunkCompleted(c Chunk, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chunk(c)
	if cs.Completed {
		return
	}
	cs.ID = id
	cs.Completed = true
	cs.Error = ""
	cs.LastModified = time.Now()

	s.completedChunks++
	s.bytesDone += c.Length
	s.LastUpdatedAt = cs.LastModified
	s.status = StatusInProgress
}

// MarkChunkFailed records a failed chunk.
func (s *State) MarkChunkFailed(c Chunk, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chunk(c)
	cs.Completed = false
	cs.Failures++
	cs.LastModified = time.Now()
	if err != nil {
		cs.Error = err.Error()
	}
	s.LastUpdatedAt = cs.LastModified
}

// MarkCommitted marks the transfer finalized.
func (s *State) MarkCommitted() {
	s.setStatus(StatusCommitted)
}

// MarkFailed marks the transfer failed.
func (s *State) MarkFailed() {
	s.setStatus(StatusFailed)
}

func (s *State) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.LastUpdatedAt = time.Now()
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsComplete returns true if every chunk has completed.
func (s *State) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedChunks == s.TotalChunks
}

// RemainingChunks returns the indexes of chunks not yet completed.
func (s *State) RemainingChunks() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	remaining := make([]int, 0)
	for i := 0; i < s.TotalChunks; i++ {
		if cs, ok := s.chunks[i]; !ok || !cs.Completed {
			remaining = append(remaining, i)
		}
	}
	return remaining
}

// CompletedIDs returns the ids of completed chunks in index order.
func (s *State) CompletedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	done := make([]*ChunkState, 0, s.completedChunks)
	for _, cs := range s.chunks {
		if cs.Completed {
			done = append(done, cs)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Index < done[j].Index })

	ids := make([]string, len(done))
	for i, cs := range done {
		ids[i] = cs.ID
	}
	return ids
}

// Snapshot returns the current progress.
func (s *State) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Progress{
		ID:               s.ID,
		Direction:        s.Direction,
		Target:           s.Target,
		Status:           s.status,
		TotalSize:        s.TotalSize,
		BytesTransferred: s.bytesDone,
		CompletedChunks:  s.completedChunks,
		TotalChunks:      s.TotalChunks,
		StartedAt:        s.StartedAt,
		LastUpdatedAt:    s.LastUpdatedAt,
	}
}

// Tracker keeps the states of concurrent transfers.
type Tracker struct {
	mu        sync.RWMutex
	transfers map[string]*State
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{transfers: make(map[string]*State)}
}

// Track starts tracking s.
func (t *Tracker) Track(s *State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transfers[s.ID] = s
}

// Get retrieves a tracked transfer.
func (t *Tracker) Get(id string) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.transfers[id]
	return s, ok
}

// Remove stops tracking a transfer.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transfers, id)
}

// Active returns the progress of transfers not yet in a terminal state.
func (t *Tracker) Active() []Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Progress, 0)
	for _, s := range t.transfers {
		if p := s.Snapshot(); !p.Status.IsTerminal() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Cleanup removes transfers that have been terminal for longer than maxAge and
// returns how many were removed.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, s := range t.transfers {
		p := s.Snapshot()
		if p.Status.IsTerminal() && p.LastUpdatedAt.Before(cutoff) {
			delete(t.transfers, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked transfers.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.transfers)
}
