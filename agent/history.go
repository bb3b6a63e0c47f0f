package agent

import "sync"

// History is an append-only record of past state snapshots, one per
// completed turn, for observability consumers.
type History struct {
	mu    sync.Mutex
	snaps []Snapshot
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records a snapshot.
func (h *History) Append(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, s)
}

// All returns a copy of every recorded snapshot in order.
func (h *History) All() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.snaps...)
}

// Len returns the number of recorded snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snaps)
}

// Clear resets the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = nil
}
