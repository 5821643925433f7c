package credential

import (
	"sync"
	"time"
)

const historyCap = 50

// HistoryEntry is one observed (timestamp, counter) pair for a credential.
type HistoryEntry struct {
	ObservedAt time.Time
	Counter    uint32
}

// counterHistory keeps a bounded per-credential trail of observed counters.
// Purely forensic: never consulted for authorization decisions.
type counterHistory struct {
	mu      sync.Mutex
	entries map[string][]HistoryEntry
}

func newCounterHistory() *counterHistory {
	return &counterHistory{entries: make(map[string][]HistoryEntry)}
}

func (h *counterHistory) record(credentialID string, counter uint32, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	trail := append(h.entries[credentialID], HistoryEntry{ObservedAt: at, Counter: counter})
	if len(trail) > historyCap {
		trail = trail[len(trail)-historyCap:]
	}
	h.entries[credentialID] = trail
}

func (h *counterHistory) snapshot(credentialID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	trail := h.entries[credentialID]
	out := make([]HistoryEntry, len(trail))
	copy(out, trail)
	return out
}

func (h *counterHistory) drop(credentialID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, credentialID)
}
