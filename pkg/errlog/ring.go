// Package errlog keeps the most recent application errors in a bounded in-memory ring.
package errlog

import (
	"sync"
	"time"
)

const defaultCapacity = 200

// Entry is one captured error tagged with the operation and actor that produced it.
type Entry struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	ActorID   string    `json:"actor_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Code      string    `json:"code"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
}

// Ring is a fixed-size, concurrency-safe buffer. Once full, the oldest entry is overwritten.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	now     func() time.Time
}

// NewRing constructs a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity), now: time.Now}
}

// Record appends an entry, stamping the time when missing.
func (r *Ring) Record(e Entry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns the buffered entries newest first, capped at limit when limit > 0.
func (r *Ring) Snapshot(limit int) []Entry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// Len reports how many entries are currently held.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}
