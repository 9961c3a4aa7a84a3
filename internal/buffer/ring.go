// Package buffer provides the bounded in-memory message buffer shared
// between the ingestion loop and the HTTP query path.
package buffer

import (
	"sync"

	"github.com/sakurairo/danmaku-relay/internal/event"
)

// DefaultCapacity is the operational bound on buffered messages. Downstream
// consumers poll /messages and expect at most this many entries, so the
// default must stay in sync with them.
const DefaultCapacity = 100

// Ring is a fixed-capacity FIFO buffer of normalized messages. When full,
// an append evicts the single oldest entry. Safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []event.Message
	head int // index of the oldest entry
	size int
}

// New creates a Ring with the given capacity. Capacities below 1 fall back
// to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]event.Message, capacity)}
}

// Append inserts m, evicting the oldest entry first when the ring is full.
func (r *Ring) Append(m event.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		// Overwrite the oldest slot and advance head.
		r.buf[r.head] = m
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.size)%len(r.buf)] = m
	r.size++
}

// Snapshot returns a copy of the buffered messages, oldest first. The copy
// is detached: later appends never mutate a returned snapshot.
func (r *Ring) Snapshot() []event.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]event.Message, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered messages.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
