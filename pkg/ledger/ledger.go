// Package ledger tracks every summary request in flight, keyed by the
// identity of the destination channel message that shows it.
//
// The ledger is process memory only. A restart forgets every entry and
// lookups for older messages simply miss.
package ledger

import (
	"sync"
	"time"
)

// MessageID identifies a message in the destination channel
type MessageID int

// State is the pipeline lifecycle state of a request
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is the tracked state of one summarized message. Entries are values:
// callers replace them whole through the Ledger, never field by field.
type Entry struct {
	URL       string
	State     State
	TraceID   string // empty when no generation was traced
	Rated     bool   // a rating was forwarded for TraceID
	UpdatedAt time.Time
}

// HasTrace reports whether feedback on this entry can be correlated
func (e Entry) HasTrace() bool {
	return e.TraceID != ""
}

// Rearm returns the entry reset for a new pipeline run on the same URL
func (e Entry) Rearm() Entry {
	return Entry{URL: e.URL, State: Pending, UpdatedAt: time.Now()}
}

// Ledger is a concurrency-safe table of entries keyed by message identity
type Ledger struct {
	mu      sync.RWMutex
	entries map[MessageID]Entry
	now     func() time.Time
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		entries: make(map[MessageID]Entry),
		now:     time.Now,
	}
}

// Get returns the entry for id
func (l *Ledger) Get(id MessageID) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[id]
	return entry, ok
}

// Put creates or replaces the entry for id
func (l *Ledger) Put(id MessageID, entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.UpdatedAt = l.now()
	l.entries[id] = entry
}

// Delete removes the entry for id
func (l *Ledger) Delete(id MessageID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, id)
}

// Update applies fn to the entry for id while holding the write lock. fn
// returns the replacement entry and whether to store it. Update never
// creates an entry; it reports false when id is unknown or fn declined.
func (l *Ledger) Update(id MessageID, fn func(Entry) (Entry, bool)) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	next, store := fn(current)
	if !store {
		return current, false
	}
	next.UpdatedAt = l.now()
	l.entries[id] = next
	return next, true
}

// Stats counts entries per state
func (l *Ledger) Stats() map[State]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[State]int, 3)
	for _, entry := range l.entries {
		stats[entry.State]++
	}
	return stats
}

// Len returns the number of tracked entries
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}
