package dedup

import (
	"sync"
)

// DefaultTTLMs is the suppression window applied when the caller does not
// override it.
const DefaultTTLMs = 15000

const (
	pruneSizeThreshold = 1000
	pruneEveryNInserts = 100
)

// Ledger decides whether a repeated logical event should be counted again.
// It is scan-scoped: one Ledger per scan, discarded at scan end. Mutations
// are serialized with a mutex because request and response listeners may
// deliver events concurrently.
type Ledger struct {
	mu          sync.Mutex
	lastCounted map[string]int64
	inserts     int
}

func NewLedger() *Ledger {
	return &Ledger{
		lastCounted: make(map[string]int64),
	}
}

// ShouldCount reports whether an observation of key at now should be counted.
//
// The first observation of a key always counts. A later observation counts
// again only once now-lastCounted >= ttlMs. Suppressed observations do NOT
// refresh the timestamp: suppression is measured from the last counted
// occurrence, so a burst of sub-TTL duplicates cannot extend the window past
// the original TTL.
func (l *Ledger) ShouldCount(key string, now int64, ttlMs int64) bool {
	if ttlMs <= 0 {
		ttlMs = DefaultTTLMs
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, seen := l.lastCounted[key]
	if seen && now-last < ttlMs {
		return false
	}

	l.lastCounted[key] = now
	l.inserts++
	if len(l.lastCounted) > pruneSizeThreshold || l.inserts%pruneEveryNInserts == 0 {
		l.pruneLocked(now, ttlMs)
	}
	return true
}

// Size returns the number of live ledger entries.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastCounted)
}

// pruneLocked drops entries whose age exceeds the TTL. Amortized across
// inserts; callers hold the mutex.
func (l *Ledger) pruneLocked(now int64, ttlMs int64) {
	for key, last := range l.lastCounted {
		if now-last >= ttlMs {
			delete(l.lastCounted, key)
		}
	}
}
