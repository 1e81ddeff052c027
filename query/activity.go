package query

import (
	"sync"

	"github.com/saiset-co/sai-query-service/types"
)

const activityLogSize = 10

// ActivityLog keeps the most recent completed attempts, successes and
// failures alike, for diagnostic inspection. It has no correctness
// role; the oldest entry falls out once the ring is full.
type ActivityLog struct {
	mu      sync.Mutex
	entries []types.ActivityEntry
	max     int
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{
		entries: make([]types.ActivityEntry, 0, activityLogSize),
		max:     activityLogSize,
	}
}

func (l *ActivityLog) Record(entry types.ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Entries returns a copy, newest last.
func (l *ActivityLog) Entries() []types.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
