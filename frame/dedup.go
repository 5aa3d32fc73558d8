package frame

import (
	"sync"
	"time"

	"github.com/pasugo/pasugo-chat-go/wire"
)

const (
	dedupWindowSize = 1000
	dedupWindowTTL  = 5 * time.Minute
)

type dedupEntry struct {
	id   wire.ID
	seen time.Time
}

// DedupWindow is a sliding window of recently seen message ids.
// It remembers up to dedupWindowSize ids or dedupWindowTTL,
// whichever is reached first.
type DedupWindow struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []dedupEntry
}

// NewDedupWindow creates a new dedup window. A nil now uses time.Now.
func NewDedupWindow(now func() time.Time) *DedupWindow {
	if now == nil {
		now = time.Now
	}
	return &DedupWindow{
		now:     now,
		entries: make([]dedupEntry, 0, 64),
	}
}

// IsDuplicate reports whether id has already been seen.
// If not a duplicate, it records the id.
func (d *DedupWindow) IsDuplicate(id wire.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	cutoff := now.Add(-dedupWindowTTL)
	start := 0
	for start < len(d.entries) && d.entries[start].seen.Before(cutoff) {
		start++
	}
	if start > 0 {
		d.entries = d.entries[start:]
	}

	for _, e := range d.entries {
		if e.id == id {
			return true
		}
	}

	if len(d.entries) >= dedupWindowSize {
		d.entries = d.entries[1:]
	}

	d.entries = append(d.entries, dedupEntry{id: id, seen: now})
	return false
}

// Len returns the current number of tracked ids.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
