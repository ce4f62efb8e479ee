package models

import (
	"sync"
	"time"
)

// StreamCursor remembers the last entry id confirmed by the server so a new
// connection can resume after it.
type StreamCursor struct {
	mu          sync.RWMutex
	lastEntryID string
	advancedAt  time.Time
}

// NewStreamCursor returns a cursor primed with lastEntryID, which may be empty.
func NewStreamCursor(lastEntryID string) *StreamCursor {
	c := &StreamCursor{lastEntryID: lastEntryID}
	if lastEntryID != "" {
		c.advancedAt = time.Now()
	}
	return c
}

// Get returns the last entry id and whether one is known.
func (c *StreamCursor) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEntryID, c.lastEntryID != ""
}

// Advance records an entry id taken from a server frame. Empty ids are ignored.
func (c *StreamCursor) Advance(entryID string) {
	if entryID == "" {
		return
	}
	c.mu.Lock()
	c.lastEntryID = entryID
	c.advancedAt = time.Now()
	c.mu.Unlock()
}

// AdvancedAt returns when the cursor last moved.
func (c *StreamCursor) AdvancedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.advancedAt
}
