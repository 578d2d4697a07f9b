// Package watermark tracks the last source modification time a bridge has
// fully processed.
package watermark

import (
	"sync"
	"time"
)

// Watermark is a monotonic cursor in epoch milliseconds. It lives in memory
// only, so a restarted bridge starts again from its grace window.
type Watermark struct {
	mu             sync.Mutex
	lastModifiedMs int64
}

// New starts the cursor at now minus grace so rows written during startup are
// not missed.
func New(now time.Time, grace time.Duration) *Watermark {
	return &Watermark{lastModifiedMs: now.Add(-grace).UnixMilli()}
}

// Value returns the current lower bound for extraction.
func (w *Watermark) Value() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastModifiedMs
}

// Advance moves the cursor to ms if that is later than the current value and
// reports whether it moved.
func (w *Watermark) Advance(ms int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ms <= w.lastModifiedMs {
		return false
	}
	w.lastModifiedMs = ms
	return true
}
