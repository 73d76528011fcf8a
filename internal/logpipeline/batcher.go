package logpipeline

import (
	"time"

	"github.com/flutter-demon/fdemon/internal/types"
)

const (
	batchMaxSize        = 100
	batchFlushInterval  = 16 * time.Millisecond // ~60Hz ceiling
)

// Batcher accumulates LogEntries between flushes so the UI layer does
// not repaint per line at daemon-output speed. Not safe for concurrent
// use; owned by one Session's pipeline goroutine.
type Batcher struct {
	pending   []types.LogEntry
	lastFlush time.Time
}

func NewBatcher() *Batcher {
	return &Batcher{lastFlush: time.Now()}
}

// Add appends entry to the pending batch.
func (b *Batcher) Add(entry types.LogEntry) {
	b.pending = append(b.pending, entry)
}

// ShouldFlush reports whether the pending batch has grown large enough,
// or aged enough past the flush interval, to be drained.
func (b *Batcher) ShouldFlush() bool {
	if len(b.pending) >= batchMaxSize {
		return true
	}
	return len(b.pending) > 0 && time.Since(b.lastFlush) >= batchFlushInterval
}

// Flush returns and clears the pending batch, resetting the flush clock.
func (b *Batcher) Flush() []types.LogEntry {
	out := b.pending
	b.pending = nil
	b.lastFlush = time.Now()
	return out
}

// HasPending reports whether any entries are waiting to be flushed.
func (b *Batcher) HasPending() bool {
	return len(b.pending) > 0
}

// PendingCount returns the number of entries waiting to be flushed.
func (b *Batcher) PendingCount() int {
	return len(b.pending)
}

// TimeUntilFlush returns how long the caller should wait before the
// batch becomes eligible to flush on age alone. Zero or negative means
// it is already eligible (assuming it is non-empty).
func (b *Batcher) TimeUntilFlush() time.Duration {
	if len(b.pending) == 0 {
		return batchFlushInterval
	}
	elapsed := time.Since(b.lastFlush)
	if elapsed >= batchFlushInterval {
		return 0
	}
	return batchFlushInterval - elapsed
}
