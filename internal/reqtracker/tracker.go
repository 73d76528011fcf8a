// Package reqtracker correlates outgoing daemon/VM-Service request ids
// with their eventual response, the same id-to-future arena pattern
// used for JSON-RPC in the teacher's RPC client, generalized with Go
// channels standing in for oneshot futures.
package reqtracker

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/flutter-demon/fdemon/internal/fdebug"
)

// Response is what a pending request eventually resolves to.
type Response struct {
	Result json.RawMessage
	Error  json.RawMessage
	Closed bool // true if the tracker was closed before a response arrived
}

// Tracker hands out monotonic request ids and correlates each with a
// completion channel. Safe for concurrent use.
type Tracker struct {
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Response
	closed  bool
}

func New() *Tracker {
	return &Tracker{pending: make(map[uint64]chan Response)}
}

// NextID returns a fresh, never-reused request id.
func (t *Tracker) NextID() uint64 {
	return t.nextID.Add(1)
}

// Register opens a completion slot for id and returns the channel the
// caller should receive on. The channel receives exactly one Response,
// either via HandleResponse or Close; it is never closed.
func (t *Tracker) Register(id uint64) <-chan Response {
	ch := make(chan Response, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		ch <- Response{Closed: true}
		return ch
	}
	t.pending[id] = ch
	return ch
}

// HandleResponse completes the pending request for id, if any. An
// unknown id (already answered, never registered, or answered twice)
// is discarded with a debug log rather than treated as an error —
// the daemon's own protocol quirks can produce stray response lines.
func (t *Tracker) HandleResponse(id uint64, result, errPayload json.RawMessage) {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !ok {
		fdebug.Logf("reqtracker: response for unknown id %d discarded", id)
		return
	}
	ch <- Response{Result: result, Error: errPayload}
}

// Close resolves every still-pending request as Closed and marks the
// tracker so further Register calls resolve immediately. Called once
// a session's daemon process has exited.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.pending {
		ch <- Response{Closed: true}
		delete(t.pending, id)
	}
}

// PendingCount reports the number of requests awaiting a response.
// Exposed for the invariant "no pending entries whose session has
// been removed" — callers assert this is 0 after Close.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
