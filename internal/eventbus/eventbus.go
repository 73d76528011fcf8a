// Package eventbus fans out derived engine events to zero or more
// subscribers. A slow subscriber drops events rather than applying
// backpressure to the engine's update loop, the same
// register/dispatch-with-drop shape used for server-sent events
// elsewhere in the pack, generalized from a single global channel to a
// per-subscriber registry.
package eventbus

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/flutter-demon/fdemon/internal/types"
)

// Kind discriminates the EngineEvent variants emitted after a Message
// has been processed.
type Kind int

const (
	KindPhaseChanged Kind = iota
	KindReloadStarted
	KindReloadCompleted
	KindLogEntry
	KindLogBatch
	KindSessionAdded
	KindSessionRemoved
	KindShutdown
)

// Event is one derived engine event. The engine publishes it according
// to the kind of Message just processed, or after a log flush; it does
// not compare before/after AppState snapshots. Every log flush is
// published as KindLogBatch, even a flush of a single entry; the engine
// does not publish KindLogEntry.
type Event struct {
	Kind      Kind
	SessionID uint64

	Phase types.AppPhase // KindPhaseChanged

	ReloadDurationMS int64 // KindReloadCompleted

	Entry   *types.LogEntry  // KindLogEntry: a single new entry
	Entries []types.LogEntry // KindLogBatch: the entries inserted by one flush (one or more)
}

// subscriberCapacity is the fan-out channel's per-subscriber buffer.
const subscriberCapacity = 256

type subscriber struct {
	id int
	ch chan Event
}

// Broadcaster fans out Events to every currently-registered
// subscriber. Safe for concurrent use: Publish is typically called
// from the engine's single update loop, while Subscribe/Unsubscribe
// may be called from any goroutine that wants to observe events.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers []*subscriber
	nextID      int
	dropped     atomic.Int64
}

func New() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new listener and returns its id (for
// Unsubscribe) and a receive-only channel of future events. Having
// zero subscribers is not an error — Publish is a no-op fan-out in
// that case.
func (b *Broadcaster) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Event, subscriberCapacity)}
	b.subscribers = append(b.subscribers, sub)
	return sub.id, sub.ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub.id == id {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish fans evt out to every subscriber. A subscriber whose buffer
// is full has the event dropped for it rather than stalling the
// publisher; DroppedCount reports the running total across all
// subscribers.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.Lock()
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
			log.Printf("eventbus: subscriber %d lagging, dropped event kind=%d", sub.id, evt.Kind)
		}
	}
}

// DroppedCount returns the cumulative number of events dropped for
// lagging subscribers since the broadcaster was created.
func (b *Broadcaster) DroppedCount() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of currently-registered listeners.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
