// Package pubsub fans mutation events out to per-collection subscribers.
// Every collection (CF) gets its own Broadcaster, so a slow or absent
// subscriber on one collection never affects delivery on another —
// generalizing the single global event bus a cluster-wide broker would use
// into one bus per tenant keyspace.
package pubsub

import (
	"sync"

	"github.com/cuemby/kvdoc/pkg/types"
)

// subscriberBuffer is how many undelivered messages a subscriber channel
// holds before it is considered lagging.
const subscriberBuffer = 20000

// Message is what a subscriber receives. Lagged is true when the
// broadcaster had to skip delivering one or more events because the
// subscriber's buffer was full; Event is nil in that case.
type Message struct {
	Event  *types.MutationEvent
	Lagged bool
}

// Broadcaster fans MutationEvents out to every subscriber of one
// collection.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Message]struct{}

	// onEmpty is called with the lock released whenever the last
	// subscriber leaves, so Registry can evict the Broadcaster.
	onEmpty func()
}

func newBroadcaster(onEmpty func()) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Message]struct{}),
		onEmpty:     onEmpty,
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The caller must call unsubscribe exactly once.
func (b *Broadcaster) Subscribe() (<-chan Message, func()) {
	// One slot beyond subscriberBuffer is kept free for the Lagged notice.
	ch := make(chan Message, subscriberBuffer+1)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			empty := len(b.subscribers) == 0
			b.mu.Unlock()
			close(ch)
			if empty && b.onEmpty != nil {
				b.onEmpty()
			}
		})
	}
	return ch, unsubscribe
}

// Publish fans event out to every current subscriber. Delivery is
// non-blocking: a subscriber whose buffer is full receives a Lagged
// notification instead of the event, rather than the publisher stalling or
// the event silently vanishing.
func (b *Broadcaster) Publish(event types.MutationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msg := Message{Event: &event}
	for ch := range b.subscribers {
		if len(ch) < subscriberBuffer {
			select {
			case ch <- msg:
				continue
			default:
			}
		}
		select {
		case ch <- Message{Lagged: true}:
		default:
			// Subscriber is so far behind even the lag notice doesn't
			// fit; next successful send will still carry fresh data.
		}
	}
}

// SubscriberCount reports how many listeners are currently attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
