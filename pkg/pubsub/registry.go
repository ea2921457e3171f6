package pubsub

import (
	"sync"

	"github.com/cuemby/kvdoc/pkg/types"
)

// Registry holds one Broadcaster per collection, created lazily on first
// use and evicted once its last subscriber leaves.
type Registry struct {
	mu           sync.Mutex
	broadcasters map[string]*Broadcaster
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{broadcasters: make(map[string]*Broadcaster)}
}

// For returns the Broadcaster for collection, creating it if needed.
func (r *Registry) For(collection string) *Broadcaster {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.broadcasters[collection]; ok {
		return b
	}
	b := newBroadcaster(func() { r.evict(collection) })
	r.broadcasters[collection] = b
	return b
}

// evict removes collection's Broadcaster once it has no subscribers left,
// so a Registry watching a churn of short-lived collections doesn't
// accumulate dead entries.
func (r *Registry) evict(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.broadcasters[collection]
	if !ok {
		return
	}
	if b.SubscriberCount() == 0 {
		delete(r.broadcasters, collection)
	}
}

// Publish fans event out to collection's current subscribers, if any. It
// never creates a Broadcaster as a side effect of publishing with no
// subscribers.
func (r *Registry) Publish(collection string, event types.MutationEvent) {
	r.mu.Lock()
	b, ok := r.broadcasters[collection]
	r.mu.Unlock()
	if !ok {
		return
	}
	b.Publish(event)
}

// SubscriberCount reports how many listeners are attached to collection.
func (r *Registry) SubscriberCount(collection string) int {
	r.mu.Lock()
	b, ok := r.broadcasters[collection]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return b.SubscriberCount()
}

// CollectionCount reports how many broadcasters the registry currently
// holds, including ones created by For that have no subscriber yet; a
// broadcaster is removed when its last subscriber leaves.
func (r *Registry) CollectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.broadcasters)
}
