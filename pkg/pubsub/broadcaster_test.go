package pubsub

import (
	"testing"

	"github.com/cuemby/kvdoc/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestRegistryLazyCreateAndEvict(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.CollectionCount())

	b := r.For("orders")
	require.Equal(t, 1, r.CollectionCount())
	require.Equal(t, 0, b.SubscriberCount())

	ch, unsubscribe := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	require.Equal(t, 1, r.SubscriberCount("orders"))

	unsubscribe()
	require.Equal(t, 0, b.SubscriberCount())
	require.Equal(t, 0, r.CollectionCount(), "broadcaster should be evicted once empty")
	_ = ch
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	r := NewRegistry()
	b := r.For("orders")
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	r.Publish("orders", types.MutationEvent{Operation: types.OpCreate, Key: "k1"})

	msg := <-ch
	require.False(t, msg.Lagged)
	require.NotNil(t, msg.Event)
	require.Equal(t, "k1", msg.Event.Key)
}

func TestPublishWithNoSubscribersDoesNotCreateBroadcaster(t *testing.T) {
	r := NewRegistry()
	r.Publish("ghost", types.MutationEvent{Operation: types.OpCreate, Key: "k1"})
	require.Equal(t, 0, r.CollectionCount())
}

func TestPublishIsolatedPerCollection(t *testing.T) {
	r := NewRegistry()
	ordersCh, unsubOrders := r.For("orders").Subscribe()
	defer unsubOrders()
	usersCh, unsubUsers := r.For("users").Subscribe()
	defer unsubUsers()

	r.Publish("orders", types.MutationEvent{Operation: types.OpCreate, Key: "o1"})

	msg := <-ordersCh
	require.Equal(t, "o1", msg.Event.Key)

	select {
	case <-usersCh:
		t.Fatal("users subscriber should not receive orders events")
	default:
	}
}

func TestPublishLaggedWhenBufferFull(t *testing.T) {
	b := newBroadcaster(nil)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer; i++ {
		b.Publish(types.MutationEvent{Operation: types.OpCreate, Key: "k"})
	}
	// Buffer is now full; this publish must not block and should surface
	// as a lag notice rather than a dropped event.
	b.Publish(types.MutationEvent{Operation: types.OpCreate, Key: "overflow"})

	for i := 0; i < subscriberBuffer; i++ {
		msg := <-ch
		require.False(t, msg.Lagged)
	}
	lastMsg := <-ch
	require.True(t, lastMsg.Lagged)
}

func TestMultipleSubscribersIndependentDelivery(t *testing.T) {
	b := newBroadcaster(nil)
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	require.Equal(t, 2, b.SubscriberCount())
	b.Publish(types.MutationEvent{Operation: types.OpDelete, Key: "k2"})

	m1 := <-ch1
	m2 := <-ch2
	require.Equal(t, "k2", m1.Event.Key)
	require.Equal(t, "k2", m2.Event.Key)
}
