package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishDeliversToSubscriber tests the basic publish/subscribe
// round trip.
func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Publish(&Event{ID: "1", Type: EventRunStarted, Message: "started"})

	select {
	case got := <-sub:
		assert.Equal(t, EventRunStarted, got.Type)
		assert.False(t, got.Timestamp.IsZero(), "Publish must stamp a zero Timestamp")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// TestPublishFansOutToEverySubscriber tests that every active subscriber
// receives its own copy of a published event.
func TestPublishFansOutToEverySubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	subA := b.Subscribe()
	subB := b.Subscribe()
	b.Publish(&Event{ID: "1", Type: EventRunDone})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case got := <-sub:
			assert.Equal(t, EventRunDone, got.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event on one subscriber")
		}
	}
}

// TestUnsubscribeClosesChannelAndStopsDelivery tests that an
// unsubscribed channel is closed and no longer counted.
func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok, "channel must be closed after Unsubscribe")
}

// TestPublishDoesNotBlockOnFullSubscriberBuffer tests that a subscriber
// that never drains its channel cannot stall Publish for others.
func TestPublishDoesNotBlockOnFullSubscriberBuffer(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < 200; i++ {
		b.Publish(&Event{ID: "flood", Type: EventTaskCreated})
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber starved by a full slow subscriber buffer")
	}
	_ = slow
}
