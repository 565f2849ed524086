package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Type: EventExperimentCompleted, Message: "exp-1"})

	select {
	case evt := <-sub:
		assert.Equal(t, EventExperimentCompleted, evt.Type)
		assert.Equal(t, "exp-1", evt.Message)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishDropsRatherThanBlocksOnAFullSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(&Event{Type: EventTaskCompleted, Message: "flood"})
	}

	// Publish must never block, no matter how far the subscriber lags.
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestStopClosesLiveSubscribersAndRejectsNewOnes(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Stop()

	_, open := <-sub
	assert.False(t, open, "subscriber channel should be closed by Stop")

	late := b.Subscribe()
	_, open = <-late
	assert.False(t, open, "a subscription after Stop should already be closed")

	// Publishing after Stop must not panic.
	b.Publish(&Event{Type: EventAgentLost, Message: "agent-1"})
}
