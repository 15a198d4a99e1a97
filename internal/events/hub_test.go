package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	delivered int
	dropped   int
}

func (s *countingSink) RecordFanout(delivered, dropped int) {
	s.delivered += delivered
	s.dropped += dropped
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	hub := NewHub(16, nil)
	sub := hub.SubscribeQueue("q1")
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		hub.Publish(Event{Type: EventQueueAdvanced, QueueID: "q1", CurrentToken: i})
	}

	for i := 1; i <= 5; i++ {
		event := <-sub.C
		assert.Equal(t, i, event.CurrentToken)
	}
}

func TestHubScopesSubscriptions(t *testing.T) {
	hub := NewHub(16, nil)
	queueSub := hub.SubscribeQueue("q1")
	defer queueSub.Close()
	tokenSub := hub.SubscribeToken("t2")
	defer tokenSub.Close()

	hub.Publish(Event{Type: EventTokenCreated, QueueID: "q1", TokenID: "t1", TokenNumber: 1})
	hub.Publish(Event{Type: EventTokenCreated, QueueID: "q2", TokenID: "t2", TokenNumber: 2})

	event := <-queueSub.C
	assert.Equal(t, "t1", event.TokenID)
	select {
	case unexpected := <-queueSub.C:
		t.Fatalf("queue subscriber received foreign event %+v", unexpected)
	default:
	}

	event = <-tokenSub.C
	assert.Equal(t, "t2", event.TokenID)
}

func TestHubFillsInIdentityAndTimestamp(t *testing.T) {
	hub := NewHub(16, nil)
	sub := hub.SubscribeQueue("q1")
	defer sub.Close()

	hub.Publish(Event{Type: EventTokenCancelled, QueueID: "q1"})

	event := <-sub.C
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	sink := &countingSink{}
	hub := NewHub(2, sink)
	sub := hub.SubscribeQueue("q1")
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventQueueAdvanced, QueueID: "q1", CurrentToken: i})
	}

	assert.Equal(t, 2, sink.delivered)
	assert.Equal(t, 3, sink.dropped)

	// The two buffered events are the oldest ones.
	first := <-sub.C
	second := <-sub.C
	assert.Equal(t, 0, first.CurrentToken)
	assert.Equal(t, 1, second.CurrentToken)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.SubscribeQueue("q1")
	sub.Close()
	sub.Close() // idempotent

	hub.Publish(Event{Type: EventQueueAdvanced, QueueID: "q1"})

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestHubPublishSurvivesUnsubscribeChurn(t *testing.T) {
	hub := NewHub(4, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					hub.Publish(Event{Type: EventQueueAdvanced, QueueID: "q1"})
				}
			}
		}()
	}

	// Subscriptions come and go while publishers are mid-flight. A send
	// racing a teardown must drop the event, never panic.
	for i := 0; i < 500; i++ {
		sub := hub.SubscribeQueue("q1")
		sub.Close()
	}
	close(done)
	wg.Wait()
}

func TestHubConcurrentSubscribers(t *testing.T) {
	hub := NewHub(64, nil)
	subs := make([]*Subscription, 10)
	for i := range subs {
		subs[i] = hub.SubscribeQueue("q1")
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	hub.Publish(Event{Type: EventQueueAdvanced, QueueID: "q1", CurrentToken: 7})

	for i, sub := range subs {
		event, ok := <-sub.C
		require.True(t, ok, fmt.Sprintf("subscriber %d got no event", i))
		assert.Equal(t, 7, event.CurrentToken)
	}
}
