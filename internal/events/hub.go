package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher is the mutation side of the fanout surface.
type Publisher interface {
	Publish(event Event)
}

// Subscription is one live subscriber channel. Events arrive in publish
// order for a given queue; a full buffer drops, never blocks.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// send delivers without blocking. The closed check and the send happen
// under the same lock as close, so a concurrent teardown can never leave
// a publisher sending on a closed channel.
func (s *subscriber) send(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// Hub fans committed transitions out to queue-scoped and token-scoped
// subscribers. Delivery is best-effort, at-most-once per subscriber.
type Hub struct {
	mu         sync.RWMutex
	queueSubs  map[string]map[*subscriber]struct{}
	tokenSubs  map[string]map[*subscriber]struct{}
	globalSubs map[*subscriber]struct{}
	buffer     int
	sink       FanoutSink
}

// FanoutSink observes delivery counts; nil is allowed.
type FanoutSink interface {
	RecordFanout(delivered, dropped int)
}

// NewHub creates a hub with the given per-subscriber buffer depth.
func NewHub(buffer int, sink FanoutSink) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		queueSubs:  make(map[string]map[*subscriber]struct{}),
		tokenSubs:  make(map[string]map[*subscriber]struct{}),
		globalSubs: make(map[*subscriber]struct{}),
		buffer:     buffer,
		sink:       sink,
	}
}

// SubscribeQueue registers a subscriber for all events on one queue.
func (h *Hub) SubscribeQueue(queueID string) *Subscription {
	return h.subscribe(h.queueSubs, queueID)
}

// SubscribeToken registers a subscriber for one token's events only, so a
// patron's client does not receive the whole queue's traffic.
func (h *Hub) SubscribeToken(tokenID string) *Subscription {
	return h.subscribe(h.tokenSubs, tokenID)
}

// SubscribeAll registers a subscriber for every event; used by the
// notification worker.
func (h *Hub) SubscribeAll() *Subscription {
	sub := &subscriber{ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	h.globalSubs[sub] = struct{}{}
	h.mu.Unlock()

	return &Subscription{
		C: sub.ch,
		cancel: func() {
			h.mu.Lock()
			delete(h.globalSubs, sub)
			h.mu.Unlock()
			sub.close()
		},
	}
}

func (h *Hub) subscribe(registry map[string]map[*subscriber]struct{}, key string) *Subscription {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	set, ok := registry[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		registry[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return &Subscription{
		C: sub.ch,
		cancel: func() {
			h.mu.Lock()
			if set, ok := registry[key]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(registry, key)
				}
			}
			h.mu.Unlock()
			sub.close()
		},
	}
}

// Publish delivers the event to every subscriber on the event's queue
// channel, its token channel, and the global channel.
func (h *Hub) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, 8)
	for sub := range h.queueSubs[event.QueueID] {
		targets = append(targets, sub)
	}
	if event.TokenID != "" {
		for sub := range h.tokenSubs[event.TokenID] {
			targets = append(targets, sub)
		}
	}
	for sub := range h.globalSubs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if sub.send(event) {
			delivered++
		} else {
			// Slow or departed subscriber; at-most-once means we drop rather
			// than block the mutation path. Clients reconcile by re-querying.
			dropped++
		}
	}
	if h.sink != nil {
		h.sink.RecordFanout(delivered, dropped)
	}
}
