package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenCreated   EventType = "tokenCreated"
	EventTokenCancelled EventType = "tokenCancelled"
	EventTokenCheckedIn EventType = "tokenCheckedIn"
	EventTokenSkipped   EventType = "tokenSkipped"
	EventTokenNoShow    EventType = "tokenNoShow"
	EventQueueAdvanced  EventType = "queueAdvanced"
)

// Event is one committed queue transition, carrying just enough identifiers
// for a subscriber to reconcile; clients re-query full state on reconnect.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	QueueID     string    `json:"queue_id"`
	TokenID     string    `json:"token_id,omitempty"`
	TokenNumber int       `json:"token_number,omitempty"`
	// CurrentToken is the serving pointer after the transition committed.
	CurrentToken int       `json:"current_token"`
	Timestamp    time.Time `json:"timestamp"`
	// Origin identifies the publishing process so the redis bridge does not
	// re-deliver an instance's own events back to it.
	Origin string `json:"origin,omitempty"`
}
