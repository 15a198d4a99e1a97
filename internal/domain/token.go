package domain

import "time"

// TokenStatus enumerates lifecycle states for queue tokens.
type TokenStatus string

const (
	TokenStatusWaiting     TokenStatus = "waiting"
	TokenStatusCheckedIn   TokenStatus = "checked-in"
	TokenStatusBeingServed TokenStatus = "being-served"
	TokenStatusCompleted   TokenStatus = "completed"
	TokenStatusSkipped     TokenStatus = "skipped"
	TokenStatusNoShow      TokenStatus = "no-show"
	TokenStatusCancelled   TokenStatus = "cancelled"
)

// ActiveTokenStatuses are the states in which a token still occupies a place
// in line. A patron holds at most one token in these states per queue.
var ActiveTokenStatuses = []TokenStatus{
	TokenStatusWaiting,
	TokenStatusCheckedIn,
	TokenStatusBeingServed,
}

// TerminalTokenStatuses are retained for history and never transition again
// through the normal state machine (staff overrides excepted).
var TerminalTokenStatuses = []TokenStatus{
	TokenStatusCompleted,
	TokenStatusSkipped,
	TokenStatusNoShow,
	TokenStatusCancelled,
}

// IsActive reports whether the status still occupies a place in line.
func (s TokenStatus) IsActive() bool {
	for _, candidate := range ActiveTokenStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is an end state.
func (s TokenStatus) IsTerminal() bool {
	for _, candidate := range TerminalTokenStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Token is one patron's place in a queue. TokenNumber is unique and gapless
// within its queue, assigned at creation and immutable thereafter.
type Token struct {
	ID               string
	PatronID         string
	QueueID          string
	BusinessID       string
	TokenNumber      int
	Status           TokenStatus
	IsPriority       bool
	CheckInTime      *time.Time
	ServiceStartTime *time.Time
	ServiceEndTime   *time.Time
	EstimatedTime    *time.Time
	Notes            string
	CreatedAt        time.Time
}
