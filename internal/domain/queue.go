package domain

import "time"

// QueueStatus enumerates serving states for a queue.
type QueueStatus string

const (
	QueueStatusActive QueueStatus = "active"
	QueueStatusPaused QueueStatus = "paused"
	QueueStatusClosed QueueStatus = "closed"
)

// Queue is a single serving line owned by one business. CurrentToken is the
// number being served (0 = none yet), NextToken the next number to allocate.
// NextToken > CurrentToken once any token has been allocated, and
// CurrentToken never decreases.
type Queue struct {
	ID                    string
	DisplayID             string
	BusinessID            string
	Name                  string
	Purpose               string
	CurrentToken          int
	NextToken             int
	Status                QueueStatus
	AvgServiceTimeMinutes int
	MaxTokensPerDay       int
	AllowPriority         bool
	IsActive              bool
	CreatedAt             time.Time
}

// QueueSettingsUpdate carries the owner-editable queue fields. Counters,
// display id and business reference are never updatable.
type QueueSettingsUpdate struct {
	Name                  *string
	Purpose               *string
	AvgServiceTimeMinutes *int
	MaxTokensPerDay       *int
	AllowPriority         *bool
}
