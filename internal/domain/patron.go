package domain

import "time"

// Role enumerates the account roles known to the engine.
type Role string

const (
	RolePatron Role = "patron"
	RoleOwner  Role = "owner"
	RoleStaff  Role = "staff"
	RoleSystem Role = "system"
)

// Patron is the domain model for people who book tokens, staff queues or own
// businesses. Accounts are keyed by phone number and verified via one-time
// codes.
type Patron struct {
	ID        string
	Phone     string
	Name      string
	Email     string
	Role      Role
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
