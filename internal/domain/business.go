package domain

import "time"

// BusinessCategory enumerates the supported business kinds.
type BusinessCategory string

const (
	CategoryClinic        BusinessCategory = "clinic"
	CategorySalon         BusinessCategory = "salon"
	CategoryBank          BusinessCategory = "bank"
	CategoryGovernment    BusinessCategory = "government"
	CategoryCollege       BusinessCategory = "college"
	CategoryServiceCenter BusinessCategory = "service_center"
	CategoryRestaurant    BusinessCategory = "restaurant"
	CategoryRepairCenter  BusinessCategory = "repair_center"
	CategoryOther         BusinessCategory = "other"
)

// Business owns queues. Staff membership gates the staff-initiated queue
// operations (advance, skip, no-show, manual check-in).
type Business struct {
	ID          string
	Name        string
	Description string
	Category    BusinessCategory
	OwnerID     string
	IsActive    bool
	CreatedAt   time.Time
}

// StaffAssignment links a staff account to a business.
type StaffAssignment struct {
	BusinessID string
	PatronID   string
	// AccessPINHash protects the staff dashboard; empty means no PIN set.
	AccessPINHash string
	AssignedAt    time.Time
}
