package models

import "time"

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "ACTIVE"
	ListingStatusQueueFull ListingStatus = "QUEUE_FULL"
	ListingStatusRented    ListingStatus = "RENTED"
	ListingStatusInactive  ListingStatus = "INACTIVE"
)

// AcceptsInterest is true for the two statuses the queue toggles between
func (s ListingStatus) AcceptsInterest() bool {
	return s == ListingStatusActive || s == ListingStatusQueueFull
}

// ListingPreferences are the landlord's stated wishes about the tenant.
// Empty strings and zero bounds mean "no preference".
type ListingPreferences struct {
	Gender         string `gorm:"type:varchar(16)" json:"gender"`
	MinAge         int    `json:"min_age"`
	MaxAge         int    `json:"max_age"`
	Occupation     string `gorm:"type:varchar(32)" json:"occupation"`
	SmokersAllowed bool   `json:"smokers_allowed"`
	PetsAllowed    bool   `json:"pets_allowed"`
}

type Listing struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	LandlordID  uint               `gorm:"not null;index" json:"landlord_id"`
	Title       string             `gorm:"type:varchar(255)" json:"title"`
	Rent        int                `json:"rent"`
	Latitude    *float64           `json:"latitude"`
	Longitude   *float64           `json:"longitude"`
	Preferences ListingPreferences `gorm:"embedded;embeddedPrefix:pref_" json:"preferences"`
	Status      ListingStatus      `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}
