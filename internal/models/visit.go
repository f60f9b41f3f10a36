package models

import "time"

type SlotType string

const (
	SlotTypeSingle  SlotType = "SINGLE"
	SlotTypeOpenDay SlotType = "OPENDAY"
	SlotTypeVirtual SlotType = "VIRTUAL"
)

type VisitSlot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ListingID uint      `gorm:"not null;index" json:"listing_id"`
	Type      SlotType  `gorm:"type:varchar(16);not null" json:"type"`
	Date      string    `gorm:"type:varchar(10);not null" json:"date"`
	StartTime string    `gorm:"type:varchar(5);not null" json:"start_time"`
	EndTime   string    `gorm:"type:varchar(5);not null" json:"end_time"`
	MaxGuests int       `gorm:"not null" json:"max_guests"`
	CreatedAt time.Time `json:"created_at"`
}

func (VisitSlot) TableName() string {
	return "visit_slots"
}

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Only attendance reporting moves a confirmed booking to COMPLETED or NO_SHOW
var bookingTransitions = transitions[BookingStatus]{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusNoShow, BookingStatusCancelled},
}

// HoldsSeat is true for bookings that count against the slot capacity
func (s BookingStatus) HoldsSeat() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type Booking struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	SlotID    uint          `gorm:"not null;index" json:"slot_id"`
	TenantID  uint          `gorm:"not null;index" json:"tenant_id"`
	Status    BookingStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) TransitionTo(next BookingStatus) error {
	if err := bookingTransitions.check("booking", b.ID, b.Status, next); err != nil {
		return err
	}
	b.Status = next
	return nil
}
