package models

import "time"

type InterestStatus string

const (
	InterestStatusActive    InterestStatus = "ACTIVE"
	InterestStatusWaiting   InterestStatus = "WAITING"
	InterestStatusWithdrawn InterestStatus = "WITHDRAWN"
	InterestStatusRemoved   InterestStatus = "REMOVED"
)

var interestTransitions = transitions[InterestStatus]{
	InterestStatusWaiting: {InterestStatusActive, InterestStatusWithdrawn},
	InterestStatusActive:  {InterestStatusWithdrawn, InterestStatusRemoved},
}

// IsOpen is true while the interest still holds or waits for a slot
func (s InterestStatus) IsOpen() bool {
	return s == InterestStatusActive || s == InterestStatusWaiting
}

// OpenInterestStatuses lists the non-terminal statuses, for queries
var OpenInterestStatuses = []InterestStatus{InterestStatusActive, InterestStatusWaiting}

type Interest struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	ListingID          uint           `gorm:"not null;index" json:"listing_id"`
	TenantID           uint           `gorm:"not null;index" json:"tenant_id"`
	GroupID            *uint          `gorm:"index" json:"group_id"`
	Status             InterestStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Position           *int           `json:"position"`
	Score              int            `gorm:"not null" json:"score"`
	SchedulingApproved bool           `gorm:"not null;default:false" json:"scheduling_approved"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Interest) TableName() string {
	return "interests"
}

// TransitionTo moves the interest to next or fails with ErrInvalidTransition.
func (i *Interest) TransitionTo(next InterestStatus) error {
	if err := interestTransitions.check("interest", i.ID, i.Status, next); err != nil {
		return err
	}
	i.Status = next
	return nil
}

// Promote makes a waiting interest active in the given slot
func (i *Interest) Promote(position int) error {
	if err := i.TransitionTo(InterestStatusActive); err != nil {
		return err
	}
	i.Position = &position
	return nil
}
