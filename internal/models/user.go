package models

import "time"

type Role string

const (
	RoleTenant   Role = "TENANT"
	RoleLandlord Role = "LANDLORD"
)

// Profile holds the fields the compatibility scorer reads
type Profile struct {
	Age            int      `json:"age"`
	Gender         string   `gorm:"type:varchar(16)" json:"gender"`
	Occupation     string   `gorm:"type:varchar(32)" json:"occupation"`
	Smoker         bool     `json:"smoker"`
	HasPets        bool     `json:"has_pets"`
	MaxBudget      int      `json:"max_budget"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	SearchRadiusKm float64  `json:"search_radius_km"`
}

type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Role           Role       `gorm:"type:varchar(16);not null;index" json:"role"`
	Name           string     `gorm:"type:varchar(120)" json:"name"`
	Email          string     `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	TelegramChatID *string    `gorm:"type:varchar(64)" json:"-"`
	Profile        Profile    `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`
	NoShowCount    int        `gorm:"not null;default:0" json:"no_show_count"`
	BlockedUntil   *time.Time `json:"blocked_until"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsBlockedAt reports whether the user's block is still running at t.
// Expired blocks are left in place; only the comparison changes.
func (u *User) IsBlockedAt(t time.Time) bool {
	return u.BlockedUntil != nil && u.BlockedUntil.After(t)
}
