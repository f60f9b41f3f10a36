package models

import "time"

// Group is a set of housemates searching together
type Group struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"type:varchar(120)" json:"name"`
	Members     []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	DissolvedAt *time.Time    `json:"dissolved_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (Group) TableName() string {
	return "groups"
}

type GroupMember struct {
	GroupID  uint      `gorm:"primaryKey" json:"group_id"`
	TenantID uint      `gorm:"primaryKey" json:"tenant_id"`
	JoinedAt time.Time `json:"joined_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

func (g *Group) HasMember(tenantID uint) bool {
	for _, m := range g.Members {
		if m.TenantID == tenantID {
			return true
		}
	}
	return false
}
