package models

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

type User struct {
	Base
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	Name           string     `json:"name"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	Role           Role       `gorm:"not null;default:'member'" json:"role"`
	TeamID         *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`

	// Employee record fields
	JobTitle   string `json:"job_title,omitempty"`
	Department string `json:"department,omitempty"`
	JoinedAt   int64  `json:"joined_at,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	Team         *Team         `gorm:"foreignKey:TeamID" json:"-"`
}

func (User) TableName() string {
	return "users"
}
