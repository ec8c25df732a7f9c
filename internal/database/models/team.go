package models

import "github.com/google/uuid"

type Team struct {
	Base
	OrganizationID uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string     `gorm:"not null" json:"name"`
	ManagerID      *uuid.UUID `gorm:"type:uuid;index" json:"manager_id,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Manager      *User         `gorm:"foreignKey:ManagerID" json:"-"`
	Members      []User        `gorm:"foreignKey:TeamID" json:"-"`
}

func (Team) TableName() string {
	return "teams"
}
