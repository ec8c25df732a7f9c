package models

import "github.com/google/uuid"

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

type Project struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_projects_org_key" json:"organization_id"`

	// ProjectKey is derived from the name at creation and immutable after.
	// The composite unique index is the authoritative collision guard.
	ProjectKey  string        `gorm:"size:16;not null;uniqueIndex:idx_projects_org_key" json:"project_key"`
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `gorm:"not null;index;default:'active'" json:"status"`

	// Relationships
	Organization *Organization      `gorm:"foreignKey:OrganizationID" json:"-"`
	Assignment   *ProjectAssignment `gorm:"foreignKey:ProjectID" json:"assignment,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectAssignment links a project to exactly one team and one manager.
// Latest write wins; no history is kept.
type ProjectAssignment struct {
	Base
	ProjectID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"project_id"`
	OrganizationID    uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	TeamID            uuid.UUID `gorm:"type:uuid;index;not null" json:"team_id"`
	AssignedManagerID uuid.UUID `gorm:"type:uuid;index;not null" json:"assigned_manager_id"`

	// Relationships
	Project         *Project `gorm:"foreignKey:ProjectID" json:"-"`
	Team            *Team    `gorm:"foreignKey:TeamID" json:"-"`
	AssignedManager *User    `gorm:"foreignKey:AssignedManagerID" json:"-"`
}

func (ProjectAssignment) TableName() string {
	return "project_assignments"
}
