package models

import (
	"time"

	"github.com/google/uuid"
)

type EventScope string

const (
	ScopeOrganization EventScope = "organization"
	ScopeTeam         EventScope = "team"
	ScopePrivate      EventScope = "private"
)

type EventType string

const (
	EventTypeHoliday EventType = "holiday"
	EventTypeLeave   EventType = "leave"
	EventTypeMeeting EventType = "meeting"
	EventTypeOther   EventType = "other"
)

// CalendarEvent carries its full visibility scope so rule evaluation
// needs no extra lookups. Scope invariants: team => TeamID set and
// TargetUserID nil; private => TargetUserID set and TeamID nil;
// organization => both nil. Scope never changes after creation.
type CalendarEvent struct {
	Base
	OrganizationID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"organization_id"`
	Scope           EventScope `gorm:"not null;index" json:"scope"`
	TeamID          *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	TargetUserID    *uuid.UUID `gorm:"type:uuid;index" json:"target_user_id,omitempty"`
	CreatedByUserID uuid.UUID  `gorm:"type:uuid;index;not null" json:"created_by_user_id"`

	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `gorm:"not null;default:'other'" json:"type"`
	StartDate   time.Time `gorm:"not null;index" json:"start_date"`
	EndDate     time.Time `gorm:"not null" json:"end_date"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Team         *Team         `gorm:"foreignKey:TeamID" json:"-"`
	TargetUser   *User         `gorm:"foreignKey:TargetUserID" json:"-"`
	CreatedBy    *User         `gorm:"foreignKey:CreatedByUserID" json:"-"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}
