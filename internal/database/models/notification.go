package models

import "github.com/google/uuid"

type NotificationType string

const (
	NotifProjectAssigned   NotificationType = "project_assigned"
	NotifProjectReassigned NotificationType = "project_reassigned"
	NotifProjectUnassigned NotificationType = "project_unassigned"
	NotifLeaveReviewed     NotificationType = "leave_reviewed"
	NotifLeaveReminder     NotificationType = "leave_reminder"
	NotifClaimReviewed     NotificationType = "claim_reviewed"
)

// Notification rows are created exclusively by the fan-out service and
// mutated only by read/archive actions from the recipient.
type Notification struct {
	Base
	OrganizationID  uuid.UUID        `gorm:"type:uuid;index;not null" json:"organization_id"`
	RecipientUserID uuid.UUID        `gorm:"type:uuid;index;not null" json:"recipient_user_id"`
	SenderUserID    *uuid.UUID       `gorm:"type:uuid" json:"sender_user_id,omitempty"`
	Type            NotificationType `gorm:"not null;index" json:"type"`
	Title           string           `gorm:"not null" json:"title"`
	Message         string           `json:"message"`
	ResourceType    string           `gorm:"index" json:"resource_type,omitempty"` // project, leave, claim
	ResourceID      *uuid.UUID       `gorm:"type:uuid;index" json:"resource_id,omitempty"`
	ReadStatus      bool             `gorm:"default:false;index" json:"read_status"`
	IsArchived      bool             `gorm:"default:false;index" json:"is_archived"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Recipient    *User         `gorm:"foreignKey:RecipientUserID" json:"-"`
	Sender       *User         `gorm:"foreignKey:SenderUserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
