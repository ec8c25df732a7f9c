package models

import (
	"time"

	"github.com/google/uuid"
)

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "Pending"
	LeaveStatusApproved LeaveStatus = "Approved"
	LeaveStatusRejected LeaveStatus = "Rejected"
)

type LeaveType string

const (
	LeaveTypeAnnual LeaveType = "annual"
	LeaveTypeSick   LeaveType = "sick"
	LeaveTypeUnpaid LeaveType = "unpaid"
	LeaveTypeOther  LeaveType = "other"
)

type LeaveRequest struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	Type      LeaveType   `gorm:"not null" json:"type"`
	StartDate time.Time   `gorm:"not null;index" json:"start_date"`
	EndDate   time.Time   `gorm:"not null" json:"end_date"`
	Reason    string      `json:"reason,omitempty"`
	Status    LeaveStatus `gorm:"not null;index;default:'Pending'" json:"status"`

	ReviewedByID    *uuid.UUID `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewerComment string     `json:"reviewer_comment,omitempty"`

	// Set when the pending-too-long reminder has been sent, so the
	// worker tick does not notify managers twice.
	ReminderSentAt *time.Time `json:"-"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	User         *User         `gorm:"foreignKey:UserID" json:"-"`
	ReviewedBy   *User         `gorm:"foreignKey:ReviewedByID" json:"-"`
}

func (LeaveRequest) TableName() string {
	return "leave_requests"
}
