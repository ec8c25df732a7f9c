package models

import (
	"time"

	"github.com/google/uuid"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "Pending"
	ClaimStatusApproved ClaimStatus = "Approved"
	ClaimStatusRejected ClaimStatus = "Rejected"
)

// ReimbursementClaim moves Pending -> {Approved, Rejected}; terminal
// states are final. Transitions use a conditional update on
// status='Pending' so two racing approvers cannot both win.
type ReimbursementClaim struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	Category    string      `gorm:"not null" json:"category"` // travel, meals, equipment, other
	AmountCents int64       `gorm:"not null" json:"amount_cents"`
	Currency    string      `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Description string      `json:"description,omitempty"`
	ReceiptPath string      `json:"receipt_path,omitempty"`
	Status      ClaimStatus `gorm:"not null;index;default:'Pending'" json:"status"`

	// Bank detail for payout, age-encrypted at rest
	EncryptedBankDetail []byte `gorm:"type:bytea" json:"-"`

	// Review outcome
	ApprovedByID    *uuid.UUID `gorm:"type:uuid" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	PayrollMonth    string     `gorm:"size:7;index" json:"payroll_month,omitempty"` // e.g. 2026-08

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	User         *User         `gorm:"foreignKey:UserID" json:"-"`
	ApprovedBy   *User         `gorm:"foreignKey:ApprovedByID" json:"-"`
}

func (ReimbursementClaim) TableName() string {
	return "reimbursement_claims"
}
