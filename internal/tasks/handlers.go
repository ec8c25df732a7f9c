package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/viprahq/viprago/internal/database/models"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewHandler(db *gorm.DB, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeNotificationEmail, h.HandleNotificationEmail)
	mux.HandleFunc(TypeLeaveReminder, h.HandleLeaveReminder)
}

// HandleNotificationEmail renders the email form of a notification and
// hands it to the delivery transport. Mail delivery itself is an external
// concern; dispatch is logged here. A notification that has disappeared
// or was archived before the task ran is dropped, not retried.
func (h *Handler) HandleNotificationEmail(ctx context.Context, t *asynq.Task) error {
	var payload NotificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling payload: %v: %w", err, asynq.SkipRetry)
	}

	var notification models.Notification
	if err := h.db.WithContext(ctx).
		Preload("Recipient").
		Where("id = ?", payload.NotificationID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Debug("notification gone before email dispatch", "notification_id", payload.NotificationID)
			return nil
		}
		return fmt.Errorf("loading notification: %w", err)
	}

	if notification.IsArchived || notification.Recipient == nil || !notification.Recipient.IsActive {
		return nil
	}

	subject := notification.Title
	body := notification.Message

	h.logger.Info("email dispatched",
		"to", notification.Recipient.Email,
		"subject", subject,
		"bytes", len(body),
		"notification_id", notification.ID,
	)

	return nil
}

// HandleLeaveReminder notifies reviewers about leave requests pending
// longer than the configured window. Each request is reminded once:
// reminder_sent_at marks it so the next sweep skips it.
func (h *Handler) HandleLeaveReminder(ctx context.Context, t *asynq.Task) error {
	var payload LeaveReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PendingDays <= 0 {
		payload.PendingDays = 3
	}

	cutoff := time.Now().AddDate(0, 0, -payload.PendingDays)

	var stale []models.LeaveRequest
	if err := h.db.WithContext(ctx).
		Preload("User").
		Where("status = ? AND reminder_sent_at IS NULL AND created_at < ?", models.LeaveStatusPending, cutoff).
		Find(&stale).Error; err != nil {
		return fmt.Errorf("listing stale leave requests: %w", err)
	}

	for i := range stale {
		req := &stale[i]
		recipients, err := h.leaveReviewers(ctx, req)
		if err != nil {
			h.logger.Error("resolving leave reviewers failed", "leave_id", req.ID, "error", err)
			continue
		}

		requester := "an employee"
		if req.User != nil {
			requester = req.User.Name
		}

		for _, recipientID := range recipients {
			n := models.Notification{
				OrganizationID:  req.OrganizationID,
				RecipientUserID: recipientID,
				Type:            models.NotifLeaveReminder,
				Title:           "Leave request awaiting review",
				Message:         fmt.Sprintf("A %s leave request from %s has been pending since %s.", req.Type, requester, req.CreatedAt.Format("Jan 2")),
				ResourceType:    "leave",
				ResourceID:      &req.ID,
			}
			if err := h.db.WithContext(ctx).Create(&n).Error; err != nil {
				h.logger.Error("reminder notification write failed", "leave_id", req.ID, "recipient", recipientID, "error", err)
			}
		}

		now := time.Now()
		if err := h.db.WithContext(ctx).Model(req).Update("reminder_sent_at", &now).Error; err != nil {
			h.logger.Error("marking reminder sent failed", "leave_id", req.ID, "error", err)
		}
	}

	h.logger.Info("leave reminder sweep complete", "reminded", len(stale))
	return nil
}

// leaveReviewers returns the requester's team manager when one exists,
// falling back to the organization's admins.
func (h *Handler) leaveReviewers(ctx context.Context, req *models.LeaveRequest) ([]uuid.UUID, error) {
	if req.User != nil && req.User.TeamID != nil {
		var team models.Team
		if err := h.db.WithContext(ctx).Where("id = ?", *req.User.TeamID).First(&team).Error; err == nil && team.ManagerID != nil {
			return []uuid.UUID{*team.ManagerID}, nil
		}
	}

	var admins []models.User
	if err := h.db.WithContext(ctx).
		Where("organization_id = ? AND role = ? AND is_active = ?", req.OrganizationID, models.RoleAdmin, true).
		Find(&admins).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(admins))
	for i, admin := range admins {
		ids[i] = admin.ID
	}
	return ids, nil
}
