package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeNotificationEmail = "notify:email"
	TypeLeaveReminder     = "leave:reminder"
)

// NotificationEmailPayload identifies a notification whose email form
// should be rendered and dispatched.
type NotificationEmailPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func NewNotificationEmailTask(payload NotificationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationEmail, data), nil
}

// LeaveReminderPayload drives one reminder sweep over leave requests
// that have been pending longer than PendingDays.
type LeaveReminderPayload struct {
	PendingDays int `json:"pending_days"`
}

func NewLeaveReminderTask(payload LeaveReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLeaveReminder, data), nil
}
