// Package notify creates notification records for state-changing actions
// and maintains per-user unread counts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/tasks"
	"gorm.io/gorm"
)

// AssignmentAction identifies what happened to a project assignment.
type AssignmentAction string

const (
	AssignmentCreated AssignmentAction = "created"
	AssignmentUpdated AssignmentAction = "updated"
	AssignmentDeleted AssignmentAction = "deleted"
)

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	queue  *asynq.Client // nil when Redis is unavailable
	cache  *CountCache
}

func NewService(db *gorm.DB, logger *slog.Logger, queue *asynq.Client, cache *CountCache) *Service {
	return &Service{db: db, logger: logger, queue: queue, cache: cache}
}

// AssignmentChanged fans out one notification to the assigned manager and
// one per member of the linked team. Membership is snapshotted here; later
// team changes do not alter already-sent notifications. The fan-out is not
// transactional with the assignment write: a failed recipient is logged
// and skipped, never rolled back. A manager who is also on the team gets
// both notifications; the two carry different framing.
func (s *Service) AssignmentChanged(ctx context.Context, action AssignmentAction, project *models.Project, assignment *models.ProjectAssignment, actorID uuid.UUID) {
	var members []models.User
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND organization_id = ? AND is_active = ?", assignment.TeamID, assignment.OrganizationID, true).
		Find(&members).Error; err != nil {
		s.logger.Error("fan-out: listing team members failed",
			"project_id", project.ID, "team_id", assignment.TeamID, "error", err)
		members = nil
	}

	notifType, managerMsg, memberMsg := assignmentWording(action, project)

	notifications := make([]models.Notification, 0, len(members)+1)
	notifications = append(notifications, models.Notification{
		OrganizationID:  assignment.OrganizationID,
		RecipientUserID: assignment.AssignedManagerID,
		SenderUserID:    &actorID,
		Type:            notifType,
		Title:           fmt.Sprintf("Project %s %s", project.ProjectKey, action),
		Message:         managerMsg,
		ResourceType:    "project",
		ResourceID:      &project.ID,
	})
	for _, member := range members {
		notifications = append(notifications, models.Notification{
			OrganizationID:  assignment.OrganizationID,
			RecipientUserID: member.ID,
			SenderUserID:    &actorID,
			Type:            notifType,
			Title:           fmt.Sprintf("Project %s %s", project.ProjectKey, action),
			Message:         memberMsg,
			ResourceType:    "project",
			ResourceID:      &project.ID,
		})
	}

	for i := range notifications {
		s.deliver(ctx, &notifications[i])
	}
}

func assignmentWording(action AssignmentAction, project *models.Project) (models.NotificationType, string, string) {
	switch action {
	case AssignmentUpdated:
		return models.NotifProjectReassigned,
			fmt.Sprintf("The assignment for project %q was updated and you are now its manager.", project.Name),
			fmt.Sprintf("The assignment for project %q was updated and your team is now linked to it.", project.Name)
	case AssignmentDeleted:
		return models.NotifProjectUnassigned,
			fmt.Sprintf("You are no longer the manager of project %q.", project.Name),
			fmt.Sprintf("Your team is no longer linked to project %q.", project.Name)
	default:
		return models.NotifProjectAssigned,
			fmt.Sprintf("You have been assigned as the manager of project %q.", project.Name),
			fmt.Sprintf("Your team has been assigned to project %q.", project.Name)
	}
}

// Create writes a single notification, invalidates the recipient's unread
// count and enqueues the email form as a best-effort background task.
func (s *Service) Create(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	s.afterDelivery(n)
	return nil
}

// deliver is Create without error propagation, for fan-out loops where a
// single recipient failure must not block the rest.
func (s *Service) deliver(ctx context.Context, n *models.Notification) {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.logger.Error("fan-out: notification write failed",
			"recipient", n.RecipientUserID, "type", n.Type, "error", err)
		return
	}
	s.afterDelivery(n)
}

func (s *Service) afterDelivery(n *models.Notification) {
	if s.cache != nil {
		s.cache.Invalidate(n.RecipientUserID)
	}
	if s.queue == nil {
		return
	}
	task, err := tasks.NewNotificationEmailTask(tasks.NotificationEmailPayload{
		NotificationID: n.ID,
	})
	if err != nil {
		s.logger.Error("building email task failed", "notification_id", n.ID, "error", err)
		return
	}
	if _, err := s.queue.Enqueue(task, asynq.Queue("low")); err != nil {
		s.logger.Warn("enqueueing email task failed", "notification_id", n.ID, "error", err)
	}
}

// InvalidateCount drops the user's cached unread count after a read or
// archive mutation.
func (s *Service) InvalidateCount(userID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}

// UnreadCount returns the user's unread, unarchived notification count,
// served from the cache when fresh.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.cache != nil {
		if count, ok := s.cache.Get(userID); ok {
			return count, nil
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_user_id = ? AND read_status = ? AND is_archived = ?", userID, false, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(userID, count)
	}
	return count, nil
}
