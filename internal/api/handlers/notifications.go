package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db       *gorm.DB
	notifier *notify.Service
}

func NewNotificationHandler(db *gorm.DB, notifier *notify.Service) *NotificationHandler {
	return &NotificationHandler{db: db, notifier: notifier}
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	ReadStatus   bool   `json:"read_status"`
	IsArchived   bool   `json:"is_archived"`
	CreatedAt    string `json:"created_at"`
}

func notificationToResponse(n *models.Notification) NotificationResponse {
	resp := NotificationResponse{
		ID:           n.ID.String(),
		Type:         string(n.Type),
		Title:        n.Title,
		Message:      n.Message,
		ResourceType: n.ResourceType,
		ReadStatus:   n.ReadStatus,
		IsArchived:   n.IsArchived,
		CreatedAt:    n.CreatedAt.Format(time.RFC3339),
	}
	if n.ResourceID != nil {
		resp.ResourceID = n.ResourceID.String()
	}
	return resp
}

// List handles GET /api/v1/notifications. Users only ever see their own
// notifications; archived ones are hidden unless requested.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.Notification{}).
		Where("recipient_user_id = ?", userID)

	if r.URL.Query().Get("include_archived") != "true" {
		query = query.Where("is_archived = ?", false)
	}
	if unread := r.URL.Query().Get("unread"); unread == "true" {
		query = query.Where("read_status = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count notifications"})
		return
	}

	var notifications []models.Notification
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&notifications).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list notifications"})
		return
	}

	response := make([]NotificationResponse, len(notifications))
	for i := range notifications {
		response[i] = notificationToResponse(&notifications[i])
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// UnreadCount handles GET /api/v1/notifications/unread-count. Served
// from the in-process cache when fresh; a stale count may lag mutations
// from another instance by up to the cache TTL.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	count, err := h.notifier.UnreadCount(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count unread notifications"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

// MarkRead handles PATCH /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	notification, ok := h.loadOwn(w, r, userID)
	if !ok {
		return
	}

	if !notification.ReadStatus {
		if err := h.db.Model(notification).Update("read_status", true).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to mark notification read"})
			return
		}
		h.notifier.InvalidateCount(userID)
	}

	writeJSON(w, http.StatusOK, notificationToResponse(notification))
}

// MarkAllRead handles PATCH /api/v1/notifications/mark-all-read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	result := h.db.Model(&models.Notification{}).
		Where("recipient_user_id = ? AND read_status = ?", userID, false).
		Update("read_status", true)
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to mark notifications read"})
		return
	}
	h.notifier.InvalidateCount(userID)

	writeJSON(w, http.StatusOK, map[string]int64{"updated": result.RowsAffected})
}

// Archive handles PATCH /api/v1/notifications/:id/archive. Archived
// notifications drop out of both the default list and the unread count.
func (h *NotificationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	notification, ok := h.loadOwn(w, r, userID)
	if !ok {
		return
	}

	if !notification.IsArchived {
		if err := h.db.Model(notification).Update("is_archived", true).Error; err != nil {
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to archive notification"})
			return
		}
		h.notifier.InvalidateCount(userID)
	}

	writeJSON(w, http.StatusOK, notificationToResponse(notification))
}

// loadOwn fetches the notification addressed by the URL and verifies it
// belongs to the caller. Foreign notifications read as 404, not 403, so
// their existence leaks nothing.
func (h *NotificationHandler) loadOwn(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*models.Notification, bool) {
	notifID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid notification ID"})
		return nil, false
	}

	var notification models.Notification
	if err := h.db.
		Where("id = ? AND recipient_user_id = ?", notifID, userID).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Notification not found"})
			return nil, false
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load notification"})
		return nil, false
	}
	return &notification, true
}
