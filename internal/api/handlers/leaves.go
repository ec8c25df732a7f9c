package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/api/validation"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/rules"
	"gorm.io/gorm"
)

type LeaveHandler struct {
	db       *gorm.DB
	logger   *slog.Logger
	notifier *notify.Service
}

func NewLeaveHandler(db *gorm.DB, logger *slog.Logger, notifier *notify.Service) *LeaveHandler {
	return &LeaveHandler{db: db, logger: logger, notifier: notifier}
}

// CreateLeaveRequest carries a new leave request
type CreateLeaveRequest struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

func (r CreateLeaveRequest) Validate() map[string]string {
	errs := make(map[string]string)
	switch models.LeaveType(r.Type) {
	case models.LeaveTypeAnnual, models.LeaveTypeSick, models.LeaveTypeUnpaid, models.LeaveTypeOther:
	default:
		errs["type"] = "Type must be one of: annual, sick, unpaid, other"
	}
	if _, ok := validation.ParseDate(r.StartDate); !ok {
		errs["start_date"] = "Start date must be YYYY-MM-DD"
	}
	if _, ok := validation.ParseDate(r.EndDate); !ok {
		errs["end_date"] = "End date must be YYYY-MM-DD"
	}
	if len(errs) == 0 && !validation.IsValidDateRange(r.StartDate, r.EndDate) {
		errs["end_date"] = "End date must not be before start date"
	}
	return errs
}

// LeaveResponse represents a leave request in API responses
type LeaveResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Type            string `json:"type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
	ReviewerComment string `json:"reviewer_comment,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func leaveToResponse(l *models.LeaveRequest) LeaveResponse {
	resp := LeaveResponse{
		ID:              l.ID.String(),
		UserID:          l.UserID.String(),
		Type:            string(l.Type),
		StartDate:       l.StartDate.Format(validation.DateLayout),
		EndDate:         l.EndDate.Format(validation.DateLayout),
		Reason:          l.Reason,
		Status:          string(l.Status),
		ReviewerComment: l.ReviewerComment,
		CreatedAt:       l.CreatedAt.Format(time.RFC3339),
	}
	if l.ReviewedByID != nil {
		resp.ReviewedBy = l.ReviewedByID.String()
	}
	if l.ReviewedAt != nil {
		resp.ReviewedAt = l.ReviewedAt.Format(time.RFC3339)
	}
	return resp
}

// Create handles POST /api/v1/leaves
func (h *LeaveHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	startDate, _ := validation.ParseDate(req.StartDate)
	endDate, _ := validation.ParseDate(req.EndDate)

	leave := models.LeaveRequest{
		OrganizationID: principal.OrganizationID,
		UserID:         principal.UserID,
		Type:           models.LeaveType(req.Type),
		StartDate:      startDate,
		EndDate:        endDate,
		Reason:         req.Reason,
		Status:         models.LeaveStatusPending,
	}

	if err := h.db.Create(&leave).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create leave request"})
		return
	}

	writeJSON(w, http.StatusCreated, leaveToResponse(&leave))
}

// List handles GET /api/v1/leaves. Admins see the whole organization,
// managers their team, members only their own requests.
func (h *LeaveHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.LeaveRequest{}).
		Where("organization_id = ?", principal.OrganizationID)

	switch principal.Role {
	case models.RoleAdmin:
		// no additional scoping
	case models.RoleManager:
		if principal.TeamID != nil {
			query = query.Where("user_id = ? OR user_id IN (?)", principal.UserID,
				h.db.Model(&models.User{}).Select("id").Where("team_id = ?", *principal.TeamID))
		} else {
			query = query.Where("user_id = ?", principal.UserID)
		}
	default:
		query = query.Where("user_id = ?", principal.UserID)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count leave requests"})
		return
	}

	var leaves []models.LeaveRequest
	if err := query.
		Order("start_date DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&leaves).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list leave requests"})
		return
	}

	response := make([]LeaveResponse, len(leaves))
	for i := range leaves {
		response[i] = leaveToResponse(&leaves[i])
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

// ReviewLeaveRequest carries an optional reviewer comment.
type ReviewLeaveRequest struct {
	Comment string `json:"comment,omitempty"`
}

// Approve handles POST /api/v1/leaves/:id/approve
func (h *LeaveHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, models.LeaveStatusApproved)
}

// Reject handles POST /api/v1/leaves/:id/reject
func (h *LeaveHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, models.LeaveStatusRejected)
}

// review flips a pending leave request to its terminal status. Like
// claim review, the flip is conditional on status='Pending' so a second
// reviewer gets a conflict rather than silently overwriting the first.
func (h *LeaveHandler) review(w http.ResponseWriter, r *http.Request, outcome models.LeaveStatus) {
	principal := middleware.GetPrincipal(r.Context())

	if !rules.CanReview(principal.Role) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only managers and admins may review leave requests"})
		return
	}

	leaveID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid leave request ID"})
		return
	}

	var req ReviewLeaveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var leave models.LeaveRequest
	if err := h.db.
		Where("id = ? AND organization_id = ?", leaveID, principal.OrganizationID).
		First(&leave).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Leave request not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load leave request"})
		return
	}

	if principal.Role == models.RoleManager && !h.managesRequester(principal, leave.UserID) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Managers may only review their own team's requests"})
		return
	}

	now := time.Now().UTC()
	result := h.db.Model(&models.LeaveRequest{}).
		Where("id = ? AND status = ?", leave.ID, models.LeaveStatusPending).
		Updates(map[string]interface{}{
			"status":           outcome,
			"reviewed_by_id":   principal.UserID,
			"reviewed_at":      now,
			"reviewer_comment": strings.TrimSpace(req.Comment),
		})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to review leave request"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Leave request has already been reviewed"})
		return
	}

	leave.Status = outcome
	leave.ReviewedByID = &principal.UserID
	leave.ReviewedAt = &now
	leave.ReviewerComment = strings.TrimSpace(req.Comment)

	wording := "approved"
	if outcome == models.LeaveStatusRejected {
		wording = "rejected"
	}
	err = h.notifier.Create(r.Context(), &models.Notification{
		OrganizationID:  leave.OrganizationID,
		RecipientUserID: leave.UserID,
		SenderUserID:    &principal.UserID,
		Type:            models.NotifLeaveReviewed,
		Title:           fmt.Sprintf("Leave request %s", wording),
		Message:         fmt.Sprintf("Your %s leave from %s to %s was %s.", leave.Type, leave.StartDate.Format(validation.DateLayout), leave.EndDate.Format(validation.DateLayout), wording),
		ResourceType:    "leave",
		ResourceID:      &leave.ID,
	})
	if err != nil {
		h.logger.Error("leave review notification failed", "leave_id", leave.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, leaveToResponse(&leave))
}

// managesRequester reports whether the requester is on the reviewing
// manager's team. Self-review is never allowed.
func (h *LeaveHandler) managesRequester(principal rules.Principal, requesterID uuid.UUID) bool {
	if requesterID == principal.UserID || principal.TeamID == nil {
		return false
	}
	var count int64
	if err := h.db.Model(&models.User{}).
		Where("id = ? AND team_id = ?", requesterID, *principal.TeamID).
		Count(&count).Error; err != nil {
		h.logger.Error("resolving requester team failed", "requester_id", requesterID, "error", err)
		return false
	}
	return count > 0
}
