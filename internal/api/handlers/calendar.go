package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/api/validation"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/rules"
	"gorm.io/gorm"
)

type CalendarHandler struct {
	db          *gorm.DB
	maxUploadMB int
}

func NewCalendarHandler(db *gorm.DB, maxUploadMB int) *CalendarHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &CalendarHandler{db: db, maxUploadMB: maxUploadMB}
}

// CreateEventRequest represents the request to create a calendar event
type CreateEventRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Type         string `json:"type"`
	Scope        string `json:"scope"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	TeamID       string `json:"team_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
}

func (r CreateEventRequest) Validate() map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(r.Title) == "" {
		errs["title"] = "Title is required"
	}
	switch models.EventScope(r.Scope) {
	case models.ScopeOrganization, models.ScopeTeam, models.ScopePrivate:
	default:
		errs["scope"] = "Scope must be one of: organization, team, private"
	}
	if !validation.IsValidDateRange(r.StartDate, r.EndDate) {
		errs["start_date"] = "Dates must be YYYY-MM-DD with start_date <= end_date"
	}
	if r.TeamID != "" && !validation.IsValidUUID(r.TeamID) {
		errs["team_id"] = "Invalid team ID"
	}
	if r.TargetUserID != "" && !validation.IsValidUUID(r.TargetUserID) {
		errs["target_user_id"] = "Invalid target user ID"
	}

	return errs
}

// EventResponse represents a calendar event in API responses
type EventResponse struct {
	ID              string `json:"id"`
	Scope           string `json:"scope"`
	TeamID          string `json:"team_id,omitempty"`
	TargetUserID    string `json:"target_user_id,omitempty"`
	CreatedByUserID string `json:"created_by_user_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Type            string `json:"type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	CreatedAt       string `json:"created_at"`
}

func eventToResponse(ev *models.CalendarEvent) EventResponse {
	resp := EventResponse{
		ID:              ev.ID.String(),
		Scope:           string(ev.Scope),
		CreatedByUserID: ev.CreatedByUserID.String(),
		Title:           ev.Title,
		Description:     ev.Description,
		Type:            string(ev.Type),
		StartDate:       ev.StartDate.Format(validation.DateLayout),
		EndDate:         ev.EndDate.Format(validation.DateLayout),
		CreatedAt:       ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.TeamID != nil {
		resp.TeamID = ev.TeamID.String()
	}
	if ev.TargetUserID != nil {
		resp.TargetUserID = ev.TargetUserID.String()
	}
	return resp
}

// Create handles POST /api/v1/calendar/events. Field invariants are
// checked before the role gate: an incomplete request fails with 400
// regardless of who sent it, and only a field-complete request with a
// disallowed role/scope pairing earns a 403.
func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	scope := models.EventScope(req.Scope)

	var teamID, targetUserID *uuid.UUID
	if req.TeamID != "" {
		id, _ := uuid.Parse(req.TeamID)
		teamID = &id
	}
	if req.TargetUserID != "" {
		id, _ := uuid.Parse(req.TargetUserID)
		targetUserID = &id
	}

	teamID, targetUserID, err := rules.ValidateEventFields(principal, scope, teamID, targetUserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if err := rules.CanCreateEvent(principal.Role, scope); err != nil {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Role may not create events with this scope"})
		return
	}

	// Cross-org references are rejected before the write
	if teamID != nil {
		var count int64
		h.db.Model(&models.Team{}).
			Where("id = ? AND organization_id = ?", teamID, principal.OrganizationID).
			Count(&count)
		if count == 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Team not found in this organization"})
			return
		}
	}
	if targetUserID != nil && *targetUserID != principal.UserID {
		var count int64
		h.db.Model(&models.User{}).
			Where("id = ? AND organization_id = ?", targetUserID, principal.OrganizationID).
			Count(&count)
		if count == 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Target user not found in this organization"})
			return
		}
	}

	startDate, _ := validation.ParseDate(req.StartDate)
	endDate, _ := validation.ParseDate(req.EndDate)

	eventType := models.EventType(req.Type)
	if eventType == "" {
		eventType = models.EventTypeOther
	}

	event := models.CalendarEvent{
		OrganizationID:  principal.OrganizationID,
		Scope:           scope,
		TeamID:          teamID,
		TargetUserID:    targetUserID,
		CreatedByUserID: principal.UserID,
		Title:           validation.SanitizeString(req.Title),
		Description:     validation.SanitizeString(req.Description),
		Type:            eventType,
		StartDate:       startDate,
		EndDate:         endDate,
	}

	if err := h.db.Create(&event).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create event"})
		return
	}

	writeJSON(w, http.StatusCreated, eventToResponse(&event))
}

// List handles GET /api/v1/calendar/events. The visibility rules are
// mirrored into the query so callers only ever receive events they may
// see: organization scope, their team's scope, private events targeting
// them, and everything they created.
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	visible := h.db.
		Where("scope = ?", models.ScopeOrganization).
		Or("created_by_user_id = ?", principal.UserID).
		Or("scope = ? AND target_user_id = ?", models.ScopePrivate, principal.UserID)
	if principal.TeamID != nil {
		visible = visible.Or("scope = ? AND team_id = ?", models.ScopeTeam, *principal.TeamID)
	}

	query := h.db.Model(&models.CalendarEvent{}).
		Where("organization_id = ?", principal.OrganizationID).
		Where(visible)

	if from := r.URL.Query().Get("from"); from != "" {
		if t, ok := validation.ParseDate(from); ok {
			query = query.Where("end_date >= ?", t)
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, ok := validation.ParseDate(to); ok {
			query = query.Where("start_date <= ?", t)
		}
	}

	var events []models.CalendarEvent
	if err := query.Order("start_date ASC").Find(&events).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list events"})
		return
	}

	response := make([]EventResponse, len(events))
	for i := range events {
		response[i] = eventToResponse(&events[i])
	}

	writeJSON(w, http.StatusOK, response)
}

// BulkUpload handles POST /api/v1/calendar/events/bulk: admin-only CSV
// import of organization-wide events. Rows succeed or fail individually;
// the response is 207 Multi-Status with per-row outcomes.
func (h *CalendarHandler) BulkUpload(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadMB)<<20)
	if err := r.ParseMultipartForm(int64(h.maxUploadMB) << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid multipart form"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "CSV file is required"})
		return
	}
	defer file.Close()

	result, err := h.importEvents(principal, file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusMultiStatus, result)
}

// csvColumns maps a header row to column indexes.
func csvColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func csvField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (h *CalendarHandler) importEvents(principal rules.Principal, file io.Reader) (*dto.BulkUploadResponse, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New("CSV file is empty or malformed")
	}
	cols := csvColumns(header)
	if _, ok := cols["title"]; !ok {
		return nil, errors.New("CSV header must include a title column")
	}

	result := &dto.BulkUploadResponse{
		Errors:         []dto.BulkRowError{},
		SkippedDetails: []dto.BulkRowDetail{},
	}
	seen := make(map[string]bool)

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, dto.BulkRowError{Row: row, Message: "Malformed CSV row"})
			continue
		}

		title := validation.SanitizeString(csvField(record, cols, "title"))
		startRaw := csvField(record, cols, "start_date")
		endRaw := csvField(record, cols, "end_date")
		if endRaw == "" {
			endRaw = startRaw
		}

		if title == "" {
			result.Errors = append(result.Errors, dto.BulkRowError{Row: row, Message: "Missing title"})
			continue
		}
		startDate, ok := validation.ParseDate(startRaw)
		if !ok {
			result.Errors = append(result.Errors, dto.BulkRowError{Row: row, Message: "Invalid start_date"})
			continue
		}
		endDate, ok := validation.ParseDate(endRaw)
		if !ok || endDate.Before(startDate) {
			result.Errors = append(result.Errors, dto.BulkRowError{Row: row, Message: "Invalid end_date"})
			continue
		}

		dupKey := strings.ToLower(title) + "|" + startRaw
		if seen[dupKey] {
			result.Skipped++
			result.SkippedDetails = append(result.SkippedDetails, dto.BulkRowDetail{
				Row: row, Title: title, Reason: "Duplicate row in file",
			})
			continue
		}
		seen[dupKey] = true

		var count int64
		h.db.Model(&models.CalendarEvent{}).
			Where("organization_id = ? AND title = ? AND start_date = ?", principal.OrganizationID, title, startDate).
			Count(&count)
		if count > 0 {
			result.Skipped++
			result.SkippedDetails = append(result.SkippedDetails, dto.BulkRowDetail{
				Row: row, Title: title, Reason: "Event already exists",
			})
			continue
		}

		eventType := models.EventType(csvField(record, cols, "type"))
		if eventType == "" {
			eventType = models.EventTypeHoliday
		}

		event := models.CalendarEvent{
			OrganizationID:  principal.OrganizationID,
			Scope:           models.ScopeOrganization,
			CreatedByUserID: principal.UserID,
			Title:           title,
			Description:     validation.SanitizeString(csvField(record, cols, "description")),
			Type:            eventType,
			StartDate:       startDate,
			EndDate:         endDate,
		}
		if err := h.db.Create(&event).Error; err != nil {
			result.Errors = append(result.Errors, dto.BulkRowError{Row: row, Message: fmt.Sprintf("Insert failed: %v", err)})
			continue
		}
		result.Added++
	}

	return result, nil
}
