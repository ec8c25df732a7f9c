package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/projects"
	"gorm.io/gorm"
)

type AssignmentHandler struct {
	db       *gorm.DB
	service  *projects.Service
	notifier *notify.Service
}

func NewAssignmentHandler(db *gorm.DB, service *projects.Service, notifier *notify.Service) *AssignmentHandler {
	return &AssignmentHandler{db: db, service: service, notifier: notifier}
}

// AssignmentRequest carries the project/team/manager linkage.
type AssignmentRequest struct {
	ProjectID         string `json:"project_id"`
	TeamID            string `json:"team_id"`
	AssignedManagerID string `json:"assigned_manager_id"`
}

func (r AssignmentRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if _, err := uuid.Parse(r.ProjectID); err != nil {
		errs["project_id"] = "A valid project ID is required"
	}
	if _, err := uuid.Parse(r.TeamID); err != nil {
		errs["team_id"] = "A valid team ID is required"
	}
	if _, err := uuid.Parse(r.AssignedManagerID); err != nil {
		errs["assigned_manager_id"] = "A valid manager ID is required"
	}
	return errs
}

// AssignmentResponse represents a project assignment in API responses
type AssignmentResponse struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	TeamID            string `json:"team_id"`
	AssignedManagerID string `json:"assigned_manager_id"`
	CreatedAt         string `json:"created_at"`
}

func assignmentToResponse(a *models.ProjectAssignment) AssignmentResponse {
	return AssignmentResponse{
		ID:                a.ID.String(),
		ProjectID:         a.ProjectID.String(),
		TeamID:            a.TeamID.String(),
		AssignedManagerID: a.AssignedManagerID.String(),
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
}

// Create handles POST /api/v1/project-assignments. A project carries at
// most one assignment; assigning an already-assigned project overwrites
// the linkage. Either way the affected manager and team are notified.
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	projectID, _ := uuid.Parse(req.ProjectID)
	teamID, _ := uuid.Parse(req.TeamID)
	managerID, _ := uuid.Parse(req.AssignedManagerID)

	assignment, existed, err := h.service.Assign(r.Context(), principal.OrganizationID, projects.AssignmentInput{
		ProjectID: projectID,
		TeamID:    teamID,
		ManagerID: managerID,
	})
	if err != nil {
		h.writeAssignError(w, err)
		return
	}

	project, err := h.service.GetProject(r.Context(), principal.OrganizationID, projectID)
	if err == nil {
		action := notify.AssignmentCreated
		if existed {
			action = notify.AssignmentUpdated
		}
		h.notifier.AssignmentChanged(r.Context(), action, project, assignment, principal.UserID)
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, assignmentToResponse(assignment))
}

// Update handles PUT /api/v1/project-assignments/:id
func (h *AssignmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	assignmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid assignment ID"})
		return
	}

	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	current, err := h.service.GetAssignment(r.Context(), principal.OrganizationID, assignmentID)
	if err != nil {
		h.writeAssignError(w, err)
		return
	}

	teamID := current.TeamID
	if req.TeamID != "" {
		if teamID, err = uuid.Parse(req.TeamID); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
			return
		}
	}
	managerID := current.AssignedManagerID
	if req.AssignedManagerID != "" {
		if managerID, err = uuid.Parse(req.AssignedManagerID); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid manager ID"})
			return
		}
	}

	assignment, _, err := h.service.Assign(r.Context(), principal.OrganizationID, projects.AssignmentInput{
		ProjectID: current.ProjectID,
		TeamID:    teamID,
		ManagerID: managerID,
	})
	if err != nil {
		h.writeAssignError(w, err)
		return
	}

	if project, perr := h.service.GetProject(r.Context(), principal.OrganizationID, current.ProjectID); perr == nil {
		h.notifier.AssignmentChanged(r.Context(), notify.AssignmentUpdated, project, assignment, principal.UserID)
	}

	writeJSON(w, http.StatusOK, assignmentToResponse(assignment))
}

// Delete handles DELETE /api/v1/project-assignments/:id. The removal
// notification goes to the manager and team that were linked at the
// moment of deletion.
func (h *AssignmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	assignmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid assignment ID"})
		return
	}

	assignment, err := h.service.Unassign(r.Context(), principal.OrganizationID, assignmentID)
	if err != nil {
		h.writeAssignError(w, err)
		return
	}

	if project, perr := h.service.GetProject(r.Context(), principal.OrganizationID, assignment.ProjectID); perr == nil {
		h.notifier.AssignmentChanged(r.Context(), notify.AssignmentDeleted, project, assignment, principal.UserID)
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Assignment removed"})
}

func (h *AssignmentHandler) writeAssignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, projects.ErrProjectNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Project not found"})
	case errors.Is(err, projects.ErrAssignmentNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Assignment not found"})
	case errors.Is(err, projects.ErrTeamNotFound):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Team not found in this organization"})
	case errors.Is(err, projects.ErrManagerNotFound):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Manager not found or not a manager role"})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Assignment operation failed"})
	}
}
