package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/projects"
	"github.com/viprahq/viprago/internal/rules"
	"gorm.io/gorm"
)

type ProjectHandler struct {
	db      *gorm.DB
	service *projects.Service
}

func NewProjectHandler(db *gorm.DB, service *projects.Service) *ProjectHandler {
	return &ProjectHandler{db: db, service: service}
}

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r CreateProjectRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errs["name"] = "Project name is required"
	}
	return errs
}

// ProjectResponse represents a project in API responses
type ProjectResponse struct {
	ID          string              `json:"id"`
	ProjectKey  string              `json:"project_key"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      string              `json:"status"`
	Assignment  *AssignmentResponse `json:"assignment,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

func projectToResponse(p *models.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:          p.ID.String(),
		ProjectKey:  p.ProjectKey,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.Assignment != nil {
		a := assignmentToResponse(p.Assignment)
		resp.Assignment = &a
	}
	return resp
}

// List handles GET /api/v1/projects. Admins see the whole organization;
// managers see projects they are assigned to manage; members see
// projects assigned to their team.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.Project{}).
		Where("organization_id = ?", principal.OrganizationID)

	switch principal.Role {
	case models.RoleAdmin:
		// no additional scoping
	case models.RoleManager:
		query = query.Where("id IN (?)", h.db.Model(&models.ProjectAssignment{}).
			Select("project_id").
			Where("assigned_manager_id = ?", principal.UserID))
	default:
		if principal.TeamID == nil {
			writeJSON(w, http.StatusOK, dto.PaginatedResponse{
				Data: []ProjectResponse{}, Page: pagination.Page, PerPage: pagination.PerPage,
			})
			return
		}
		query = query.Where("id IN (?)", h.db.Model(&models.ProjectAssignment{}).
			Select("project_id").
			Where("team_id = ?", *principal.TeamID))
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count projects"})
		return
	}

	var projectList []models.Project
	if err := query.
		Preload("Assignment").
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&projectList).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list projects"})
		return
	}

	response := make([]ProjectResponse, len(projectList))
	for i := range projectList {
		response[i] = projectToResponse(&projectList[i])
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

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	project, err := h.service.CreateProject(r.Context(), principal.OrganizationID, strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create project"})
		return
	}

	writeJSON(w, http.StatusCreated, projectToResponse(project))
}

// Get handles GET /api/v1/projects/:id
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid project ID"})
		return
	}

	project, err := h.service.GetProject(r.Context(), principal.OrganizationID, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Project not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get project"})
		return
	}

	if !rules.CanAccessProject(principal, project.Assignment) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Not assigned to this project"})
		return
	}

	writeJSON(w, http.StatusOK, projectToResponse(project))
}

// UpdateProjectRequest represents the request to update a project
type UpdateProjectRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (r UpdateProjectRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.Status != "" {
		switch models.ProjectStatus(r.Status) {
		case models.ProjectStatusActive, models.ProjectStatusOnHold, models.ProjectStatusCompleted, models.ProjectStatusArchived:
		default:
			errs["status"] = "Invalid status. Must be one of: active, on_hold, completed, archived"
		}
	}
	return errs
}

// Update handles PUT /api/v1/projects/:id. The project key never
// changes after creation.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid project ID"})
		return
	}

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	project, err := h.service.GetProject(r.Context(), principal.OrganizationID, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Project not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get project"})
		return
	}

	if !rules.CanAccessProject(principal, project.Assignment) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Not assigned to this project"})
		return
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != "" {
		updates["name"] = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Status != "" {
		updates["status"] = models.ProjectStatus(req.Status)
	}

	if err := h.db.Model(project).Updates(updates).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to update project"})
		return
	}

	writeJSON(w, http.StatusOK, projectToResponse(project))
}

// Delete handles DELETE /api/v1/projects/:id, admin only.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	if !rules.CanDeleteProject(principal) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only admins may delete projects"})
		return
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid project ID"})
		return
	}

	project, err := h.service.GetProject(r.Context(), principal.OrganizationID, projectID)
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Project not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get project"})
		return
	}

	if err := h.db.Select("Assignment").Delete(project).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete project"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Project deleted"})
}
