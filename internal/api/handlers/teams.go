package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"gorm.io/gorm"
)

type TeamHandler struct {
	db *gorm.DB
}

func NewTeamHandler(db *gorm.DB) *TeamHandler {
	return &TeamHandler{db: db}
}

// CreateTeamRequest carries a new team, optionally with its manager.
type CreateTeamRequest struct {
	Name      string `json:"name"`
	ManagerID string `json:"manager_id,omitempty"`
}

func (r CreateTeamRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errs["name"] = "Team name is required"
	}
	if r.ManagerID != "" {
		if _, err := uuid.Parse(r.ManagerID); err != nil {
			errs["manager_id"] = "Manager ID must be a valid UUID"
		}
	}
	return errs
}

// TeamResponse represents a team in API responses
type TeamResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ManagerID string `json:"manager_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func teamToResponse(t *models.Team) TeamResponse {
	resp := TeamResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
	if t.ManagerID != nil {
		resp.ManagerID = t.ManagerID.String()
	}
	return resp
}

// List handles GET /api/v1/teams
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var teams []models.Team
	if err := h.db.
		Where("organization_id = ?", orgID).
		Order("name ASC").
		Find(&teams).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list teams"})
		return
	}

	response := make([]TeamResponse, len(teams))
	for i := range teams {
		response[i] = teamToResponse(&teams[i])
	}
	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/v1/teams, admin only. Naming a manager both
// links the team to them and promotes the user if they are still a member.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	team := models.Team{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(req.Name),
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if req.ManagerID != "" {
			managerID, _ := uuid.Parse(req.ManagerID)
			var manager models.User
			if err := tx.
				Where("id = ? AND organization_id = ?", managerID, orgID).
				First(&manager).Error; err != nil {
				return err
			}
			team.ManagerID = &manager.ID

			if err := tx.Create(&team).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{"team_id": team.ID}
			if manager.Role == models.RoleMember {
				updates["role"] = models.RoleManager
			}
			return tx.Model(&manager).Updates(updates).Error
		}
		return tx.Create(&team).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Manager not found in this organization"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create team"})
		return
	}

	writeJSON(w, http.StatusCreated, teamToResponse(&team))
}

// Members handles GET /api/v1/teams/:id/members
func (h *TeamHandler) Members(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var team models.Team
	if err := h.db.
		Where("id = ? AND organization_id = ?", teamID, orgID).
		First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load team"})
		return
	}

	var members []models.User
	if err := h.db.
		Where("team_id = ? AND organization_id = ?", teamID, orgID).
		Order("name ASC").
		Find(&members).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list team members"})
		return
	}

	response := make([]dto.UserDTO, len(members))
	for i, member := range members {
		response[i] = dto.UserDTO{
			ID:             member.ID.String(),
			Email:          member.Email,
			Name:           member.Name,
			Role:           string(member.Role),
			OrganizationID: member.OrganizationID.String(),
			TeamID:         teamID.String(),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// AddMemberRequest names the user to place on the team.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember handles POST /api/v1/teams/:id/members, admin only. A user
// belongs to at most one team; adding them here moves them off any
// previous team.
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrganizationID(r.Context())

	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid team ID"})
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	var count int64
	if err := h.db.Model(&models.Team{}).
		Where("id = ? AND organization_id = ?", teamID, orgID).
		Count(&count).Error; err != nil || count == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Team not found"})
		return
	}

	result := h.db.Model(&models.User{}).
		Where("id = ? AND organization_id = ?", userID, orgID).
		Update("team_id", teamID)
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to add team member"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member added to team"})
}
