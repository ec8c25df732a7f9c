// Package projects owns project creation, key generation and the
// single live assignment per project.
package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrManagerNotFound    = errors.New("manager not found")
)

// maxKeyAttempts bounds the constraint-retry loop on concurrent creates
// of identically named projects.
const maxKeyAttempts = 5

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// DeriveKeyBase builds the candidate key from a project name: the
// uppercased initials of each word, "PROJ" when the name yields nothing,
// or the first five characters of the name when the initials run past
// five. Whitespace never survives into a key, so the head fallback is
// taken over the name with spaces removed.
func DeriveKeyBase(name string) string {
	var initials []rune
	for _, field := range strings.Fields(name) {
		initials = append(initials, []rune(strings.ToUpper(field))[0])
	}
	if len(initials) == 0 {
		return "PROJ"
	}
	if len(initials) > 5 {
		head := []rune(strings.ToUpper(strings.Join(strings.Fields(name), "")))
		if len(head) > 5 {
			head = head[:5]
		}
		return string(head)
	}
	return string(initials)
}

// GenerateUniqueKey probes the organization's existing keys, appending a
// counter (BASE, BASE1, BASE2, ...) until a free key is found. The
// composite unique index on (organization_id, project_key) remains the
// authoritative guard; CreateProject retries on constraint violation.
func (s *Service) GenerateUniqueKey(ctx context.Context, orgID uuid.UUID, name string) (string, error) {
	base := DeriveKeyBase(name)

	candidate := base
	for counter := 1; ; counter++ {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Project{}).
			Where("organization_id = ? AND project_key = ?", orgID, candidate).
			Count(&count).Error; err != nil {
			return "", fmt.Errorf("probing project key: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, counter)
	}
}

// CreateProject derives a unique key and inserts the project. Two
// concurrent creates can observe the same free key, so a duplicate-key
// error from the unique index triggers a fresh probe and retry.
func (s *Service) CreateProject(ctx context.Context, orgID uuid.UUID, name, description string) (*models.Project, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := s.GenerateUniqueKey(ctx, orgID, name)
		if err != nil {
			return nil, err
		}

		project := models.Project{
			OrganizationID: orgID,
			ProjectKey:     key,
			Name:           name,
			Description:    description,
			Status:         models.ProjectStatusActive,
		}
		err = s.db.WithContext(ctx).Create(&project).Error
		if err == nil {
			return &project, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("creating project: %w", err)
		}
	}
	return nil, fmt.Errorf("creating project: key contention after %d attempts", maxKeyAttempts)
}

// GetProject loads a project with its assignment, org-scoped.
func (s *Service) GetProject(ctx context.Context, orgID, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).
		Preload("Assignment").
		Where("id = ? AND organization_id = ?", projectID, orgID).
		First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

type AssignmentInput struct {
	ProjectID uuid.UUID
	TeamID    uuid.UUID
	ManagerID uuid.UUID
}

// Assign links a project to one team and one manager. An existing
// assignment is overwritten: latest write wins, no history kept.
// Returns the assignment and whether one already existed.
func (s *Service) Assign(ctx context.Context, orgID uuid.UUID, input AssignmentInput) (*models.ProjectAssignment, bool, error) {
	if _, err := s.GetProject(ctx, orgID, input.ProjectID); err != nil {
		return nil, false, err
	}
	if err := s.verifyTeamAndManager(ctx, orgID, input.TeamID, input.ManagerID); err != nil {
		return nil, false, err
	}

	var existing models.ProjectAssignment
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND organization_id = ?", input.ProjectID, orgID).
		First(&existing).Error
	switch {
	case err == nil:
		existing.TeamID = input.TeamID
		existing.AssignedManagerID = input.ManagerID
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("updating assignment: %w", err)
		}
		return &existing, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		assignment := models.ProjectAssignment{
			ProjectID:         input.ProjectID,
			OrganizationID:    orgID,
			TeamID:            input.TeamID,
			AssignedManagerID: input.ManagerID,
		}
		if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
			return nil, false, fmt.Errorf("creating assignment: %w", err)
		}
		return &assignment, false, nil
	default:
		return nil, false, err
	}
}

// Unassign removes the project's team/manager linkage.
func (s *Service) Unassign(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.ProjectAssignment, error) {
	var assignment models.ProjectAssignment
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", assignmentID, orgID).
		First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&assignment).Error; err != nil {
		return nil, fmt.Errorf("deleting assignment: %w", err)
	}
	return &assignment, nil
}

// GetAssignment loads an assignment by id, org-scoped.
func (s *Service) GetAssignment(ctx context.Context, orgID, assignmentID uuid.UUID) (*models.ProjectAssignment, error) {
	var assignment models.ProjectAssignment
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", assignmentID, orgID).
		First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &assignment, nil
}

func (s *Service) verifyTeamAndManager(ctx context.Context, orgID, teamID, managerID uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("id = ? AND organization_id = ?", teamID, orgID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrTeamNotFound
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND organization_id = ? AND role IN ?", managerID, orgID, []models.Role{models.RoleManager, models.RoleAdmin}).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrManagerNotFound
	}
	return nil
}
