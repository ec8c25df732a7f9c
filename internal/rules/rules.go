// Package rules holds the role-scoped visibility and assignment rules.
// Everything here is a pure function over the principal and the fields a
// resource already carries; rule evaluation never touches the database.
package rules

import (
	"errors"

	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/database/models"
)

var (
	ErrForbiddenScope = errors.New("role may not create events with this scope")
	ErrUnknownRole    = errors.New("unknown role")
	ErrTeamRequired   = errors.New("team scope requires a team_id")
	ErrTargetRequired = errors.New("private scope requires a target_user_id")
)

// Principal is the identity derived from a verified bearer token,
// immutable for the request lifetime. TeamID is the principal's own team
// membership, resolved once at auth time.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           models.Role
	TeamID         *uuid.UUID
}

// EventVisible reports whether the principal may see the event.
// Creators always see their own events, regardless of scope.
func EventVisible(p Principal, ev *models.CalendarEvent) bool {
	if ev.CreatedByUserID == p.UserID {
		return true
	}
	switch ev.Scope {
	case models.ScopeOrganization:
		return true
	case models.ScopeTeam:
		return ev.TeamID != nil && p.TeamID != nil && *ev.TeamID == *p.TeamID
	case models.ScopePrivate:
		return ev.TargetUserID != nil && *ev.TargetUserID == p.UserID
	}
	return false
}

// createMatrix is the role/scope gate for event creation. A missing entry
// means Forbidden.
var createMatrix = map[models.Role]map[models.EventScope]bool{
	models.RoleAdmin: {
		models.ScopeOrganization: true,
	},
	models.RoleManager: {
		models.ScopeTeam:    true,
		models.ScopePrivate: true,
	},
	models.RoleMember: {
		models.ScopePrivate: true,
	},
}

// CanCreateEvent checks the role/scope matrix. Field-level requirements
// (team_id present for team scope, target resolvable for private scope)
// are validated by ValidateEventFields and the handler.
func CanCreateEvent(role models.Role, scope models.EventScope) error {
	scopes, ok := createMatrix[role]
	if !ok {
		return ErrUnknownRole
	}
	if !scopes[scope] {
		return ErrForbiddenScope
	}
	return nil
}

// ValidateEventFields enforces the scope/field invariants for a new event.
// Members never supply a target: it is forced to the member itself.
func ValidateEventFields(p Principal, scope models.EventScope, teamID, targetUserID *uuid.UUID) (*uuid.UUID, *uuid.UUID, error) {
	switch scope {
	case models.ScopeOrganization:
		return nil, nil, nil
	case models.ScopeTeam:
		if teamID == nil {
			return nil, nil, ErrTeamRequired
		}
		return teamID, nil, nil
	case models.ScopePrivate:
		if p.Role == models.RoleMember {
			self := p.UserID
			return nil, &self, nil
		}
		if targetUserID == nil {
			return nil, nil, ErrTargetRequired
		}
		return nil, targetUserID, nil
	}
	return nil, nil, ErrForbiddenScope
}

// CanAccessProject reports whether the principal may view or update a
// project given its current assignment. Admins see everything; otherwise
// the principal must be the assigned manager or on the assigned team.
// An unassigned project is visible to admins only.
func CanAccessProject(p Principal, assignment *models.ProjectAssignment) bool {
	if p.Role == models.RoleAdmin {
		return true
	}
	if assignment == nil {
		return false
	}
	if assignment.AssignedManagerID == p.UserID {
		return true
	}
	return p.TeamID != nil && *p.TeamID == assignment.TeamID
}

// CanDeleteProject gates project deletion; only admins may delete.
func CanDeleteProject(p Principal) bool {
	return p.Role == models.RoleAdmin
}

// CanReview reports whether the principal may approve or reject leave
// requests and reimbursement claims.
func CanReview(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleManager
}
