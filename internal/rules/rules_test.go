package rules_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/rules"
)

func principal(role models.Role, teamID *uuid.UUID) rules.Principal {
	return rules.Principal{
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		Role:           role,
		TeamID:         teamID,
	}
}

func TestEventVisible(t *testing.T) {
	teamID := uuid.New()
	otherTeamID := uuid.New()

	t.Run("organization scope visible to everyone", func(t *testing.T) {
		p := principal(models.RoleMember, nil)
		ev := &models.CalendarEvent{Scope: models.ScopeOrganization, CreatedByUserID: uuid.New()}
		assert.True(t, rules.EventVisible(p, ev))
	})

	t.Run("team scope visible to team members only", func(t *testing.T) {
		p := principal(models.RoleMember, &teamID)
		ev := &models.CalendarEvent{Scope: models.ScopeTeam, TeamID: &teamID, CreatedByUserID: uuid.New()}
		assert.True(t, rules.EventVisible(p, ev))

		ev.TeamID = &otherTeamID
		assert.False(t, rules.EventVisible(p, ev))
	})

	t.Run("team scope hidden from user with no team", func(t *testing.T) {
		p := principal(models.RoleMember, nil)
		ev := &models.CalendarEvent{Scope: models.ScopeTeam, TeamID: &teamID, CreatedByUserID: uuid.New()}
		assert.False(t, rules.EventVisible(p, ev))
	})

	t.Run("private scope visible to target only", func(t *testing.T) {
		p := principal(models.RoleMember, nil)
		ev := &models.CalendarEvent{Scope: models.ScopePrivate, TargetUserID: &p.UserID, CreatedByUserID: uuid.New()}
		assert.True(t, rules.EventVisible(p, ev))

		other := uuid.New()
		ev.TargetUserID = &other
		assert.False(t, rules.EventVisible(p, ev))
	})

	t.Run("creator always sees own event", func(t *testing.T) {
		p := principal(models.RoleManager, nil)
		other := uuid.New()
		ev := &models.CalendarEvent{Scope: models.ScopePrivate, TargetUserID: &other, CreatedByUserID: p.UserID}
		assert.True(t, rules.EventVisible(p, ev))
	})
}

func TestCanCreateEvent(t *testing.T) {
	cases := []struct {
		role    models.Role
		scope   models.EventScope
		allowed bool
	}{
		{models.RoleAdmin, models.ScopeOrganization, true},
		{models.RoleAdmin, models.ScopeTeam, false},
		{models.RoleAdmin, models.ScopePrivate, false},
		{models.RoleManager, models.ScopeOrganization, false},
		{models.RoleManager, models.ScopeTeam, true},
		{models.RoleManager, models.ScopePrivate, true},
		{models.RoleMember, models.ScopeOrganization, false},
		{models.RoleMember, models.ScopeTeam, false},
		{models.RoleMember, models.ScopePrivate, true},
	}

	for _, tc := range cases {
		err := rules.CanCreateEvent(tc.role, tc.scope)
		if tc.allowed {
			assert.NoError(t, err, "%s creating %s", tc.role, tc.scope)
		} else {
			assert.ErrorIs(t, err, rules.ErrForbiddenScope, "%s creating %s", tc.role, tc.scope)
		}
	}

	t.Run("unknown role", func(t *testing.T) {
		err := rules.CanCreateEvent("intern", models.ScopePrivate)
		assert.ErrorIs(t, err, rules.ErrUnknownRole)
	})
}

func TestValidateEventFields(t *testing.T) {
	teamID := uuid.New()
	targetID := uuid.New()

	t.Run("organization scope clears both fields", func(t *testing.T) {
		p := principal(models.RoleAdmin, nil)
		gotTeam, gotTarget, err := rules.ValidateEventFields(p, models.ScopeOrganization, &teamID, &targetID)
		require.NoError(t, err)
		assert.Nil(t, gotTeam)
		assert.Nil(t, gotTarget)
	})

	t.Run("team scope requires team id", func(t *testing.T) {
		p := principal(models.RoleManager, &teamID)
		_, _, err := rules.ValidateEventFields(p, models.ScopeTeam, nil, nil)
		assert.ErrorIs(t, err, rules.ErrTeamRequired)

		gotTeam, gotTarget, err := rules.ValidateEventFields(p, models.ScopeTeam, &teamID, nil)
		require.NoError(t, err)
		assert.Equal(t, teamID, *gotTeam)
		assert.Nil(t, gotTarget)
	})

	t.Run("private scope requires target for managers", func(t *testing.T) {
		p := principal(models.RoleManager, &teamID)
		_, _, err := rules.ValidateEventFields(p, models.ScopePrivate, nil, nil)
		assert.ErrorIs(t, err, rules.ErrTargetRequired)

		_, gotTarget, err := rules.ValidateEventFields(p, models.ScopePrivate, nil, &targetID)
		require.NoError(t, err)
		assert.Equal(t, targetID, *gotTarget)
	})

	t.Run("member private target is forced to self", func(t *testing.T) {
		p := principal(models.RoleMember, nil)
		_, gotTarget, err := rules.ValidateEventFields(p, models.ScopePrivate, nil, &targetID)
		require.NoError(t, err)
		assert.Equal(t, p.UserID, *gotTarget)
	})
}

func TestCanAccessProject(t *testing.T) {
	teamID := uuid.New()

	t.Run("admin sees unassigned projects", func(t *testing.T) {
		p := principal(models.RoleAdmin, nil)
		assert.True(t, rules.CanAccessProject(p, nil))
	})

	t.Run("manager needs the assignment", func(t *testing.T) {
		p := principal(models.RoleManager, nil)
		assert.False(t, rules.CanAccessProject(p, nil))

		assignment := &models.ProjectAssignment{AssignedManagerID: p.UserID, TeamID: teamID}
		assert.True(t, rules.CanAccessProject(p, assignment))

		assignment.AssignedManagerID = uuid.New()
		assert.False(t, rules.CanAccessProject(p, assignment))
	})

	t.Run("member needs team linkage", func(t *testing.T) {
		p := principal(models.RoleMember, &teamID)
		assignment := &models.ProjectAssignment{AssignedManagerID: uuid.New(), TeamID: teamID}
		assert.True(t, rules.CanAccessProject(p, assignment))

		assignment.TeamID = uuid.New()
		assert.False(t, rules.CanAccessProject(p, assignment))
	})
}

func TestCanReview(t *testing.T) {
	assert.True(t, rules.CanReview(models.RoleAdmin))
	assert.True(t, rules.CanReview(models.RoleManager))
	assert.False(t, rules.CanReview(models.RoleMember))
}
