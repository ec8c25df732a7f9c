package notify_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/testutil"
)

func newTestService(t *testing.T) (*notify.Service, *testutil.TestSetup) {
	t.Helper()
	tc := testutil.NewTestContext(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := notify.NewCountCache(30*time.Second, nil)
	return notify.NewService(tc.DB, logger, nil, cache), tc
}

func TestAssignmentChanged(t *testing.T) {
	svc, tc := newTestService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	manager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)
	team := testutil.CreateTestTeam(t, tc.DB, tc.Org, nil)
	memberA := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	memberB := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	testutil.PlaceOnTeam(t, tc.DB, memberA, team)
	testutil.PlaceOnTeam(t, tc.DB, memberB, team)

	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID, "Fanout", "F")
	assignment := &models.ProjectAssignment{
		ProjectID:         project.ID,
		OrganizationID:    tc.Org.ID,
		TeamID:            team.ID,
		AssignedManagerID: manager.ID,
	}
	require.NoError(t, tc.DB.Create(assignment).Error)

	t.Run("notifies manager and every team member", func(t *testing.T) {
		svc.AssignmentChanged(ctx, notify.AssignmentCreated, project, assignment, tc.Admin.ID)

		var notifications []models.Notification
		require.NoError(t, tc.DB.Where("resource_id = ?", project.ID).Find(&notifications).Error)
		assert.Len(t, notifications, 3)

		recipients := make(map[string]bool)
		for _, n := range notifications {
			recipients[n.RecipientUserID.String()] = true
			assert.Equal(t, models.NotifProjectAssigned, n.Type)
			assert.Equal(t, "project", n.ResourceType)
		}
		assert.True(t, recipients[manager.ID.String()])
		assert.True(t, recipients[memberA.ID.String()])
		assert.True(t, recipients[memberB.ID.String()])
	})

	t.Run("manager on the team gets both notifications", func(t *testing.T) {
		testutil.PlaceOnTeam(t, tc.DB, manager, team)

		svc.AssignmentChanged(ctx, notify.AssignmentUpdated, project, assignment, tc.Admin.ID)

		var count int64
		tc.DB.Model(&models.Notification{}).
			Where("resource_id = ? AND recipient_user_id = ? AND type = ?", project.ID, manager.ID, models.NotifProjectReassigned).
			Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("inactive members are skipped", func(t *testing.T) {
		require.NoError(t, tc.DB.Model(memberB).Update("is_active", false).Error)

		svc.AssignmentChanged(ctx, notify.AssignmentDeleted, project, assignment, tc.Admin.ID)

		var count int64
		tc.DB.Model(&models.Notification{}).
			Where("resource_id = ? AND recipient_user_id = ? AND type = ?", project.ID, memberB.ID, models.NotifProjectUnassigned).
			Count(&count)
		assert.Equal(t, int64(0), count)
	})
}

func TestUnreadCount(t *testing.T) {
	svc, tc := newTestService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	user := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

	makeNotification := func() *models.Notification {
		n := &models.Notification{
			OrganizationID:  tc.Org.ID,
			RecipientUserID: user.ID,
			Type:            models.NotifProjectAssigned,
			Title:           "test",
		}
		require.NoError(t, svc.Create(ctx, n))
		return n
	}

	t.Run("counts unread unarchived notifications", func(t *testing.T) {
		makeNotification()
		makeNotification()
		archived := makeNotification()
		require.NoError(t, tc.DB.Model(archived).Update("is_archived", true).Error)
		svc.InvalidateCount(user.ID)

		count, err := svc.UnreadCount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("serves stale cache until invalidated", func(t *testing.T) {
		count, err := svc.UnreadCount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		// Direct DB write bypasses the service, cache stays stale
		extra := &models.Notification{
			OrganizationID:  tc.Org.ID,
			RecipientUserID: user.ID,
			Type:            models.NotifProjectAssigned,
			Title:           "stale",
		}
		require.NoError(t, tc.DB.Create(extra).Error)

		count, err = svc.UnreadCount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		svc.InvalidateCount(user.ID)
		count, err = svc.UnreadCount(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})
}
