package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viprahq/viprago/internal/api/handlers"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/projects"
	"github.com/viprahq/viprago/internal/testutil"
)

func setupAssignmentTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	svc := projects.NewService(tc.DB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := notify.NewService(tc.DB, logger, nil, notify.NewCountCache(30*time.Second, nil))

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	handler := handlers.NewAssignmentHandler(tc.DB, svc, notifier)
	r.Route("/api/v1/project-assignments", func(r chi.Router) {
		r.Use(middleware.RequireRole("admin"))
		r.Post("/", handler.Create)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})

	return r, tc
}

func TestAssignmentHandler_Create(t *testing.T) {
	router, tc := setupAssignmentTestRouter(t)
	defer tc.Cleanup()

	manager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)
	team := testutil.CreateTestTeam(t, tc.DB, tc.Org, nil)
	memberA := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	memberB := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	testutil.PlaceOnTeam(t, tc.DB, memberA, team)
	testutil.PlaceOnTeam(t, tc.DB, memberB, team)

	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID, "Notify Me", "NM")

	t.Run("assignment fans out to manager and team", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/project-assignments", map[string]string{
			"project_id":          project.ID.String(),
			"team_id":             team.ID.String(),
			"assigned_manager_id": manager.ID.String(),
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var notifications []models.Notification
		require.NoError(t, tc.DB.
			Where("resource_id = ? AND type = ?", project.ID, models.NotifProjectAssigned).
			Find(&notifications).Error)
		assert.Len(t, notifications, 3)
	})

	t.Run("reassignment overwrites and notifies again", func(t *testing.T) {
		otherManager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/project-assignments", map[string]string{
			"project_id":          project.ID.String(),
			"team_id":             team.ID.String(),
			"assigned_manager_id": otherManager.ID.String(),
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var count int64
		tc.DB.Model(&models.ProjectAssignment{}).Where("project_id = ?", project.ID).Count(&count)
		assert.Equal(t, int64(1), count)

		tc.DB.Model(&models.Notification{}).
			Where("resource_id = ? AND type = ?", project.ID, models.NotifProjectReassigned).
			Count(&count)
		assert.Equal(t, int64(3), count)
	})

	t.Run("member as manager rejected", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/project-assignments", map[string]string{
			"project_id":          project.ID.String(),
			"team_id":             team.ID.String(),
			"assigned_manager_id": memberA.ID.String(),
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		managerToken := testutil.GenerateTestToken(t, tc.JWTService, manager)
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/project-assignments", map[string]string{
			"project_id":          project.ID.String(),
			"team_id":             team.ID.String(),
			"assigned_manager_id": manager.ID.String(),
		}, managerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestAssignmentHandler_Delete(t *testing.T) {
	router, tc := setupAssignmentTestRouter(t)
	defer tc.Cleanup()

	manager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)
	team := testutil.CreateTestTeam(t, tc.DB, tc.Org, nil)
	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	testutil.PlaceOnTeam(t, tc.DB, member, team)

	project := testutil.CreateTestProject(t, tc.DB, tc.Org.ID, "Removable", "RE")
	assignment := &models.ProjectAssignment{
		ProjectID:         project.ID,
		OrganizationID:    tc.Org.ID,
		TeamID:            team.ID,
		AssignedManagerID: manager.ID,
	}
	require.NoError(t, tc.DB.Create(assignment).Error)

	t.Run("delete notifies previously linked recipients", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/project-assignments/"+assignment.ID.String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var count int64
		tc.DB.Model(&models.ProjectAssignment{}).Where("project_id = ?", project.ID).Count(&count)
		assert.Equal(t, int64(0), count)

		tc.DB.Model(&models.Notification{}).
			Where("resource_id = ? AND type = ?", project.ID, models.NotifProjectUnassigned).
			Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("unknown assignment is 404", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/project-assignments/"+uuid.New().String(), nil, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
