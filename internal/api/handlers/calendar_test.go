package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/handlers"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/testutil"
)

func setupCalendarTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))

	handler := handlers.NewCalendarHandler(tc.DB, 10)
	r.Route("/api/v1/calendar/events", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.With(middleware.RequireRole("admin")).
			Post("/bulk", handler.BulkUpload)
	})

	return r, tc
}

func TestCalendarHandler_Create(t *testing.T) {
	router, tc := setupCalendarTestRouter(t)
	defer tc.Cleanup()

	manager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)
	team := testutil.CreateTestTeam(t, tc.DB, tc.Org, manager)
	managerToken := testutil.GenerateTestToken(t, tc.JWTService, manager)

	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	memberToken := testutil.GenerateTestToken(t, tc.JWTService, member)

	t.Run("admin creates organization event", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Company Offsite",
			"type":       "meeting",
			"scope":      "organization",
			"start_date": "2026-09-10",
			"end_date":   "2026-09-11",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "organization", resp.Scope)
		assert.Empty(t, resp.TeamID)
		assert.Empty(t, resp.TargetUserID)
	})

	t.Run("admin cannot create team event", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Sprint Review",
			"scope":      "team",
			"team_id":    team.ID.String(),
			"start_date": "2026-09-10",
			"end_date":   "2026-09-10",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("admin team event without team_id fails validation first", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Incomplete Sprint Review",
			"scope":      "team",
			"start_date": "2026-09-10",
			"end_date":   "2026-09-10",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var count int64
		tc.DB.Model(&models.CalendarEvent{}).Where("title = ?", "Incomplete Sprint Review").Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("manager team event requires team_id", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Standup",
			"scope":      "team",
			"start_date": "2026-09-10",
			"end_date":   "2026-09-10",
		}, managerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var count int64
		tc.DB.Model(&models.CalendarEvent{}).Where("title = ?", "Standup").Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("manager creates team event", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Retro",
			"scope":      "team",
			"team_id":    team.ID.String(),
			"start_date": "2026-09-12",
			"end_date":   "2026-09-12",
		}, managerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("member private target is forced to self", func(t *testing.T) {
		other := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":          "Dentist",
			"scope":          "private",
			"target_user_id": other.ID.String(),
			"start_date":     "2026-09-15",
			"end_date":       "2026-09-15",
		}, memberToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, member.ID.String(), resp.TargetUserID)
	})

	t.Run("cross-org private target rejected", func(t *testing.T) {
		otherOrg := testutil.CreateTestOrg(t, tc.DB)
		outsider := testutil.CreateTestUser(t, tc.DB, otherOrg, models.RoleMember)

		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":          "1:1",
			"scope":          "private",
			"target_user_id": outsider.ID.String(),
			"start_date":     "2026-09-15",
			"end_date":       "2026-09-15",
		}, managerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid date range rejected", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/calendar/events", map[string]string{
			"title":      "Backwards",
			"scope":      "organization",
			"start_date": "2026-09-20",
			"end_date":   "2026-09-19",
		}, tc.Token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCalendarHandler_List(t *testing.T) {
	router, tc := setupCalendarTestRouter(t)
	defer tc.Cleanup()

	manager := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleManager)
	team := testutil.CreateTestTeam(t, tc.DB, tc.Org, manager)
	member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	testutil.PlaceOnTeam(t, tc.DB, member, team)
	memberToken := testutil.GenerateTestToken(t, tc.JWTService, member)

	outsider := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
	outsiderToken := testutil.GenerateTestToken(t, tc.JWTService, outsider)

	// One event per scope
	testutil.CreateTestEvent(t, tc.DB, tc.Org.ID, tc.Admin.ID, models.ScopeOrganization, nil, nil)
	testutil.CreateTestEvent(t, tc.DB, tc.Org.ID, manager.ID, models.ScopeTeam, &team.ID, nil)
	testutil.CreateTestEvent(t, tc.DB, tc.Org.ID, manager.ID, models.ScopePrivate, nil, &member.ID)

	t.Run("team member sees org, team and own private events", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/calendar/events", nil, memberToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp []handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp, 3)
	})

	t.Run("teamless member sees only org events", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/calendar/events", nil, outsiderToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp []handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp, 1)
		assert.Equal(t, "organization", resp[0].Scope)
	})

	t.Run("creator sees own private event targeting someone else", func(t *testing.T) {
		managerToken := testutil.GenerateTestToken(t, tc.JWTService, manager)
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/calendar/events", nil, managerToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp []handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp, 3)
	})

	t.Run("other org events are invisible", func(t *testing.T) {
		otherOrg := testutil.CreateTestOrg(t, tc.DB)
		foreignAdmin := testutil.CreateTestUser(t, tc.DB, otherOrg, models.RoleAdmin)
		testutil.CreateTestEvent(t, tc.DB, otherOrg.ID, foreignAdmin.ID, models.ScopeOrganization, nil, nil)

		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/calendar/events", nil, outsiderToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		var resp []handlers.EventResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp, 1)
	})
}

func csvUploadRequest(t *testing.T, path, token, csvContent string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "events.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvContent))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCalendarHandler_BulkUpload(t *testing.T) {
	router, tc := setupCalendarTestRouter(t)
	defer tc.Cleanup()

	t.Run("mixed outcomes reported per row", func(t *testing.T) {
		// Row 2 duplicates row 1 within the file; row 3 has a bad date
		csvContent := "title,start_date,end_date,type\n" +
			"New Year,2027-01-01,2027-01-01,holiday\n" +
			"New Year,2027-01-01,2027-01-01,holiday\n" +
			"Broken Day,not-a-date,2027-02-01,holiday\n"

		req := csvUploadRequest(t, "/api/v1/calendar/events/bulk", tc.Token, csvContent)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusMultiStatus, rr.Code)

		var resp dto.BulkUploadResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, 1, resp.Added)
		assert.Equal(t, 1, resp.Skipped)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, 3, resp.Errors[0].Row)
		require.Len(t, resp.SkippedDetails, 1)
		assert.Equal(t, 2, resp.SkippedDetails[0].Row)
	})

	t.Run("existing events in the organization are skipped", func(t *testing.T) {
		csvContent := "title,start_date\nNew Year,2027-01-01\n"

		req := csvUploadRequest(t, "/api/v1/calendar/events/bulk", tc.Token, csvContent)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusMultiStatus, rr.Code)

		var resp dto.BulkUploadResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, 0, resp.Added)
		assert.Equal(t, 1, resp.Skipped)
	})

	t.Run("imported events are organization scoped", func(t *testing.T) {
		var event models.CalendarEvent
		require.NoError(t, tc.DB.Where("title = ?", "New Year").First(&event).Error)
		assert.Equal(t, models.ScopeOrganization, event.Scope)
		assert.Equal(t, models.EventTypeHoliday, event.Type)
	})

	t.Run("missing title column rejected", func(t *testing.T) {
		req := csvUploadRequest(t, "/api/v1/calendar/events/bulk", tc.Token, "name,start_date\nX,2027-01-01\n")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-admin is forbidden", func(t *testing.T) {
		member := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
		memberToken := testutil.GenerateTestToken(t, tc.JWTService, member)

		req := csvUploadRequest(t, "/api/v1/calendar/events/bulk", memberToken, "title,start_date\nX,2027-01-01\n")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestCalendarHandler_Unauthenticated(t *testing.T) {
	router, tc := setupCalendarTestRouter(t)
	defer tc.Cleanup()

	req := testutil.UnauthenticatedRequest(t, "GET", "/api/v1/calendar/events", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
