package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/handlers"
	"github.com/viprahq/viprago/internal/auth"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/testutil"
)

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	authService := auth.NewService(tc.DB, tc.JWTService)

	r := chi.NewRouter()
	handler := handlers.NewAuthHandler(authService)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/logout", handler.Logout)
	})

	return r, tc
}

func TestAuthHandler_Register(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	t.Run("creates organization with admin founder", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
			"email":    "founder@acme.test",
			"password": "supersecret1",
			"name":     "Ada Founder",
			"org_name": "Acme HR",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "admin", resp.User.Role)
		assert.Equal(t, "Acme HR", resp.User.OrgName)

		var org models.Organization
		require.NoError(t, tc.DB.First(&org, "name = ?", "Acme HR").Error)
		assert.Equal(t, org.ID.String(), resp.User.OrganizationID)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
			"email":    "founder@acme.test",
			"password": "supersecret1",
			"name":     "Ada Again",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("short password rejected", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
			"email":    "short@acme.test",
			"password": "short",
			"name":     "Shorty",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "password")
	})
}

func TestAuthHandler_Login(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	t.Run("valid credentials return a token", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", map[string]string{
			"email":    tc.Admin.Email,
			"password": "testpassword123",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, tc.Admin.ID.String(), resp.User.ID)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", map[string]string{
			"email":    tc.Admin.Email,
			"password": "not-the-password",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown email is unauthorized", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", map[string]string{
			"email":    "nobody@acme.test",
			"password": "testpassword123",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("inactive user is forbidden", func(t *testing.T) {
		dormant := testutil.CreateTestUser(t, tc.DB, tc.Org, models.RoleMember)
		require.NoError(t, tc.DB.Model(dormant).Update("is_active", false).Error)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", map[string]string{
			"email":    dormant.Email,
			"password": "testpassword123",
		})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	defer tc.Cleanup()

	req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/logout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
