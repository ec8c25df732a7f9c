package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/auth"
	"github.com/viprahq/viprago/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Organization{},
		&models.Team{},
		&models.User{},
		&models.CalendarEvent{},
		&models.Project{},
		&models.ProjectAssignment{},
		&models.Notification{},
		&models.ReimbursementClaim{},
		&models.LeaveRequest{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a test organization
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: "Test Organization",
		Slug: "test-org-" + uuid.New().String()[:8],
		Plan: "free",
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestUser creates a test user with the given role in the organization
func CreateTestUser(t *testing.T, db *gorm.DB, org *models.Organization, role models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:          "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash:   hash,
		Name:           "Test User",
		OrganizationID: org.ID,
		Role:           role,
		IsActive:       true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	user.Organization = org
	return user
}

// CreateTestTeam creates a test team, optionally managed by the given user
func CreateTestTeam(t *testing.T, db *gorm.DB, org *models.Organization, manager *models.User) *models.Team {
	t.Helper()

	team := &models.Team{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: org.ID,
		Name:           "Test Team " + uuid.New().String()[:8],
	}
	if manager != nil {
		team.ManagerID = &manager.ID
	}

	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create test team: %v", err)
	}

	if manager != nil {
		if err := db.Model(manager).Update("team_id", team.ID).Error; err != nil {
			t.Fatalf("failed to place manager on team: %v", err)
		}
		manager.TeamID = &team.ID
	}

	return team
}

// PlaceOnTeam sets the user's team membership
func PlaceOnTeam(t *testing.T, db *gorm.DB, user *models.User, team *models.Team) {
	t.Helper()

	if err := db.Model(user).Update("team_id", team.ID).Error; err != nil {
		t.Fatalf("failed to place user on team: %v", err)
	}
	user.TeamID = &team.ID
}

// CreateTestProject creates a test project with the given key
func CreateTestProject(t *testing.T, db *gorm.DB, orgID uuid.UUID, name, key string) *models.Project {
	t.Helper()

	project := &models.Project{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: orgID,
		ProjectKey:     key,
		Name:           name,
		Status:         models.ProjectStatusActive,
	}

	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return project
}

// CreateTestEvent creates a calendar event with the given scope
func CreateTestEvent(t *testing.T, db *gorm.DB, orgID, creatorID uuid.UUID, scope models.EventScope, teamID, targetUserID *uuid.UUID) *models.CalendarEvent {
	t.Helper()

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	event := &models.CalendarEvent{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID:  orgID,
		Title:           "Test Event " + uuid.New().String()[:8],
		Type:            models.EventTypeHoliday,
		Scope:           scope,
		StartDate:       start,
		EndDate:         start,
		TeamID:          teamID,
		TargetUserID:    targetUserID,
		CreatedByUserID: creatorID,
	}

	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create test event: %v", err)
	}

	return event
}

// CreateTestClaim creates a pending reimbursement claim for the user
func CreateTestClaim(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID) *models.ReimbursementClaim {
	t.Helper()

	claim := &models.ReimbursementClaim{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: orgID,
		UserID:         userID,
		Category:       "travel",
		AmountCents:    12500,
		Currency:       "USD",
		Status:         models.ClaimStatusPending,
	}

	if err := db.Create(claim).Error; err != nil {
		t.Fatalf("failed to create test claim: %v", err)
	}

	return claim
}

// CreateTestLeave creates a pending leave request for the user
func CreateTestLeave(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID) *models.LeaveRequest {
	t.Helper()

	leave := &models.LeaveRequest{
		Base: models.Base{
			ID: uuid.New(),
		},
		OrganizationID: orgID,
		UserID:         userID,
		Type:           models.LeaveTypeAnnual,
		StartDate:      time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 9, 11, 0, 0, 0, 0, time.UTC),
		Status:         models.LeaveStatusPending,
	}

	if err := db.Create(leave).Error; err != nil {
		t.Fatalf("failed to create test leave request: %v", err)
	}

	return leave
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.OrganizationID, user.Email, string(user.Role), user.TeamID)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Org        *models.Organization
	Admin      *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, org, admin user, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	admin := CreateTestUser(t, db, org, models.RoleAdmin)
	token := GenerateTestToken(t, jwtService, admin)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Org:        org,
		Admin:      admin,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
