package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestJWTSecret   = "test-secret-key-for-testing-only-32b"
	TestFrontendURL = "http://app.test"
)

// SetupTestDB creates a named in-memory SQLite database shared by all
// connections of the returned pool, migrated from the models.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: database.NowUTC,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupTestDB(t, db) })
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

// TestLogger discards everything below error.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestOrg creates an organization with an active subscription.
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Name:               "Test Agency",
		Slug:               "test-agency-" + uuid.NewString()[:8],
		BrandColor:         models.DefaultBrandColor,
		SubscriptionStatus: models.SubscriptionActive,
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateTestAgent creates an agent with a unique email.
func CreateTestAgent(t *testing.T, db *gorm.DB, fullName string) *models.Agent {
	t.Helper()

	agent := &models.Agent{
		Email:              "agent-" + uuid.NewString()[:8] + "@example.com",
		BrandColor:         models.DefaultBrandColor,
		SubscriptionStatus: models.SubscriptionTrial,
	}
	if fullName != "" {
		agent.FullName = &fullName
	}
	if err := db.Create(agent).Error; err != nil {
		t.Fatalf("failed to create test agent: %v", err)
	}
	return agent
}

// AddTestMember joins agent to org with role.
func AddTestMember(t *testing.T, db *gorm.DB, org *models.Organization, agent *models.Agent, role models.Role) *models.OrganizationMember {
	t.Helper()

	member := &models.OrganizationMember{
		OrganizationID: org.ID,
		AgentID:        agent.ID,
		Role:           role,
		JoinedAt:       time.Now().UTC(),
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test member: %v", err)
	}
	member.Agent = agent
	return member
}

// CreateTestDeal creates an active deal in org assigned to assignee.
func CreateTestDeal(t *testing.T, db *gorm.DB, orgID, assigneeID uuid.UUID) *models.Deal {
	t.Helper()

	deal := &models.Deal{
		OrganizationID:    orgID,
		AssignedToAgentID: &assigneeID,
		CreatedByAgentID:  &assigneeID,
		ClientName:        "Client " + uuid.NewString()[:4],
		ClientEmail:       "client-" + uuid.NewString()[:8] + "@example.com",
		Status:            models.DealStatusActive,
		AccessToken:       uuid.NewString(),
	}
	if err := db.Create(deal).Error; err != nil {
		t.Fatalf("failed to create test deal: %v", err)
	}
	return deal
}

// CreateTestStep creates a pending step with default thresholds; mutate may adjust it before insert.
func CreateTestStep(t *testing.T, db *gorm.DB, dealID uuid.UUID, mutate func(*models.TimelineStep)) *models.TimelineStep {
	t.Helper()

	now := time.Now().UTC()
	step := &models.TimelineStep{
		DealID:                 dealID,
		Title:                  "Step " + uuid.NewString()[:4],
		Status:                 models.StepStatusPending,
		Order:                  1,
		ExpectedDurationDays:   models.DefaultExpectedDurationDays,
		InactivityWarningDays:  models.DefaultInactivityWarningDays,
		InactivityCriticalDays: models.DefaultInactivityCriticalDays,
		LastActivityAt:         &now,
	}
	if mutate != nil {
		mutate(step)
	}
	if err := db.Create(step).Error; err != nil {
		t.Fatalf("failed to create test step: %v", err)
	}
	return step
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService(TestJWTSecret, "estateflow", "estateflow", 24*time.Hour)
}

// GenerateTestToken signs a token for the member's agent, organization and role.
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, member *models.OrganizationMember) string {
	t.Helper()

	email := ""
	if member.Agent != nil {
		email = member.Agent.Email
	}
	token, err := jwtService.GenerateToken(member.AgentID, member.OrganizationID, email, member.Role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// ContextFor is the RequestContext a member's token resolves to.
func ContextFor(member *models.OrganizationMember) auth.RequestContext {
	return auth.RequestContext{
		AgentID:        member.AgentID,
		OrganizationID: member.OrganizationID,
		Role:           member.Role,
	}
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
	DB          *gorm.DB
	JWTService  *auth.JWTService
	Org         *models.Organization
	Admin       *models.Agent
	AdminMember *models.OrganizationMember
	Token       string
}

// NewTestContext creates a DB with an active organization, its admin and the admin's token.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	org := CreateTestOrg(t, db)
	admin := CreateTestAgent(t, db, "Alice Admin")
	member := AddTestMember(t, db, org, admin, models.RoleAdmin)

	return &TestSetup{
		DB:          db,
		JWTService:  jwtService,
		Org:         org,
		Admin:       admin,
		AdminMember: member,
		Token:       GenerateTestToken(t, jwtService, member),
	}
}

// AddMember creates an agent joined to the setup's organization and returns it with a token.
func (ts *TestSetup) AddMember(t *testing.T, name string, role models.Role) (*models.OrganizationMember, string) {
	t.Helper()
	agent := CreateTestAgent(t, ts.DB, name)
	member := AddTestMember(t, ts.DB, ts.Org, agent, role)
	return member, GenerateTestToken(t, ts.JWTService, member)
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
