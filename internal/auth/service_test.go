package auth_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setupAuthService(t *testing.T) (*auth.Service, *testutil.TestSetup, *testutil.RecordingNotifier, *clock) {
	t.Helper()

	tc := testutil.NewTestContext(t)
	notifier := &testutil.RecordingNotifier{}
	c := &clock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	svc := auth.NewService(tc.DB, tc.JWTService, notifier, auth.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL + "/",
		Logger:      testutil.TestLogger(),
		Now:         c.now,
	})
	return svc, tc, notifier, c
}

func linkToken(t *testing.T, n *testutil.RecordingNotifier) string {
	t.Helper()

	sent, ok := n.Last("magic_link")
	require.True(t, ok)
	u, err := url.Parse(sent.Link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", u.Path)
	return u.Query().Get("token")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "agent@example.com", auth.NormalizeEmail("  Agent@Example.COM "))
	assert.Equal(t, "", auth.NormalizeEmail("   "))
}

func TestRequestMagicLink(t *testing.T) {
	svc, tc, notifier, _ := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	require.NoError(t, svc.RequestMagicLink(ctx, "New@Example.com"))
	require.NoError(t, svc.RequestMagicLink(ctx, "new@example.com"))

	var agents int64
	require.NoError(t, tc.DB.Model(&models.Agent{}).Where("email = ?", "new@example.com").Count(&agents).Error)
	assert.Equal(t, int64(1), agents)
	assert.Equal(t, 2, notifier.Count("magic_link"))

	token := linkToken(t, notifier)
	var stored models.MagicLink
	require.NoError(t, tc.DB.Order("created_at DESC").First(&stored).Error)
	assert.NotEqual(t, token, stored.TokenHash)

	t.Run("empty address", func(t *testing.T) {
		assert.ErrorIs(t, svc.RequestMagicLink(ctx, "  "), auth.ErrInvalidEmail)
	})
}

func TestVerifyMagicLink_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		valid   bool
	}{
		{"fresh", time.Minute, true},
		{"just before expiry", 15*time.Minute - time.Second, true},
		{"at expiry", 15 * time.Minute, false},
		{"long expired", 24 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, tc, notifier, c := setupAuthService(t)
			defer tc.Cleanup()
			ctx := testutil.TestContext(t)

			require.NoError(t, svc.RequestMagicLink(ctx, tc.Admin.Email))
			token := linkToken(t, notifier)

			c.t = c.t.Add(tt.advance)
			resp, err := svc.VerifyMagicLink(ctx, token)
			if !tt.valid {
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Admin.ID, resp.Agent.ID)
			require.NotNil(t, resp.Membership)
			assert.Equal(t, tc.Org.ID, resp.Membership.OrganizationID)
		})
	}
}

func TestVerifyMagicLink_SingleUse(t *testing.T) {
	svc, tc, notifier, _ := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	require.NoError(t, svc.RequestMagicLink(ctx, tc.Admin.Email))
	token := linkToken(t, notifier)

	_, err := svc.VerifyMagicLink(ctx, token)
	require.NoError(t, err)

	_, err = svc.VerifyMagicLink(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.VerifyMagicLink(ctx, "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestIssueToken_ProvisionsPersonalOrganization(t *testing.T) {
	svc, tc, _, _ := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	loner := testutil.CreateTestAgent(t, tc.DB, "Lou Loner")

	resp, err := svc.IssueToken(ctx, loner)
	require.NoError(t, err)
	require.NotNil(t, resp.Membership)
	assert.Equal(t, models.RoleAdmin, resp.Membership.Role)
	assert.NotEqual(t, tc.Org.ID, resp.Membership.OrganizationID)

	claims, err := tc.JWTService.ValidateToken(resp.Token)
	require.NoError(t, err)
	rc := auth.ContextFromClaims(claims)
	assert.True(t, rc.IsAdmin())
	assert.Equal(t, loner.ID, rc.AgentID)

	t.Run("second issue reuses the organization", func(t *testing.T) {
		again, err := svc.IssueToken(ctx, loner)
		require.NoError(t, err)
		assert.Equal(t, resp.Membership.OrganizationID, again.Membership.OrganizationID)
	})
}

func TestIssueToken_LocksAgentBeforeProvisioning(t *testing.T) {
	svc, tc, _, _ := setupAuthService(t)
	defer tc.Cleanup()
	ctx := testutil.TestContext(t)

	loner := testutil.CreateTestAgent(t, tc.DB, "Lou Loner")

	var lockedAgentReads int
	require.NoError(t, tc.DB.Callback().Query().Before("gorm:query").Register("test:agent_locks", func(db *gorm.DB) {
		if _, ok := db.Statement.Clauses["FOR"]; ok && db.Statement.Table == "agents" {
			lockedAgentReads++
		}
	}))

	_, err := svc.IssueToken(ctx, loner)
	require.NoError(t, err)
	assert.Equal(t, 1, lockedAgentReads)

	var orgs int64
	require.NoError(t, tc.DB.Model(&models.OrganizationMember{}).Where("agent_id = ?", loner.ID).Count(&orgs).Error)
	assert.Equal(t, int64(1), orgs)
}
