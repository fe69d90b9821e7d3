package dashboard_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dueIn(days int) func(*models.TimelineStep) {
	return func(s *models.TimelineStep) {
		d := models.DateOnly(time.Now()).AddDate(0, 0, days)
		s.DueDate = &d
		s.Status = models.StepStatusInProgress
	}
}

func TestService_AgentScope(t *testing.T) {
	setup := testutil.NewTestContext(t)
	ctx := testutil.TestContext(t)
	svc := dashboard.NewService(setup.DB, nil)
	emp, _ := setup.AddMember(t, "Eve Employee", models.RoleEmployee)

	mine := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)
	testutil.CreateTestStep(t, setup.DB, mine.ID, dueIn(-3))
	theirs := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	testutil.CreateTestStep(t, setup.DB, theirs.ID, dueIn(-1))

	// Same assignee in another organization stays out of scope.
	other := testutil.CreateTestOrg(t, setup.DB)
	elsewhere := testutil.CreateTestDeal(t, setup.DB, other.ID, emp.AgentID)
	testutil.CreateTestStep(t, setup.DB, elsewhere.ID, dueIn(-5))

	dash, err := svc.Agent(ctx, testutil.ContextFor(emp))
	require.NoError(t, err)
	assert.Equal(t, 1, dash.KPIs.ActiveDeals)
	assert.Equal(t, 1, dash.KPIs.AlertDeals)
	require.Len(t, dash.Today, 1)
	assert.Equal(t, mine.ID, dash.Today[0].DealID)
	assert.Equal(t, dashboard.AlertOverdue, dash.Today[0].Type)
	assert.Equal(t, 3, dash.Today[0].DaysOverdue)
	assert.NotNil(t, dash.ThisWeek)

	_, err = svc.Agent(ctx, testutil.ContextFor(&models.OrganizationMember{AgentID: emp.AgentID}))
	assert.ErrorIs(t, err, deals.ErrNoAccess)
}

func TestService_Organization(t *testing.T) {
	setup := testutil.NewTestContext(t)
	ctx := testutil.TestContext(t)
	svc := dashboard.NewService(setup.DB, nil)
	emp, _ := setup.AddMember(t, "Eve Employee", models.RoleEmployee)
	lead, _ := setup.AddMember(t, "Tom Lead", models.RoleTeamLead)

	d1 := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)
	testutil.CreateTestStep(t, setup.DB, d1.ID, dueIn(-2))
	d2 := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	testutil.CreateTestStep(t, setup.DB, d2.ID, dueIn(1))
	testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, lead.AgentID)

	dash, err := svc.Organization(ctx, testutil.ContextFor(lead))
	require.NoError(t, err)
	assert.Equal(t, 3, dash.KPIs.ActiveDeals)
	assert.Equal(t, 2, dash.KPIs.AlertDeals)
	assert.LessOrEqual(t, dash.KPIs.AlertDeals, dash.KPIs.ActiveDeals)
	require.Len(t, dash.Today, 2)
	assert.Equal(t, "Eve Employee", dash.Today[0].AgentName)
	assert.Equal(t, "Alice Admin", dash.Today[1].AgentName)

	require.Len(t, dash.Team, 3)
	rows := map[uuid.UUID]dashboard.TeamMember{}
	for _, r := range dash.Team {
		rows[r.AgentID] = r
	}
	assert.Equal(t, 1, rows[emp.AgentID].AlertCritical)
	assert.Equal(t, 1, rows[setup.Admin.ID].AlertWarning)
	assert.Equal(t, 1, rows[lead.AgentID].ActiveDeals)
	assert.Zero(t, rows[lead.AgentID].AlertCritical+rows[lead.AgentID].AlertWarning)

	_, err = svc.Organization(ctx, testutil.ContextFor(emp))
	assert.ErrorIs(t, err, deals.ErrNoAccess)
}

func TestService_MemberDrilldown(t *testing.T) {
	setup := testutil.NewTestContext(t)
	ctx := testutil.TestContext(t)
	svc := dashboard.NewService(setup.DB, nil)
	emp, _ := setup.AddMember(t, "Eve Employee", models.RoleEmployee)
	d := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)
	testutil.CreateTestStep(t, setup.DB, d.ID, dueIn(0))

	dash, err := svc.Member(ctx, testutil.ContextFor(setup.AdminMember), emp.AgentID)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.KPIs.ActiveDeals)
	assert.Equal(t, 1, dash.KPIs.AlertWarning)
	require.Len(t, dash.ThisWeek, 1)

	_, err = svc.Member(ctx, testutil.ContextFor(setup.AdminMember), uuid.New())
	assert.ErrorIs(t, err, dashboard.ErrMemberNotFound)

	_, err = svc.Member(ctx, testutil.ContextFor(emp), setup.Admin.ID)
	assert.ErrorIs(t, err, deals.ErrNoAccess)
}
