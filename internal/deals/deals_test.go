package deals_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopFiles struct{ deleted []string }

func (f *noopFiles) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func newService(t *testing.T, setup *testutil.TestSetup) (*deals.Service, *testutil.RecordingNotifier, *noopFiles) {
	t.Helper()
	notifier := &testutil.RecordingNotifier{}
	files := &noopFiles{}
	svc := deals.NewService(setup.DB, notifier, files, deals.ServiceOptions{
		FrontendURL:    testutil.TestFrontendURL,
		TrialDealLimit: 1,
		Logger:         testutil.TestLogger(),
	})
	return svc, notifier, files
}

func ids(list []models.Deal) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	return out
}

func TestVisibilityPartition(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, _ := newService(t, setup)
	ctx := testutil.TestContext(t)

	lead, _ := setup.AddMember(t, "Tom Lead", models.RoleTeamLead)
	emp, _ := setup.AddMember(t, "Eve Employee", models.RoleEmployee)

	adminDeal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	empDeal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)
	leadDeal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, lead.AgentID)

	// A second tenant whose deal is assigned to the same employee agent id.
	otherOrg := testutil.CreateTestOrg(t, setup.DB)
	foreignDeal := testutil.CreateTestDeal(t, setup.DB, otherOrg.ID, emp.AgentID)
	otherAdmin := testutil.CreateTestAgent(t, setup.DB, "Other Admin")
	testutil.AddTestMember(t, setup.DB, otherOrg, otherAdmin, models.RoleAdmin)
	otherDeal := testutil.CreateTestDeal(t, setup.DB, otherOrg.ID, otherAdmin.ID)

	t.Run("admin sees the whole organization", func(t *testing.T) {
		list, err := svc.List(ctx, testutil.ContextFor(setup.AdminMember), deals.ListFilter{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{adminDeal.ID, empDeal.ID, leadDeal.ID}, ids(list))
	})

	t.Run("team lead sees the whole organization", func(t *testing.T) {
		list, err := svc.List(ctx, testutil.ContextFor(lead), deals.ListFilter{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{adminDeal.ID, empDeal.ID, leadDeal.ID}, ids(list))
	})

	t.Run("employee sees only assigned deals of its organization", func(t *testing.T) {
		list, err := svc.List(ctx, testutil.ContextFor(emp), deals.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{empDeal.ID}, ids(list))
		assert.NotContains(t, ids(list), foreignDeal.ID)
	})

	t.Run("no cross tenant leakage", func(t *testing.T) {
		list, err := svc.List(ctx, testutil.ContextFor(setup.AdminMember), deals.ListFilter{})
		require.NoError(t, err)
		assert.NotContains(t, ids(list), otherDeal.ID)
		assert.NotContains(t, ids(list), foreignDeal.ID)
	})

	t.Run("empty context sees nothing", func(t *testing.T) {
		_, err := svc.List(ctx, auth.RequestContext{Role: models.RoleAdmin}, deals.ListFilter{})
		assert.ErrorIs(t, err, deals.ErrNoAccess)
	})

	t.Run("filters compose with the scope", func(t *testing.T) {
		completed := models.DealStatusCompleted
		require.NoError(t, setup.DB.Model(leadDeal).Update("status", completed).Error)

		list, err := svc.List(ctx, testutil.ContextFor(setup.AdminMember), deals.ListFilter{Status: &completed})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{leadDeal.ID}, ids(list))

		assignee := emp.AgentID
		list, err = svc.List(ctx, testutil.ContextFor(lead), deals.ListFilter{AssignedTo: &assignee})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{empDeal.ID}, ids(list))
	})
}

func TestGet_ForbiddenVersusNotFound(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, _ := newService(t, setup)
	ctx := testutil.TestContext(t)

	emp, _ := setup.AddMember(t, "Eve Employee", models.RoleEmployee)
	adminDeal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	empDeal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)

	otherOrg := testutil.CreateTestOrg(t, setup.DB)
	otherDeal := testutil.CreateTestDeal(t, setup.DB, otherOrg.ID, emp.AgentID)

	got, err := svc.Get(ctx, testutil.ContextFor(emp), empDeal.ID)
	require.NoError(t, err)
	assert.Equal(t, empDeal.ID, got.ID)

	_, err = svc.Get(ctx, testutil.ContextFor(emp), adminDeal.ID)
	assert.ErrorIs(t, err, deals.ErrForbidden, "existing deal of own org not assigned to employee")

	_, err = svc.Get(ctx, testutil.ContextFor(emp), otherDeal.ID)
	assert.ErrorIs(t, err, deals.ErrNotFound, "other tenants' deals are never confirmed")

	_, err = svc.Get(ctx, testutil.ContextFor(setup.AdminMember), otherDeal.ID)
	assert.ErrorIs(t, err, deals.ErrNotFound)

	_, err = svc.Get(ctx, testutil.ContextFor(emp), uuid.New())
	assert.ErrorIs(t, err, deals.ErrNotFound)

	// Mutations go through the same check.
	name := "Renamed"
	_, err = svc.Update(ctx, testutil.ContextFor(emp), adminDeal.ID, deals.UpdateInput{ClientName: &name})
	assert.ErrorIs(t, err, deals.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, testutil.ContextFor(emp), adminDeal.ID), deals.ErrForbidden)
}

func TestCreate(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, notifier, _ := newService(t, setup)
	ctx := testutil.TestContext(t)

	tmpl := models.TimelineTemplate{
		Name: "Sale",
		Steps: []models.TemplateStep{
			{Title: "Offer", Description: "Offer accepted", Order: 1},
			{Title: "Deed", Order: 2, ExpectedDurationDays: 30, InactivityWarningDays: 10, InactivityCriticalDays: 20},
		},
	}
	require.NoError(t, setup.DB.Create(&tmpl).Error)

	address := "1 Main Street"
	deal, err := svc.Create(ctx, testutil.ContextFor(setup.AdminMember), deals.CreateInput{
		ClientName:      "Bob Client",
		ClientEmail:     " Bob@Example.com ",
		PropertyAddress: &address,
		TemplateID:      &tmpl.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, setup.Org.ID, deal.OrganizationID)
	require.NotNil(t, deal.AssignedToAgentID)
	assert.Equal(t, setup.Admin.ID, *deal.AssignedToAgentID)
	assert.Equal(t, setup.Admin.ID, *deal.CreatedByAgentID)
	assert.Equal(t, "bob@example.com", deal.ClientEmail)
	assert.Len(t, deal.AccessToken, 43)
	require.NotNil(t, deal.WelcomeMessage)
	assert.Contains(t, *deal.WelcomeMessage, "Bob Client")

	require.Len(t, deal.Steps, 2)
	assert.Equal(t, "Offer", deal.Steps[0].Title)
	assert.Equal(t, models.DefaultExpectedDurationDays, deal.Steps[0].ExpectedDurationDays)
	assert.Equal(t, 30, deal.Steps[1].ExpectedDurationDays)
	assert.Equal(t, 20, deal.Steps[1].InactivityCriticalDays)

	sent, ok := notifier.Last("new_deal")
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", sent.To)
	assert.Equal(t, testutil.TestFrontendURL+"/deal/"+deal.AccessToken, sent.Link)

	t.Run("template copy is a one time snapshot", func(t *testing.T) {
		tmpl.Steps[0].Title = "Changed"
		require.NoError(t, setup.DB.Save(&tmpl).Error)

		reloaded, err := svc.Get(ctx, testutil.ContextFor(setup.AdminMember), deal.ID)
		require.NoError(t, err)
		assert.Equal(t, "Offer", reloaded.Steps[0].Title)
	})

	t.Run("unknown template", func(t *testing.T) {
		missing := uuid.New()
		_, err := svc.Create(ctx, testutil.ContextFor(setup.AdminMember), deals.CreateInput{
			ClientName: "X", ClientEmail: "x@example.com", TemplateID: &missing,
		})
		assert.ErrorIs(t, err, deals.ErrTemplateNotFound)
	})
}

func TestCreate_TrialLimit(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, _ := newService(t, setup)
	ctx := testutil.TestContext(t)
	rc := testutil.ContextFor(setup.AdminMember)

	require.NoError(t, setup.DB.Model(setup.Org).Update("subscription_status", models.SubscriptionTrial).Error)

	check, err := svc.CanCreate(ctx, rc)
	require.NoError(t, err)
	assert.True(t, check.CanCreate)

	_, err = svc.Create(ctx, rc, deals.CreateInput{ClientName: "First", ClientEmail: "first@example.com"})
	require.NoError(t, err)

	check, err = svc.CanCreate(ctx, rc)
	require.NoError(t, err)
	assert.False(t, check.CanCreate)
	assert.Equal(t, int64(1), check.CurrentDeals)
	assert.NotEmpty(t, check.Reason)

	_, err = svc.Create(ctx, rc, deals.CreateInput{ClientName: "Second", ClientEmail: "second@example.com"})
	assert.ErrorIs(t, err, deals.ErrTrialLimit)

	require.NoError(t, setup.DB.Model(setup.Org).Update("subscription_status", models.SubscriptionActive).Error)
	_, err = svc.Create(ctx, rc, deals.CreateInput{ClientName: "Second", ClientEmail: "second@example.com"})
	assert.NoError(t, err)
}

func TestUpdate_KeepsOrganization(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, _ := newService(t, setup)
	ctx := testutil.TestContext(t)

	deal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	status := models.DealStatusCompleted
	name := "New Name"

	updated, err := svc.Update(ctx, testutil.ContextFor(setup.AdminMember), deal.ID, deals.UpdateInput{ClientName: &name, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.ClientName)
	assert.Equal(t, models.DealStatusCompleted, updated.Status)
	assert.Equal(t, setup.Org.ID, updated.OrganizationID)
}

func TestDelete_RemovesChildrenAndFiles(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, files := newService(t, setup)
	ctx := testutil.TestContext(t)

	deal := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	testutil.CreateTestStep(t, setup.DB, deal.ID, nil)
	signed := "deal/doc_signed.pdf"
	doc := models.Document{DealID: deal.ID, Filename: "doc.pdf", FilePath: "deal/doc.pdf", Category: models.DocumentCategoryToSign, UploadedAt: time.Now().UTC(), SignedFilePath: &signed}
	require.NoError(t, setup.DB.Create(&doc).Error)

	require.NoError(t, svc.Delete(ctx, testutil.ContextFor(setup.AdminMember), deal.ID))

	var count int64
	setup.DB.Model(&models.TimelineStep{}).Where("deal_id = ?", deal.ID).Count(&count)
	assert.Zero(t, count)
	setup.DB.Model(&models.Document{}).Where("deal_id = ?", deal.ID).Count(&count)
	assert.Zero(t, count)
	assert.ElementsMatch(t, []string{"deal/doc.pdf", "deal/doc_signed.pdf"}, files.deleted)

	_, err := svc.Get(ctx, testutil.ContextFor(setup.AdminMember), deal.ID)
	assert.ErrorIs(t, err, deals.ErrNotFound)
}

func TestStats(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc, _, _ := newService(t, setup)
	ctx := testutil.TestContext(t)

	emp, _ := setup.AddMember(t, "Eve", models.RoleEmployee)
	testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, setup.Admin.ID)
	done := testutil.CreateTestDeal(t, setup.DB, setup.Org.ID, emp.AgentID)
	require.NoError(t, setup.DB.Model(done).Update("status", models.DealStatusCompleted).Error)

	stats, err := svc.Stats(ctx, testutil.ContextFor(setup.AdminMember))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDeals)
	assert.Equal(t, int64(1), stats.ActiveDeals)
	assert.Equal(t, int64(1), stats.CompletedDeals)

	stats, err = svc.Stats(ctx, testutil.ContextFor(emp))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDeals)
	assert.Equal(t, int64(0), stats.ActiveDeals)
}
