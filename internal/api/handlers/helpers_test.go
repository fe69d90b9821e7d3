package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/billing"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/documents"
	"github.com/hugh/estateflow/internal/organization"
	"github.com/hugh/estateflow/internal/signature"
	"github.com/hugh/estateflow/internal/storage"
	"github.com/hugh/estateflow/internal/testutil"
	"github.com/hugh/estateflow/pkg/config"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

// services wires every domain service over the test database with a
// recording notifier and a local store in a temp dir.
type services struct {
	Notifier  *testutil.RecordingNotifier
	Store     storage.Store
	Auth      *auth.Service
	Deals     *deals.Service
	Documents *documents.Service
	Orgs      *organization.Service
	Dashboard *dashboard.Service
	Billing   *billing.Service
}

func newServices(t *testing.T, tc *testutil.TestSetup) *services {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	logger := testutil.TestLogger()
	notifier := &testutil.RecordingNotifier{}

	authSvc := auth.NewService(tc.DB, tc.JWTService, notifier, auth.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL,
		Logger:      logger,
	})
	dealSvc := deals.NewService(tc.DB, notifier, store, deals.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL,
		Logger:      logger,
	})
	docSvc := documents.NewService(tc.DB, dealSvc, store, signature.Disabled{}, notifier, documents.ServiceOptions{
		Logger: logger,
	})
	seats := billing.NewSeatReconciler(tc.DB, nil, billing.SeatOptions{Logger: logger})
	orgSvc := organization.NewService(tc.DB, seats, authSvc, notifier, organization.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL,
		Logger:      logger,
	})
	billingSvc := billing.NewService(tc.DB, nil, config.BillingConfig{WebhookSecret: testWebhookSecret}, billing.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL,
		Logger:      logger,
	})

	return &services{
		Notifier:  notifier,
		Store:     store,
		Auth:      authSvc,
		Deals:     dealSvc,
		Documents: docSvc,
		Orgs:      orgSvc,
		Dashboard: dashboard.NewService(tc.DB, nil),
		Billing:   billingSvc,
	}
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
