package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hugh/estateflow/internal/billing"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/testutil"
	"github.com/hugh/estateflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

var testBillingConfig = config.BillingConfig{
	SecretKey:      "sk_test_123",
	WebhookSecret:  webhookSecret,
	MonthlyPriceID: "price_monthly",
	YearlyPriceID:  "price_yearly",
	SeatPriceID:    seatPrice,
	SeatUnitPrice:  10,
}

func newBillingService(t *testing.T, setup *testutil.TestSetup, fake *fakeStripe, now time.Time) *billing.Service {
	t.Helper()
	return billing.NewService(setup.DB, fake, testBillingConfig, billing.ServiceOptions{
		FrontendURL: testutil.TestFrontendURL,
		Logger:      testutil.TestLogger(),
		Now:         func() time.Time { return now },
	})
}

func reloadOrg(t *testing.T, db *gorm.DB, org *models.Organization) models.Organization {
	t.Helper()
	var out models.Organization
	require.NoError(t, db.First(&out, "id = ?", org.ID).Error)
	return out
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   models.SubscriptionStatus
	}{
		{"active", models.SubscriptionActive},
		{"past_due", models.SubscriptionActive},
		{"trialing", models.SubscriptionTrial},
		{"canceled", models.SubscriptionCancelled},
		{"unpaid", models.SubscriptionExpired},
		{"incomplete", models.SubscriptionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			assert.Equal(t, tt.want, billing.MapStatus(tt.remote, models.SubscriptionCancelled))
		})
	}
}

func TestHandleWebhook_Signature(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc := newBillingService(t, setup, newFakeStripe(), time.Now().UTC())
	ctx := testutil.TestContext(t)

	payload := []byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	now := time.Now()
	header := testutil.SignStripePayload(payload, webhookSecret, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		wantErr error
	}{
		{"valid", payload, header, nil},
		{"extra signature alongside a valid one", payload, header + ",v1=deadbeef", nil},
		{"wrong secret", payload, testutil.SignStripePayload(payload, "other", now), billing.ErrInvalidSignature},
		{"tampered body", []byte(`{"id":"evt_1","type":"invoice.paid"}`), header, billing.ErrInvalidSignature},
		{"outside tolerance", payload, testutil.SignStripePayload(payload, webhookSecret, now.Add(-6*time.Minute)), billing.ErrInvalidSignature},
		{"garbage header", payload, "garbage", billing.ErrInvalidSignature},
		{"missing header", payload, "", billing.ErrInvalidSignature},
		{"signed but no type", []byte(`{"id":"evt_2"}`), testutil.SignStripePayload([]byte(`{"id":"evt_2"}`), webhookSecret, now), billing.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.HandleWebhook(ctx, tt.payload, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("no webhook secret", func(t *testing.T) {
		cfg := testBillingConfig
		cfg.WebhookSecret = ""
		unconfigured := billing.NewService(setup.DB, newFakeStripe(), cfg, billing.ServiceOptions{
			FrontendURL: testutil.TestFrontendURL,
			Logger:      testutil.TestLogger(),
		})
		assert.ErrorIs(t, unconfigured.HandleWebhook(ctx, payload, header), billing.ErrNotConfigured)
	})
}

func event(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return data
}

func TestHandleWebhook(t *testing.T) {
	setup := testutil.NewTestContext(t)
	now := time.Now().UTC()
	svc := newBillingService(t, setup, newFakeStripe(), now)
	ctx := testutil.TestContext(t)

	send := func(payload []byte) error {
		return svc.HandleWebhook(ctx, payload, testutil.SignStripePayload(payload, webhookSecret, now))
	}

	require.NoError(t, setup.DB.Model(setup.Org).Update("subscription_status", models.SubscriptionTrial).Error)

	require.NoError(t, send(event(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_9",
		"subscription": "sub_9",
		"metadata":     map[string]string{"agent_id": setup.Admin.ID.String()},
	})))
	org := reloadOrg(t, setup.DB, setup.Org)
	assert.Equal(t, models.SubscriptionActive, org.SubscriptionStatus)
	require.NotNil(t, org.StripeCustomerID)
	assert.Equal(t, "cus_9", *org.StripeCustomerID)
	require.NotNil(t, org.StripeSubscriptionID)
	assert.Equal(t, "sub_9", *org.StripeSubscriptionID)

	require.NoError(t, send(event(t, "customer.subscription.updated", map[string]interface{}{
		"id": "sub_10", "customer": "cus_9", "status": "unpaid",
	})))
	org = reloadOrg(t, setup.DB, setup.Org)
	assert.Equal(t, models.SubscriptionExpired, org.SubscriptionStatus)
	assert.Equal(t, "sub_10", *org.StripeSubscriptionID)

	require.NoError(t, send(event(t, "invoice.paid", map[string]interface{}{"customer": "cus_9"})))
	assert.Equal(t, models.SubscriptionActive, reloadOrg(t, setup.DB, setup.Org).SubscriptionStatus)

	require.NoError(t, send(event(t, "invoice.payment_failed", map[string]interface{}{"customer": "cus_9"})))
	assert.Equal(t, models.SubscriptionActive, reloadOrg(t, setup.DB, setup.Org).SubscriptionStatus)

	require.NoError(t, send(event(t, "customer.subscription.deleted", map[string]interface{}{"customer": "cus_9"})))
	assert.Equal(t, models.SubscriptionCancelled, reloadOrg(t, setup.DB, setup.Org).SubscriptionStatus)

	t.Run("unknown customer and unknown type are acknowledged", func(t *testing.T) {
		assert.NoError(t, send(event(t, "invoice.paid", map[string]interface{}{"customer": "cus_nobody"})))
		assert.NoError(t, send(event(t, "charge.refunded", map[string]interface{}{"id": "ch_1"})))
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := event(t, "invoice.paid", map[string]interface{}{"customer": "cus_9"})
		err := svc.HandleWebhook(ctx, payload, testutil.SignStripePayload(payload, "wrong", now))
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})

	t.Run("malformed payload", func(t *testing.T) {
		assert.ErrorIs(t, send([]byte("not json")), billing.ErrInvalidPayload)
	})
}

func TestSubscriptionInfo(t *testing.T) {
	setup := testutil.NewTestContext(t)
	fake := newFakeStripe()
	svc := newBillingService(t, setup, fake, time.Now().UTC())
	ctx := testutil.TestContext(t)
	rc := testutil.ContextFor(setup.AdminMember)

	info, err := svc.Subscription(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "active", info.Status)
	assert.Nil(t, info.Plan)
	assert.Zero(t, info.SeatCount)

	fake.addSubscription("cus_1", "sub_1", "active",
		billing.SubscriptionItem{ID: "si_base", Quantity: 1, Price: billing.Price{ID: "price_yearly"}, CurrentPeriodEnd: 1_800_000_000},
		billing.SubscriptionItem{ID: "si_seat", Quantity: 3, Price: billing.Price{ID: seatPrice, UnitAmount: 1200}})
	require.NoError(t, setup.DB.Model(setup.Org).Update("stripe_subscription_id", "sub_1").Error)

	info, err = svc.Subscription(ctx, rc)
	require.NoError(t, err)
	require.NotNil(t, info.Plan)
	assert.Equal(t, billing.PlanYearly, *info.Plan)
	assert.Equal(t, int64(3), info.SeatCount)
	assert.InDelta(t, 12.0, info.SeatUnitPrice, 0.001)
	assert.InDelta(t, 470.0/12, info.BasePrice, 0.001)
	assert.InDelta(t, 470.0/12+36, info.TotalMonthlyAmount, 0.001)
	require.NotNil(t, info.CurrentPeriodEnd)
	assert.Equal(t, int64(1_800_000_000), info.CurrentPeriodEnd.Unix())
}

func TestSync(t *testing.T) {
	setup := testutil.NewTestContext(t)
	fake := newFakeStripe()
	svc := newBillingService(t, setup, fake, time.Now().UTC())
	ctx := testutil.TestContext(t)
	rc := testutil.ContextFor(setup.AdminMember)

	res, err := svc.Sync(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "trial", res.Status)

	linkAdminCustomer(t, setup, "cus_1")
	fake.addSubscription("cus_1", "sub_1", "past_due")
	require.NoError(t, setup.DB.Model(setup.Org).Update("subscription_status", models.SubscriptionTrial).Error)

	res, err = svc.Sync(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "past_due", res.Status)

	org := reloadOrg(t, setup.DB, setup.Org)
	assert.Equal(t, models.SubscriptionActive, org.SubscriptionStatus)
	assert.Equal(t, "sub_1", *org.StripeSubscriptionID)
	assert.Equal(t, "cus_1", *org.StripeCustomerID)
}

func TestCheckoutAndPortal(t *testing.T) {
	setup := testutil.NewTestContext(t)
	fake := newFakeStripe()
	svc := newBillingService(t, setup, fake, time.Now().UTC())
	ctx := testutil.TestContext(t)
	rc := testutil.ContextFor(setup.AdminMember)

	_, err := svc.Portal(ctx, rc)
	assert.ErrorIs(t, err, billing.ErrNoCustomer)

	session, err := svc.Checkout(ctx, rc, "Yearly")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/session", session.URL)
	require.Len(t, fake.checkouts, 1)
	assert.Equal(t, "price_yearly", fake.checkouts[0].PriceID)
	assert.Equal(t, setup.Org.ID.String(), fake.checkouts[0].Metadata["org_id"])
	assert.Equal(t, testutil.TestFrontendURL+"/dashboard/subscription", fake.checkouts[0].CancelURL)
	assert.Equal(t, []string{setup.Admin.Email}, fake.customers)

	// The customer created for checkout is reused.
	_, err = svc.Checkout(ctx, rc, "")
	require.NoError(t, err)
	assert.Len(t, fake.customers, 1)
	assert.Equal(t, "price_monthly", fake.checkouts[1].PriceID)

	portal, err := svc.Portal(ctx, rc)
	require.NoError(t, err)
	assert.Contains(t, portal.URL, "cus_")
}

func TestNotConfigured(t *testing.T) {
	setup := testutil.NewTestContext(t)
	svc := billing.NewService(setup.DB, newFakeStripe(), config.BillingConfig{}, billing.ServiceOptions{Logger: testutil.TestLogger()})
	ctx := testutil.TestContext(t)
	rc := testutil.ContextFor(setup.AdminMember)

	_, err := svc.Checkout(ctx, rc, "monthly")
	assert.ErrorIs(t, err, billing.ErrNotConfigured)
	_, err = svc.Sync(ctx, rc)
	assert.ErrorIs(t, err, billing.ErrNotConfigured)
	_, err = svc.Portal(ctx, rc)
	assert.ErrorIs(t, err, billing.ErrNotConfigured)
}
