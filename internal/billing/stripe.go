package billing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hugh/estateflow/pkg/config"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const stripeMaxNetworkRetries = 2

// StripeClient adapts stripe-go to Provider. stripe-go retries 409, 429 and
// 5xx answers and reuses the idempotency key on every attempt.
type StripeClient struct {
	api        *client.API
	configured bool
}

func NewStripeClient(cfg *config.BillingConfig, logger *slog.Logger) *StripeClient {
	if logger == nil {
		logger = slog.Default()
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(stripeMaxNetworkRetries),
		LeveledLogger:     &stripeLogger{log: logger.With("component", "stripe")},
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}

	key := strings.TrimSpace(cfg.SecretKey)
	api := &client.API{}
	api.Init(key, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &StripeClient{api: api, configured: key != ""}
}

func params(ctx context.Context, idempotencyKey string) stripe.Params {
	p := stripe.Params{Context: ctx}
	if idempotencyKey != "" {
		p.IdempotencyKey = stripe.String(idempotencyKey)
	}
	return p
}

func (c *StripeClient) LatestSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	p := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(1)},
		Customer:   stripe.String(customerID),
		Status:     stripe.String("all"),
	}
	iter := c.api.Subscriptions.List(p)
	if iter.Next() {
		return fromStripeSubscription(iter.Subscription()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return nil, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	p := &stripe.SubscriptionParams{Params: params(ctx, "")}
	p.AddExpand("items.data.price")
	sub, err := c.api.Subscriptions.Get(subscriptionID, p)
	if err != nil {
		return nil, fmt.Errorf("getting subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

func (c *StripeClient) CreateSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64, idempotencyKey string) (*SubscriptionItem, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	item, err := c.api.SubscriptionItems.New(&stripe.SubscriptionItemParams{
		Params:            params(ctx, idempotencyKey),
		Subscription:      stripe.String(subscriptionID),
		Price:             stripe.String(priceID),
		Quantity:          stripe.Int64(quantity),
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription item: %w", err)
	}
	return fromStripeItem(item), nil
}

func (c *StripeClient) UpdateSubscriptionItem(ctx context.Context, itemID string, quantity int64, idempotencyKey string) (*SubscriptionItem, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	item, err := c.api.SubscriptionItems.Update(itemID, &stripe.SubscriptionItemParams{
		Params:            params(ctx, idempotencyKey),
		Quantity:          stripe.Int64(quantity),
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return nil, fmt.Errorf("updating subscription item: %w", err)
	}
	return fromStripeItem(item), nil
}

func (c *StripeClient) DeleteSubscriptionItem(ctx context.Context, itemID, idempotencyKey string) error {
	if !c.configured {
		return ErrProviderNotConfigured
	}
	_, err := c.api.SubscriptionItems.Del(itemID, &stripe.SubscriptionItemParams{
		Params:            params(ctx, idempotencyKey),
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return fmt.Errorf("deleting subscription item: %w", err)
	}
	return nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	p := &stripe.CustomerParams{
		Params: params(ctx, ""),
		Email:  stripe.String(email),
	}
	if name != "" {
		p.Name = stripe.String(name)
	}
	for k, v := range metadata {
		p.AddMetadata(k, v)
	}
	cus, err := c.api.Customers.New(p)
	if err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}
	return &Customer{ID: cus.ID, Email: cus.Email}, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (*Session, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	p := &stripe.CheckoutSessionParams{
		Params:             params(ctx, ""),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:           stripe.String(cp.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(cp.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
	}
	for k, v := range cp.Metadata {
		p.AddMetadata(k, v)
	}
	s, err := c.api.CheckoutSessions.New(p)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	if !c.configured {
		return nil, ErrProviderNotConfigured
	}
	s, err := c.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    params(ctx, ""),
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, fmt.Errorf("creating portal session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func fromStripeSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.Customer = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			out.Items.Data = append(out.Items.Data, *fromStripeItem(item))
		}
	}
	return out
}

func fromStripeItem(item *stripe.SubscriptionItem) *SubscriptionItem {
	out := &SubscriptionItem{ID: item.ID, Quantity: item.Quantity}
	if item.Price != nil {
		out.Price = Price{ID: item.Price.ID, UnitAmount: item.Price.UnitAmount}
	}
	return out
}

// stripeLogger routes stripe-go's request logging into slog.
type stripeLogger struct {
	log *slog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l *stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error(fmt.Sprintf(format, v...)) }

var (
	_ Provider                      = (*StripeClient)(nil)
	_ stripe.LeveledLoggerInterface = (*stripeLogger)(nil)
)
