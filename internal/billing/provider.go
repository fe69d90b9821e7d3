// Package billing keeps organization subscriptions and per-seat line items in
// sync with Stripe.
package billing

import (
	"context"
	"errors"
)

var ErrProviderNotConfigured = errors.New("billing provider not configured")

type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
}

type SubscriptionItem struct {
	ID               string `json:"id"`
	Quantity         int64  `json:"quantity"`
	Price            Price  `json:"price"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

type Subscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// Item returns the line item billed at priceID, or nil.
func (s *Subscription) Item(priceID string) *SubscriptionItem {
	for i := range s.Items.Data {
		if s.Items.Data[i].Price.ID == priceID {
			return &s.Items.Data[i]
		}
	}
	return nil
}

// PeriodEnd is the subscription period end, falling back to the first item's.
func (s *Subscription) PeriodEnd() int64 {
	if s.CurrentPeriodEnd != 0 {
		return s.CurrentPeriodEnd
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd != 0 {
			return item.CurrentPeriodEnd
		}
	}
	return 0
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Provider is the part of the Stripe API used by EstateFlow. Mutating calls
// accept an idempotency key; an empty key lets the client pick one.
type Provider interface {
	LatestSubscription(ctx context.Context, customerID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateSubscriptionItem(ctx context.Context, subscriptionID, priceID string, quantity int64, idempotencyKey string) (*SubscriptionItem, error)
	UpdateSubscriptionItem(ctx context.Context, itemID string, quantity int64, idempotencyKey string) (*SubscriptionItem, error)
	DeleteSubscriptionItem(ctx context.Context, itemID, idempotencyKey string) error
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
}
