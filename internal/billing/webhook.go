package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const webhookTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

type eventObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

// constructEvent verifies the Stripe-Signature header and decodes the event.
// Events are accepted whatever API version the account sends.
func constructEvent(payload []byte, header, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                webhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return event, ErrInvalidSignature
	case err != nil:
		return event, ErrInvalidPayload
	}
	return event, nil
}

// HandleWebhook verifies and applies one Stripe event. Events for unknown
// customers and unhandled types are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := constructEvent(payload, signatureHeader, s.cfg.WebhookSecret)
	if err == nil && event.Type == "" {
		err = ErrInvalidPayload
	}
	if err != nil {
		s.metrics.WebhookEvent("unknown", "rejected")
		return err
	}

	eventType := string(event.Type)
	var obj eventObject
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
			s.metrics.WebhookEvent(eventType, "rejected")
			return ErrInvalidPayload
		}
	}

	switch eventType {
	case "checkout.session.completed":
		err = s.checkoutCompleted(ctx, &obj)
	case "invoice.paid":
		err = s.updateByCustomer(ctx, obj.Customer, "subscription renewed", map[string]interface{}{
			"subscription_status": models.SubscriptionActive,
		})
	case "invoice.payment_failed":
		if org, findErr := s.orgByCustomer(ctx, obj.Customer); findErr == nil && org != nil {
			s.logger.Warn("payment failed", "org_id", org.ID)
		}
	case "customer.subscription.deleted":
		err = s.updateByCustomer(ctx, obj.Customer, "subscription cancelled", map[string]interface{}{
			"subscription_status": models.SubscriptionCancelled,
		})
	case "customer.subscription.updated":
		err = s.subscriptionUpdated(ctx, &obj)
	default:
		s.metrics.WebhookEvent(eventType, "ignored")
		return nil
	}
	if err != nil {
		s.metrics.WebhookEvent(eventType, "error")
		return fmt.Errorf("handling %s: %w", eventType, err)
	}
	s.metrics.WebhookEvent(eventType, "handled")
	return nil
}

func (s *Service) checkoutCompleted(ctx context.Context, obj *eventObject) error {
	var org *models.Organization
	if id, err := uuid.Parse(obj.Metadata["org_id"]); err == nil {
		var found models.Organization
		if err := s.db.WithContext(ctx).First(&found, "id = ?", id).Error; err == nil {
			org = &found
		}
	}
	if org == nil {
		if agentID, err := uuid.Parse(obj.Metadata["agent_id"]); err == nil {
			org, _ = s.orgForAgentAdmin(ctx, agentID)
		}
	}
	if org == nil {
		s.logger.Warn("checkout completed for unknown organization", "customer", obj.Customer)
		return nil
	}

	if err := s.db.WithContext(ctx).Model(org).Updates(map[string]interface{}{
		"subscription_status":    models.SubscriptionActive,
		"stripe_subscription_id": obj.Subscription,
		"stripe_customer_id":     obj.Customer,
	}).Error; err != nil {
		return err
	}
	s.logger.Info("subscription activated", "org_id", org.ID)
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, obj *eventObject) error {
	org, err := s.orgByCustomer(ctx, obj.Customer)
	if err != nil || org == nil {
		return err
	}
	status := MapStatus(obj.Status, org.SubscriptionStatus)
	if err := s.db.WithContext(ctx).Model(org).Updates(map[string]interface{}{
		"subscription_status":    status,
		"stripe_subscription_id": obj.ID,
	}).Error; err != nil {
		return err
	}
	s.logger.Info("subscription updated", "org_id", org.ID, "status", obj.Status)
	return nil
}

func (s *Service) updateByCustomer(ctx context.Context, customerID, msg string, updates map[string]interface{}) error {
	org, err := s.orgByCustomer(ctx, customerID)
	if err != nil || org == nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
		return err
	}
	s.logger.Info(msg, "org_id", org.ID)
	return nil
}

func (s *Service) orgByCustomer(ctx context.Context, customerID string) (*models.Organization, error) {
	if customerID == "" {
		return nil, nil
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("billing event for unknown customer", "customer", customerID)
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}
