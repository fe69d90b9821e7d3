package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/metrics"
	"github.com/hugh/estateflow/internal/tenant"
	"gorm.io/gorm"
)

var ErrSeatUnavailable = errors.New("failed to add seat to subscription")

// SeatReconciler mirrors organization membership onto the subscription's
// per-seat line item. An organization with no subscription is left alone.
type SeatReconciler struct {
	db          *gorm.DB
	provider    Provider
	seatPriceID string
	enabled     bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type SeatOptions struct {
	SeatPriceID string
	Enabled     bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func NewSeatReconciler(db *gorm.DB, provider Provider, opts SeatOptions) *SeatReconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SeatReconciler{
		db:          db,
		provider:    provider,
		seatPriceID: opts.SeatPriceID,
		enabled:     opts.Enabled && provider != nil && opts.SeatPriceID != "",
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// AddSeat raises the seat quantity by one. Any provider failure is returned
// and must stop the operation that needed the seat.
func (r *SeatReconciler) AddSeat(ctx context.Context, org *models.Organization, idempotencyKey string) error {
	if !r.enabled {
		r.metrics.SeatOperation("add", "skipped")
		return nil
	}

	subID, err := r.subscriptionFor(ctx, org)
	if err != nil {
		r.metrics.SeatOperation("add", "error")
		return fmt.Errorf("%w: %w", ErrSeatUnavailable, err)
	}
	if subID == "" {
		r.metrics.SeatOperation("add", "skipped")
		return nil
	}

	sub, err := r.provider.GetSubscription(ctx, subID)
	if err != nil {
		r.metrics.SeatOperation("add", "error")
		return fmt.Errorf("%w: %w", ErrSeatUnavailable, err)
	}

	var item *SubscriptionItem
	if existing := sub.Item(r.seatPriceID); existing != nil {
		item, err = r.provider.UpdateSubscriptionItem(ctx, existing.ID, existing.Quantity+1, idempotencyKey)
	} else {
		item, err = r.provider.CreateSubscriptionItem(ctx, sub.ID, r.seatPriceID, 1, idempotencyKey)
	}
	if err != nil {
		r.metrics.SeatOperation("add", "error")
		return fmt.Errorf("%w: %w", ErrSeatUnavailable, err)
	}

	if err := r.saveSeatItem(ctx, org, &item.ID); err != nil {
		r.logger.Error("failed to store seat item", "org_id", org.ID, "error", err)
	}
	r.metrics.SeatOperation("add", "ok")
	r.logger.Info("seat added", "org_id", org.ID, "subscription_id", sub.ID, "quantity", item.Quantity)
	return nil
}

// RemoveSeat lowers the seat quantity by one and deletes the line item when
// it would reach zero. Failures are logged, never returned.
func (r *SeatReconciler) RemoveSeat(ctx context.Context, org *models.Organization, idempotencyKey string) {
	if !r.enabled {
		r.metrics.SeatOperation("remove", "skipped")
		return
	}
	if err := r.removeSeat(ctx, org, idempotencyKey); err != nil {
		r.metrics.SeatOperation("remove", "error")
		r.logger.Warn("failed to remove seat", "org_id", org.ID, "error", err)
	}
}

func (r *SeatReconciler) removeSeat(ctx context.Context, org *models.Organization, idempotencyKey string) error {
	subID, err := r.subscriptionFor(ctx, org)
	if err != nil {
		return err
	}
	if subID == "" {
		r.metrics.SeatOperation("remove", "skipped")
		return nil
	}

	sub, err := r.provider.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	existing := sub.Item(r.seatPriceID)
	if existing == nil {
		r.metrics.SeatOperation("remove", "skipped")
		return nil
	}

	if existing.Quantity <= 1 {
		if err := r.provider.DeleteSubscriptionItem(ctx, existing.ID, idempotencyKey); err != nil {
			return err
		}
		if err := r.saveSeatItem(ctx, org, nil); err != nil {
			return err
		}
		r.logger.Info("seat item deleted", "org_id", org.ID, "subscription_id", sub.ID)
	} else {
		if _, err := r.provider.UpdateSubscriptionItem(ctx, existing.ID, existing.Quantity-1, idempotencyKey); err != nil {
			return err
		}
		r.logger.Info("seat removed", "org_id", org.ID, "subscription_id", sub.ID, "quantity", existing.Quantity-1)
	}
	r.metrics.SeatOperation("remove", "ok")
	return nil
}

// subscriptionFor returns the organization's subscription id, discovering it
// through the admin's customer when the organization was never linked. An
// empty id means there is nothing to bill.
func (r *SeatReconciler) subscriptionFor(ctx context.Context, org *models.Organization) (string, error) {
	if org.StripeSubscriptionID != nil && *org.StripeSubscriptionID != "" {
		return *org.StripeSubscriptionID, nil
	}

	customerID := ""
	if org.StripeCustomerID != nil {
		customerID = *org.StripeCustomerID
	}
	if customerID == "" {
		admin, err := tenant.Admin(r.db.WithContext(ctx), org.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		if admin != nil && admin.Agent != nil && admin.Agent.StripeCustomerID != nil {
			customerID = *admin.Agent.StripeCustomerID
		}
	}
	if customerID == "" {
		return "", nil
	}

	sub, err := r.provider.LatestSubscription(ctx, customerID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", nil
	}

	org.StripeSubscriptionID = &sub.ID
	org.StripeCustomerID = &customerID
	if err := r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", org.ID).
		Updates(map[string]interface{}{
			"stripe_subscription_id": sub.ID,
			"stripe_customer_id":     customerID,
		}).Error; err != nil {
		return "", fmt.Errorf("linking subscription: %w", err)
	}
	r.logger.Info("linked organization to subscription", "org_id", org.ID, "subscription_id", sub.ID)
	return sub.ID, nil
}

func (r *SeatReconciler) saveSeatItem(ctx context.Context, org *models.Organization, itemID *string) error {
	org.StripeSeatItemID = itemID
	return r.db.WithContext(ctx).Model(&models.Organization{}).Where("id = ?", org.ID).
		Update("stripe_seat_item_id", itemID).Error
}
