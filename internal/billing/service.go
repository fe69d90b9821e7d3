package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/metrics"
	"github.com/hugh/estateflow/internal/tenant"
	"github.com/hugh/estateflow/pkg/config"
	"gorm.io/gorm"
)

const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"

	monthlyBasePrice = 49.0
	yearlyBasePrice  = 470.0
)

var (
	ErrNotConfigured        = errors.New("stripe not configured")
	ErrPriceNotConfigured   = errors.New("price not configured for selected plan")
	ErrNoCustomer           = errors.New("no subscription found")
	ErrOrganizationNotFound = errors.New("organization not found")
)

type Service struct {
	db          *gorm.DB
	provider    Provider
	cfg         config.BillingConfig
	frontendURL string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type ServiceOptions struct {
	FrontendURL string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func NewService(db *gorm.DB, provider Provider, cfg config.BillingConfig, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:          db,
		provider:    provider,
		cfg:         cfg,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

func (s *Service) configured() bool {
	return s.provider != nil && strings.HasPrefix(s.cfg.SecretKey, "sk_")
}

// MapStatus converts a Stripe subscription status. Unknown values keep current.
func MapStatus(remote string, current models.SubscriptionStatus) models.SubscriptionStatus {
	switch remote {
	case "active", "past_due":
		return models.SubscriptionActive
	case "trialing":
		return models.SubscriptionTrial
	case "canceled":
		return models.SubscriptionCancelled
	case "unpaid":
		return models.SubscriptionExpired
	default:
		return current
	}
}

func (s *Service) organization(ctx context.Context, rc auth.RequestContext) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", rc.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

// customerFor returns the organization's customer id, falling back to the
// admin's legacy customer.
func (s *Service) customerFor(ctx context.Context, org *models.Organization) (string, *models.Agent, error) {
	admin, err := tenant.Admin(s.db.WithContext(ctx), org.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, err
	}
	var agent *models.Agent
	if admin != nil {
		agent = admin.Agent
	}

	if org.StripeCustomerID != nil && *org.StripeCustomerID != "" {
		return *org.StripeCustomerID, agent, nil
	}
	if agent != nil && agent.StripeCustomerID != nil && *agent.StripeCustomerID != "" {
		return *agent.StripeCustomerID, agent, nil
	}
	return "", agent, nil
}

// Checkout starts a Stripe Checkout session for the organization's base plan.
func (s *Service) Checkout(ctx context.Context, rc auth.RequestContext, plan string) (*Session, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}

	plan = strings.ToLower(strings.TrimSpace(plan))
	priceID := s.cfg.MonthlyPriceID
	if plan == PlanYearly {
		priceID = s.cfg.YearlyPriceID
	} else {
		plan = PlanMonthly
	}
	if priceID == "" {
		return nil, ErrPriceNotConfigured
	}

	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}
	customerID, _, err := s.customerFor(ctx, org)
	if err != nil {
		return nil, err
	}

	if customerID == "" {
		var agent models.Agent
		if err := s.db.WithContext(ctx).First(&agent, "id = ?", rc.AgentID).Error; err != nil {
			return nil, fmt.Errorf("loading agent: %w", err)
		}
		customer, err := s.provider.CreateCustomer(ctx, agent.Email, org.Name, map[string]string{
			"agent_id": agent.ID.String(),
			"org_id":   org.ID.String(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating customer: %w", err)
		}
		customerID = customer.ID
		if err := s.db.WithContext(ctx).Model(org).Update("stripe_customer_id", customerID).Error; err != nil {
			return nil, fmt.Errorf("saving customer: %w", err)
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.frontendURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/dashboard/subscription",
		Metadata: map[string]string{
			"agent_id": rc.AgentID.String(),
			"org_id":   org.ID.String(),
			"plan":     plan,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	return session, nil
}

type SubscriptionInfo struct {
	Status             string     `json:"status"`
	Plan               *string    `json:"plan"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	SeatCount          int64      `json:"seatCount"`
	SeatUnitPrice      float64    `json:"seatUnitPrice"`
	BasePrice          float64    `json:"basePrice"`
	TotalMonthlyAmount float64    `json:"totalMonthlyAmount"`
}

// Subscription describes the organization's plan. Provider errors fall back
// to the locally stored status.
func (s *Service) Subscription(ctx context.Context, rc auth.RequestContext) (*SubscriptionInfo, error) {
	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}

	local := &SubscriptionInfo{
		Status:        strings.ToLower(string(org.SubscriptionStatus)),
		SeatUnitPrice: s.cfg.SeatUnitPrice,
		BasePrice:     monthlyBasePrice,
	}
	if org.StripeSubscriptionID == nil || *org.StripeSubscriptionID == "" || !s.configured() {
		return local, nil
	}

	sub, err := s.provider.GetSubscription(ctx, *org.StripeSubscriptionID)
	if err != nil {
		s.logger.Error("failed to fetch subscription", "org_id", org.ID, "error", err)
		return local, nil
	}

	info := &SubscriptionInfo{
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		SeatUnitPrice:     s.cfg.SeatUnitPrice,
		BasePrice:         monthlyBasePrice,
	}
	if end := sub.PeriodEnd(); end != 0 {
		t := time.Unix(end, 0).UTC()
		info.CurrentPeriodEnd = &t
	}
	for _, item := range sub.Items.Data {
		switch item.Price.ID {
		case s.cfg.MonthlyPriceID:
			plan := PlanMonthly
			info.Plan = &plan
			info.BasePrice = monthlyBasePrice
		case s.cfg.YearlyPriceID:
			plan := PlanYearly
			info.Plan = &plan
			info.BasePrice = yearlyBasePrice / 12
		case s.cfg.SeatPriceID:
			info.SeatCount = item.Quantity
			if item.Price.UnitAmount > 0 {
				info.SeatUnitPrice = float64(item.Price.UnitAmount) / 100
			}
		}
	}
	info.TotalMonthlyAmount = info.BasePrice + float64(info.SeatCount)*info.SeatUnitPrice
	return info, nil
}

func (s *Service) Portal(ctx context.Context, rc auth.RequestContext) (*Session, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}
	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}
	customerID, _, err := s.customerFor(ctx, org)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrNoCustomer
	}
	session, err := s.provider.CreatePortalSession(ctx, customerID, s.frontendURL+"/dashboard/subscription")
	if err != nil {
		return nil, fmt.Errorf("creating portal session: %w", err)
	}
	return session, nil
}

type SyncResult struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Sync pulls the customer's latest subscription and stores its status.
func (s *Service) Sync(ctx context.Context, rc auth.RequestContext) (*SyncResult, error) {
	if !s.configured() {
		return nil, ErrNotConfigured
	}
	org, err := s.organization(ctx, rc)
	if err != nil {
		return nil, err
	}
	customerID, _, err := s.customerFor(ctx, org)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return &SyncResult{Message: "No Stripe customer found", Status: "trial"}, nil
	}

	sub, err := s.provider.LatestSubscription(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("syncing subscription: %w", err)
	}
	if sub == nil {
		return &SyncResult{Message: "No active subscription found", Status: "trial"}, nil
	}

	status := MapStatus(sub.Status, org.SubscriptionStatus)
	if err := s.db.WithContext(ctx).Model(org).Updates(map[string]interface{}{
		"subscription_status":    status,
		"stripe_subscription_id": sub.ID,
		"stripe_customer_id":     customerID,
	}).Error; err != nil {
		return nil, fmt.Errorf("saving subscription: %w", err)
	}

	s.logger.Info("subscription synced", "org_id", org.ID, "status", sub.Status)
	return &SyncResult{Message: "Subscription synced", Status: sub.Status}, nil
}

// orgForAgentAdmin finds the organization the agent administers.
func (s *Service) orgForAgentAdmin(ctx context.Context, agentID uuid.UUID) (*models.Organization, error) {
	var member models.OrganizationMember
	err := s.db.WithContext(ctx).Preload("Organization").
		Where("agent_id = ? AND role = ?", agentID, models.RoleAdmin).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return member.Organization, nil
}
