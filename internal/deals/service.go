package deals

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
	"github.com/hugh/estateflow/pkg/crypto"
	"gorm.io/gorm"
)

// Notifier sends the client-facing deal emails.
type Notifier interface {
	SendNewDeal(ctx context.Context, deal *models.Deal, agentName, brandColor, link string)
	SendStepUpdate(ctx context.Context, deal *models.Deal, step *models.TimelineStep, brandColor, link string)
}

// FileRemover deletes stored document files when a deal goes away.
type FileRemover interface {
	Delete(ctx context.Context, key string) error
}

type Service struct {
	db          *gorm.DB
	notifier    Notifier
	files       FileRemover
	logger      *slog.Logger
	frontendURL string
	trialLimit  int
	now         func() time.Time
}

type ServiceOptions struct {
	FrontendURL    string
	TrialDealLimit int
	Logger         *slog.Logger
	Now            func() time.Time
}

func NewService(db *gorm.DB, notifier Notifier, files FileRemover, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.TrialDealLimit <= 0 {
		opts.TrialDealLimit = 1
	}
	return &Service{
		db:          db,
		notifier:    notifier,
		files:       files,
		logger:      opts.Logger,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		trialLimit:  opts.TrialDealLimit,
		now:         opts.Now,
	}
}

// PortalLink is the client portal URL for a deal.
func (s *Service) PortalLink(deal *models.Deal) string {
	return s.frontendURL + "/deal/" + deal.AccessToken
}

type ListFilter struct {
	Status     *models.DealStatus
	AssignedTo *uuid.UUID
}

type CreateInput struct {
	ClientName       string
	ClientEmail      string
	PropertyAddress  *string
	PropertyPhotoURL *string
	WelcomeMessage   *string
	TemplateID       *uuid.UUID
}

type UpdateInput struct {
	ClientName       *string
	ClientEmail      *string
	PropertyAddress  *string
	PropertyPhotoURL *string
	WelcomeMessage   *string
	Status           *models.DealStatus
}

type CanCreateResult struct {
	CanCreate    bool   `json:"canCreate"`
	CurrentDeals int64  `json:"currentDeals"`
	Reason       string `json:"reason,omitempty"`
}

type Stats struct {
	TotalDeals     int64 `json:"totalDeals"`
	ActiveDeals    int64 `json:"activeDeals"`
	CompletedDeals int64 `json:"completedDeals"`
}

func withTimeline(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("uploaded_at ASC") }).
		Preload("AssignedToAgent")
}

// List returns the caller's visible deals, most recently updated first.
func (s *Service) List(ctx context.Context, rc auth.RequestContext, filter ListFilter) ([]models.Deal, error) {
	if !rc.HasAccess() {
		return nil, ErrNoAccess
	}

	q := s.db.WithContext(ctx).Model(&models.Deal{}).Scopes(VisibleTo(rc), withTimeline)
	if filter.Status != nil {
		q = q.Where("deals.status = ?", *filter.Status)
	}
	if filter.AssignedTo != nil {
		q = q.Where("deals.assigned_to_agent_id = ?", *filter.AssignedTo)
	}

	var deals []models.Deal
	if err := q.Order("deals.updated_at DESC").Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("listing deals: %w", err)
	}
	return deals, nil
}

// Get loads a deal inside the caller's organization. A deal of another
// organization is ErrNotFound; an unassigned deal seen by an Employee is ErrForbidden.
func (s *Service) Get(ctx context.Context, rc auth.RequestContext, id uuid.UUID) (*models.Deal, error) {
	return s.load(s.db.WithContext(ctx).Scopes(withTimeline), rc, id)
}

func (s *Service) load(db *gorm.DB, rc auth.RequestContext, id uuid.UUID) (*models.Deal, error) {
	if !rc.HasAccess() {
		return nil, ErrNoAccess
	}

	var deal models.Deal
	if err := db.Scopes(InOrganization(rc)).Where("deals.id = ?", id).First(&deal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !rc.IsTeamLeadOrAbove() && !deal.IsAssignedTo(rc.AgentID) {
		return nil, ErrForbidden
	}
	return &deal, nil
}

// CanCreate applies the trial deal limit to organizations without an active subscription.
func (s *Service) CanCreate(ctx context.Context, rc auth.RequestContext) (*CanCreateResult, error) {
	if !rc.HasAccess() {
		return nil, ErrNoAccess
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", rc.OrganizationID).Error; err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Deal{}).Scopes(InOrganization(rc)).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("counting deals: %w", err)
	}

	result := &CanCreateResult{CanCreate: true, CurrentDeals: count}
	if !org.IsSubscriptionActive() && count >= int64(s.trialLimit) {
		result.CanCreate = false
		result.Reason = "Upgrade to Pro to create more deals"
	}
	return result, nil
}

// Create opens a deal in the caller's organization, assigned to the caller.
// Template steps are copied once; later template edits never reach the deal.
func (s *Service) Create(ctx context.Context, rc auth.RequestContext, in CreateInput) (*models.Deal, error) {
	check, err := s.CanCreate(ctx, rc)
	if err != nil {
		return nil, err
	}
	if !check.CanCreate {
		return nil, ErrTrialLimit
	}

	accessToken, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	welcome := in.WelcomeMessage
	if welcome == nil || strings.TrimSpace(*welcome) == "" {
		msg := fmt.Sprintf("Welcome %s, follow the progress of your transaction here.", in.ClientName)
		welcome = &msg
	}

	now := s.now()
	agentID := rc.AgentID
	deal := &models.Deal{
		OrganizationID:    rc.OrganizationID,
		AssignedToAgentID: &agentID,
		CreatedByAgentID:  &agentID,
		ClientName:        strings.TrimSpace(in.ClientName),
		ClientEmail:       auth.NormalizeEmail(in.ClientEmail),
		PropertyAddress:   in.PropertyAddress,
		PropertyPhotoURL:  in.PropertyPhotoURL,
		WelcomeMessage:    welcome,
		Status:            models.DealStatusActive,
		AccessToken:       accessToken,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(deal).Error; err != nil {
			return fmt.Errorf("creating deal: %w", err)
		}
		if in.TemplateID == nil {
			return nil
		}

		var tmpl models.TimelineTemplate
		if err := tx.First(&tmpl, "id = ?", *in.TemplateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTemplateNotFound
			}
			return err
		}
		steps := StepsFromTemplate(deal.ID, tmpl.Steps, now)
		if len(steps) == 0 {
			return nil
		}
		return tx.Create(&steps).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deal created", "deal_id", deal.ID, "org_id", rc.OrganizationID, "agent_id", rc.AgentID)

	agentName, brand := s.sender(ctx, rc)
	s.notifier.SendNewDeal(ctx, deal, agentName, brand, s.PortalLink(deal))

	return s.Get(ctx, rc, deal.ID)
}

// StepsFromTemplate copies template step definitions into new timeline steps,
// filling default thresholds where the template leaves them unset.
func StepsFromTemplate(dealID uuid.UUID, defs []models.TemplateStep, now time.Time) []models.TimelineStep {
	steps := make([]models.TimelineStep, 0, len(defs))
	for _, def := range defs {
		step := models.TimelineStep{
			DealID:                 dealID,
			Title:                  def.Title,
			Status:                 models.StepStatusPending,
			Order:                  def.Order,
			ExpectedDurationDays:   orDefault(def.ExpectedDurationDays, models.DefaultExpectedDurationDays),
			InactivityWarningDays:  orDefault(def.InactivityWarningDays, models.DefaultInactivityWarningDays),
			InactivityCriticalDays: orDefault(def.InactivityCriticalDays, models.DefaultInactivityCriticalDays),
			LastActivityAt:         &now,
		}
		if def.Description != "" {
			desc := def.Description
			step.Description = &desc
		}
		steps = append(steps, step)
	}
	return steps
}

func (s *Service) Update(ctx context.Context, rc auth.RequestContext, id uuid.UUID, in UpdateInput) (*models.Deal, error) {
	deal, err := s.load(s.db.WithContext(ctx), rc, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": s.now()}
	if in.ClientName != nil {
		updates["client_name"] = strings.TrimSpace(*in.ClientName)
	}
	if in.ClientEmail != nil {
		updates["client_email"] = auth.NormalizeEmail(*in.ClientEmail)
	}
	if in.PropertyAddress != nil {
		updates["property_address"] = *in.PropertyAddress
	}
	if in.PropertyPhotoURL != nil {
		updates["property_photo_url"] = *in.PropertyPhotoURL
	}
	if in.WelcomeMessage != nil {
		updates["welcome_message"] = *in.WelcomeMessage
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}

	// organization_id is never part of an update.
	if err := s.db.WithContext(ctx).Model(deal).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating deal: %w", err)
	}
	return s.Get(ctx, rc, id)
}

// Delete removes the deal with its steps, documents and views, then its stored files.
func (s *Service) Delete(ctx context.Context, rc auth.RequestContext, id uuid.UUID) error {
	deal, err := s.load(s.db.WithContext(ctx), rc, id)
	if err != nil {
		return err
	}

	var docs []models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("deal_id = ?", deal.ID).Find(&docs).Error; err != nil {
			return err
		}
		if err := DeleteDealRows(tx, []uuid.UUID{deal.ID}); err != nil {
			return err
		}
		return tx.Delete(&models.Deal{}, "id = ?", deal.ID).Error
	})
	if err != nil {
		return fmt.Errorf("deleting deal: %w", err)
	}

	for _, doc := range docs {
		for _, key := range DocumentKeys(&doc) {
			if err := s.files.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete stored file", "deal_id", deal.ID, "key", key, "error", err)
			}
		}
	}

	s.logger.Info("deal deleted", "deal_id", deal.ID, "org_id", rc.OrganizationID)
	return nil
}

// DeleteDealRows removes the child rows of the given deals.
func DeleteDealRows(tx *gorm.DB, dealIDs []uuid.UUID) error {
	if len(dealIDs) == 0 {
		return nil
	}
	if err := tx.Where("deal_id IN ?", dealIDs).Delete(&models.DealView{}).Error; err != nil {
		return err
	}
	if err := tx.Where("deal_id IN ?", dealIDs).Delete(&models.Document{}).Error; err != nil {
		return err
	}
	return tx.Where("deal_id IN ?", dealIDs).Delete(&models.TimelineStep{}).Error
}

// DocumentKeys lists the storage keys held by a document.
func DocumentKeys(doc *models.Document) []string {
	keys := []string{doc.FilePath}
	if doc.SignedFilePath != nil && *doc.SignedFilePath != "" {
		keys = append(keys, *doc.SignedFilePath)
	}
	return keys
}

func (s *Service) Stats(ctx context.Context, rc auth.RequestContext) (*Stats, error) {
	if !rc.HasAccess() {
		return nil, ErrNoAccess
	}

	type row struct {
		Status models.DealStatus
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Deal{}).
		Scopes(VisibleTo(rc)).
		Select("deals.status AS status, COUNT(*) AS count").
		Group("deals.status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting deals: %w", err)
	}

	stats := &Stats{}
	for _, r := range rows {
		stats.TotalDeals += r.Count
		switch r.Status {
		case models.DealStatusActive:
			stats.ActiveDeals += r.Count
		case models.DealStatusCompleted:
			stats.CompletedDeals += r.Count
		case models.DealStatusArchived:
		}
	}
	return stats, nil
}

// sender resolves the display name and brand color used on client emails.
func (s *Service) sender(ctx context.Context, rc auth.RequestContext) (string, string) {
	var agent models.Agent
	name := ""
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", rc.AgentID).Error; err == nil {
		name = agent.DisplayName()
	}

	var org models.Organization
	brand := models.DefaultBrandColor
	if err := s.db.WithContext(ctx).First(&org, "id = ?", rc.OrganizationID).Error; err == nil && org.BrandColor != "" {
		brand = org.BrandColor
	}
	return name, brand
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
