package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
	"gorm.io/gorm"
)

var ErrMemberNotFound = errors.New("member not found")

// Service loads the deals in scope and hands them to the engine.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{db: db, now: now}
}

func (s *Service) load(ctx context.Context, rc auth.RequestContext, assignee *uuid.UUID) ([]models.Deal, error) {
	q := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Preload("AssignedToAgent").
		Scopes(deals.InOrganization(rc))
	if assignee != nil {
		q = q.Where("deals.assigned_to_agent_id = ?", *assignee)
	}

	var list []models.Deal
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("loading dashboard deals: %w", err)
	}
	return list, nil
}

// Agent is the caller's own dashboard over the deals assigned to them in
// their current organization.
func (s *Service) Agent(ctx context.Context, rc auth.RequestContext) (*AgentDashboard, error) {
	if !rc.HasAccess() {
		return nil, deals.ErrNoAccess
	}
	list, err := s.load(ctx, rc, &rc.AgentID)
	if err != nil {
		return nil, err
	}
	return BuildAgent(list, s.now()), nil
}

// Member lets a TeamLead or Admin drill into one member's dashboard.
func (s *Service) Member(ctx context.Context, rc auth.RequestContext, agentID uuid.UUID) (*AgentDashboard, error) {
	if !rc.IsTeamLeadOrAbove() {
		return nil, deals.ErrNoAccess
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.OrganizationMember{}).
		Where("organization_id = ? AND agent_id = ?", rc.OrganizationID, agentID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrMemberNotFound
	}

	list, err := s.load(ctx, rc, &agentID)
	if err != nil {
		return nil, err
	}
	return BuildAgent(list, s.now()), nil
}

// Organization is the team-wide dashboard with a per-member breakdown.
func (s *Service) Organization(ctx context.Context, rc auth.RequestContext) (*OrganizationDashboard, error) {
	if !rc.IsTeamLeadOrAbove() {
		return nil, deals.ErrNoAccess
	}
	list, err := s.load(ctx, rc, nil)
	if err != nil {
		return nil, err
	}

	var members []models.OrganizationMember
	if err := s.db.WithContext(ctx).Preload("Agent").
		Where("organization_id = ?", rc.OrganizationID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("loading members: %w", err)
	}
	return BuildOrganization(list, members, s.now()), nil
}
