package organization

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

type TeamDealFilter struct {
	AssignedTo *uuid.UUID
	Status     *models.DealStatus
}

// TeamDeals lists every deal of the organization, most recently updated first.
func (s *Service) TeamDeals(ctx context.Context, rc auth.RequestContext, filter TeamDealFilter) ([]models.Deal, error) {
	if !rc.IsTeamLeadOrAbove() {
		return nil, deals.ErrNoAccess
	}
	q := s.db.WithContext(ctx).
		Preload("AssignedToAgent").
		Scopes(deals.InOrganization(rc))
	if filter.AssignedTo != nil {
		q = q.Where("deals.assigned_to_agent_id = ?", *filter.AssignedTo)
	}
	if filter.Status != nil {
		q = q.Where("deals.status = ?", *filter.Status)
	}

	var list []models.Deal
	if err := q.Order("deals.updated_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("listing team deals: %w", err)
	}
	return list, nil
}

type TeamStats struct {
	TotalDeals         int64 `json:"totalDeals"`
	ActiveDeals        int64 `json:"activeDeals"`
	CompletedThisMonth int64 `json:"completedThisMonth"`
	MemberCount        int64 `json:"memberCount"`
}

func (s *Service) TeamStats(ctx context.Context, rc auth.RequestContext) (*TeamStats, error) {
	if !rc.IsTeamLeadOrAbove() {
		return nil, deals.ErrNoAccess
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &TeamStats{}
	if err := db.Model(&models.Deal{}).Scopes(deals.InOrganization(rc)).
		Count(&stats.TotalDeals).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Deal{}).Scopes(deals.InOrganization(rc)).
		Where("deals.status = ?", models.DealStatusActive).
		Count(&stats.ActiveDeals).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Deal{}).Scopes(deals.InOrganization(rc)).
		Where("deals.status = ? AND deals.updated_at >= ?", models.DealStatusCompleted, monthStart).
		Count(&stats.CompletedThisMonth).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.OrganizationMember{}).
		Where("organization_id = ?", rc.OrganizationID).
		Count(&stats.MemberCount).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// AssignDeal hands a deal of the organization to one of its members.
func (s *Service) AssignDeal(ctx context.Context, rc auth.RequestContext, dealID, agentID uuid.UUID) error {
	if !rc.IsTeamLeadOrAbove() {
		return deals.ErrNoAccess
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deal models.Deal
		if err := tx.Scopes(deals.InOrganization(rc)).Where("deals.id = ?", dealID).First(&deal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return deals.ErrNotFound
			}
			return err
		}
		if _, err := s.member(tx, rc.OrganizationID, agentID); err != nil {
			if errors.Is(err, ErrMemberNotFound) {
				return ErrNotMember
			}
			return err
		}

		if err := tx.Model(&deal).Updates(map[string]interface{}{
			"assigned_to_agent_id": agentID,
			"updated_at":           s.now(),
		}).Error; err != nil {
			return fmt.Errorf("assigning deal: %w", err)
		}
		s.logger.Info("deal assigned", "deal_id", deal.ID, "agent_id", agentID)
		return nil
	})
}
