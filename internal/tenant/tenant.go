// Package tenant creates organizations and their first admin membership.
package tenant

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/gorm"
)

// PersonalName is the name given to the organization created for a lone agent.
func PersonalName(agent *models.Agent) string {
	return agent.DisplayName() + "'s Agency"
}

// UniqueSlug derives a slug from name that no other organization uses.
// exclude is skipped when checking, so an organization can keep its own slug on rename.
func UniqueSlug(tx *gorm.DB, name string, exclude uuid.UUID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "agency"
	}

	candidate := base
	for i := 2; i < 1000; i++ {
		var count int64
		if err := tx.Model(&models.Organization{}).
			Where("slug = ? AND id <> ?", candidate, exclude).
			Count(&count).Error; err != nil {
			return "", fmt.Errorf("checking slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// ProvisionPersonal creates an organization for agent, copying its brand and
// billing fields, and makes the agent its admin. Both rows are stamped with at.
func ProvisionPersonal(tx *gorm.DB, agent *models.Agent, at time.Time) (*models.Organization, *models.OrganizationMember, error) {
	name := PersonalName(agent)
	orgSlug, err := UniqueSlug(tx, name, uuid.Nil)
	if err != nil {
		return nil, nil, err
	}

	brand := agent.BrandColor
	if brand == "" {
		brand = models.DefaultBrandColor
	}
	status := agent.SubscriptionStatus
	if status == "" {
		status = models.SubscriptionTrial
	}

	org := &models.Organization{
		Base:                 models.Base{CreatedAt: at, UpdatedAt: at},
		Name:                 name,
		Slug:                 orgSlug,
		BrandColor:           brand,
		LogoURL:              agent.LogoURL,
		SubscriptionStatus:   status,
		StripeCustomerID:     agent.StripeCustomerID,
		StripeSubscriptionID: agent.StripeSubscriptionID,
	}
	if err := tx.Create(org).Error; err != nil {
		return nil, nil, fmt.Errorf("creating organization: %w", err)
	}

	member := &models.OrganizationMember{
		OrganizationID: org.ID,
		AgentID:        agent.ID,
		Role:           models.RoleAdmin,
		JoinedAt:       at,
	}
	if err := tx.Create(member).Error; err != nil {
		return nil, nil, fmt.Errorf("creating admin membership: %w", err)
	}

	return org, member, nil
}

// CurrentMembership returns the agent's most recently joined membership, or nil.
func CurrentMembership(tx *gorm.DB, agentID uuid.UUID) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	err := tx.Where("agent_id = ?", agentID).
		Order("joined_at DESC").
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Admin returns the admin membership of an organization.
func Admin(tx *gorm.DB, orgID uuid.UUID) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	if err := tx.Preload("Agent").
		Where("organization_id = ? AND role = ?", orgID, models.RoleAdmin).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}
