package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/datatypes"
)

// ProfileInput holds the agent-editable profile fields; nil leaves a field unchanged.
type ProfileInput struct {
	FullName    *string
	Phone       *string
	PhotoURL    *string
	BrandColor  *string
	LogoURL     *string
	SocialLinks map[string]interface{}
}

// UpdateProfile changes the agent's own profile. The brand color here is the
// agent's fallback; the organization brand wins on client-facing pages.
func (s *Service) UpdateProfile(ctx context.Context, agentID uuid.UUID, in ProfileInput) (*models.Agent, error) {
	agent, err := s.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": s.now()}
	if in.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.PhotoURL != nil {
		updates["photo_url"] = *in.PhotoURL
	}
	if in.BrandColor != nil {
		updates["brand_color"] = *in.BrandColor
	}
	if in.LogoURL != nil {
		updates["logo_url"] = *in.LogoURL
	}
	if in.SocialLinks != nil {
		updates["social_links"] = datatypes.JSONMap(in.SocialLinks)
	}

	if err := s.db.WithContext(ctx).Model(agent).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return s.GetAgentByID(ctx, agentID)
}
