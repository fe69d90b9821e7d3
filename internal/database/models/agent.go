package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultBrandColor = "#1a1a2e"

type Agent struct {
	Base
	Email       string            `gorm:"uniqueIndex;not null" json:"email"`
	FullName    *string           `json:"fullName,omitempty"`
	Phone       *string           `json:"phone,omitempty"`
	PhotoURL    *string           `json:"photoUrl,omitempty"`
	BrandColor  string            `gorm:"default:'#1a1a2e'" json:"brandColor"`
	LogoURL     *string           `json:"logoUrl,omitempty"`
	SocialLinks datatypes.JSONMap `json:"socialLinks,omitempty"`

	// Single-tenant billing fields, kept for the organization backfill and
	// for discovering an organization's customer through its admin.
	SubscriptionStatus   SubscriptionStatus `gorm:"not null;default:'Trial'" json:"subscriptionStatus"`
	StripeCustomerID     *string            `json:"-"`
	StripeSubscriptionID *string            `json:"-"`

	MagicLinks []MagicLink `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Agent) TableName() string {
	return "agents"
}

// DisplayName returns the full name, or the email when no name is set.
func (a *Agent) DisplayName() string {
	if a.FullName != nil && *a.FullName != "" {
		return *a.FullName
	}
	return a.Email
}

// MagicLink is a single-use passwordless login token. Only its hash is stored.
type MagicLink struct {
	Base
	AgentID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"agentId"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`

	Agent *Agent `gorm:"foreignKey:AgentID" json:"-"`
}

func (MagicLink) TableName() string {
	return "magic_links"
}
