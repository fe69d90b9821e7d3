package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	Base
	Name                 string             `gorm:"not null" json:"name"`
	Slug                 string             `gorm:"uniqueIndex;not null" json:"slug"`
	BrandColor           string             `gorm:"default:'#1a1a2e'" json:"brandColor"`
	LogoURL              *string            `json:"logoUrl,omitempty"`
	SubscriptionStatus   SubscriptionStatus `gorm:"not null;default:'Trial'" json:"subscriptionStatus"`
	StripeCustomerID     *string            `json:"-"`
	StripeSubscriptionID *string            `json:"-"`
	StripeSeatItemID     *string            `json:"-"`

	// Relationships
	Members     []OrganizationMember `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	Deals       []Deal               `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	Invitations []Invitation         `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

func (o *Organization) IsSubscriptionActive() bool {
	return o.SubscriptionStatus == SubscriptionActive
}

// OrganizationMember joins an agent to an organization with a role.
// Exactly one member per organization holds RoleAdmin.
type OrganizationMember struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"organizationId"`
	AgentID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member;index" json:"agentId"`
	Role           Role      `gorm:"not null;default:'Employee'" json:"role"`
	JoinedAt       time.Time `gorm:"not null" json:"joinedAt"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
	Agent        *Agent        `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE" json:"agent,omitempty"`
}

func (OrganizationMember) TableName() string {
	return "organization_members"
}

// Invitation is pending while AcceptedAt is nil and ExpiresAt is in the future.
// Expiry is evaluated at read time and never written back.
type Invitation struct {
	Base
	OrganizationID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"organizationId"`
	Email            string     `gorm:"not null;index" json:"email"`
	Role             Role       `gorm:"not null;default:'Employee'" json:"role"`
	TokenHash        string     `gorm:"uniqueIndex;not null" json:"-"`
	InvitedByAgentID *uuid.UUID `gorm:"type:uuid" json:"invitedByAgentId,omitempty"`
	ExpiresAt        time.Time  `gorm:"not null" json:"expiresAt"`
	AcceptedAt       *time.Time `json:"acceptedAt,omitempty"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) IsPending(now time.Time) bool {
	return i.AcceptedAt == nil && i.ExpiresAt.After(now)
}
