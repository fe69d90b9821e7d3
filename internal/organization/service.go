// Package organization manages an organization's settings, its members and
// the invitation lifecycle that adds them.
package organization

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
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/tenant"
	"gorm.io/gorm"
)

const DefaultInvitationExpiry = 7 * 24 * time.Hour

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrNotAdmin             = errors.New("admin role required")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrChangeOwnRole        = errors.New("cannot change your own role")
	ErrChangeAdminRole      = errors.New("cannot change admin role, use transfer-admin instead")
	ErrPromoteToAdmin       = errors.New("cannot promote to admin, use transfer-admin instead")
	ErrRemoveSelf           = errors.New("cannot remove yourself from the organization")
	ErrRemoveAdmin          = errors.New("cannot remove the admin")
	ErrAlreadyAdmin         = errors.New("already admin")
	ErrNotMember            = errors.New("agent is not a member of this organization")
)

// Seats adjusts the billed seat count. AddSeat failures must abort the caller.
type Seats interface {
	AddSeat(ctx context.Context, org *models.Organization, idempotencyKey string) error
	RemoveSeat(ctx context.Context, org *models.Organization, idempotencyKey string)
}

// TokenIssuer signs a login token bound to one membership.
type TokenIssuer interface {
	TokenForMembership(agent *models.Agent, member *models.OrganizationMember) (string, error)
}

type Notifier interface {
	SendInvitation(ctx context.Context, inv *models.Invitation, orgName, inviterName, brandColor, link string)
}

type Service struct {
	db          *gorm.DB
	seats       Seats
	tokens      TokenIssuer
	notifier    Notifier
	logger      *slog.Logger
	frontendURL string
	expiry      time.Duration
	now         func() time.Time
}

type ServiceOptions struct {
	FrontendURL      string
	InvitationExpiry time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

func NewService(db *gorm.DB, seats Seats, tokens TokenIssuer, notifier Notifier, opts ServiceOptions) *Service {
	if opts.InvitationExpiry <= 0 {
		opts.InvitationExpiry = DefaultInvitationExpiry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:          db,
		seats:       seats,
		tokens:      tokens,
		notifier:    notifier,
		logger:      opts.Logger,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		expiry:      opts.InvitationExpiry,
		now:         opts.Now,
	}
}

type Info struct {
	ID                 uuid.UUID                 `json:"id"`
	Name               string                    `json:"name"`
	Slug               string                    `json:"slug"`
	BrandColor         string                    `json:"brandColor"`
	LogoURL            *string                   `json:"logoUrl"`
	SubscriptionStatus models.SubscriptionStatus `json:"subscriptionStatus"`
	MemberCount        int64                     `json:"memberCount"`
}

func (s *Service) load(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *Service) info(ctx context.Context, org *models.Organization) (*Info, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.OrganizationMember{}).
		Where("organization_id = ?", org.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	return &Info{
		ID:                 org.ID,
		Name:               org.Name,
		Slug:               org.Slug,
		BrandColor:         org.BrandColor,
		LogoURL:            org.LogoURL,
		SubscriptionStatus: org.SubscriptionStatus,
		MemberCount:        count,
	}, nil
}

func (s *Service) Get(ctx context.Context, rc auth.RequestContext) (*Info, error) {
	org, err := s.load(ctx, rc.OrganizationID)
	if err != nil {
		return nil, err
	}
	return s.info(ctx, org)
}

type UpdateInput struct {
	Name       *string
	BrandColor *string
	LogoURL    *string
}

// Update changes brand settings. A rename also re-derives the slug.
func (s *Service) Update(ctx context.Context, rc auth.RequestContext, in UpdateInput) (*Info, error) {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return nil, err
	}

	var org *models.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found models.Organization
		if err := tx.First(&found, "id = ?", rc.OrganizationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrganizationNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		if in.Name != nil && strings.TrimSpace(*in.Name) != "" && *in.Name != found.Name {
			name := strings.TrimSpace(*in.Name)
			orgSlug, err := tenant.UniqueSlug(tx, name, found.ID)
			if err != nil {
				return err
			}
			updates["name"] = name
			updates["slug"] = orgSlug
		}
		if in.BrandColor != nil {
			updates["brand_color"] = *in.BrandColor
		}
		if in.LogoURL != nil {
			updates["logo_url"] = in.LogoURL
		}
		if len(updates) > 0 {
			if err := tx.Model(&found).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := tx.First(&found, "id = ?", found.ID).Error; err != nil {
			return err
		}
		org = &found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.info(ctx, org)
}

type MemberInfo struct {
	AgentID     uuid.UUID   `json:"agentId"`
	Email       string      `json:"email"`
	FullName    *string     `json:"fullName"`
	PhotoURL    *string     `json:"photoUrl"`
	Role        models.Role `json:"role"`
	ActiveDeals int64       `json:"activeDeals"`
	JoinedAt    time.Time   `json:"joinedAt"`
}

// Members lists the organization's members with their active deal counts.
func (s *Service) Members(ctx context.Context, rc auth.RequestContext) ([]MemberInfo, error) {
	if !rc.HasAccess() {
		return nil, deals.ErrNoAccess
	}
	db := s.db.WithContext(ctx)

	var members []models.OrganizationMember
	if err := db.Preload("Agent").
		Where("organization_id = ?", rc.OrganizationID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}

	type countRow struct {
		AgentID uuid.UUID
		Total   int64
	}
	var rows []countRow
	if err := db.Model(&models.Deal{}).
		Select("assigned_to_agent_id AS agent_id, COUNT(*) AS total").
		Where("organization_id = ? AND status = ?", rc.OrganizationID, models.DealStatusActive).
		Group("assigned_to_agent_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		active[r.AgentID] = r.Total
	}

	out := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		info := MemberInfo{
			AgentID:     m.AgentID,
			Role:        m.Role,
			ActiveDeals: active[m.AgentID],
			JoinedAt:    m.JoinedAt,
		}
		if m.Agent != nil {
			info.Email = m.Agent.Email
			info.FullName = m.Agent.FullName
			info.PhotoURL = m.Agent.PhotoURL
		}
		out = append(out, info)
	}
	return out, nil
}

// requireAdmin re-reads the caller's role so a token issued before an admin
// transfer cannot keep admin rights.
func (s *Service) requireAdmin(ctx context.Context, rc auth.RequestContext) (*models.OrganizationMember, error) {
	if !rc.IsAdmin() {
		return nil, ErrNotAdmin
	}
	var member models.OrganizationMember
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND agent_id = ?", rc.OrganizationID, rc.AgentID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAdmin
		}
		return nil, err
	}
	if member.Role != models.RoleAdmin {
		return nil, ErrNotAdmin
	}
	return &member, nil
}

func (s *Service) member(tx *gorm.DB, orgID, agentID uuid.UUID) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	if err := tx.Where("organization_id = ? AND agent_id = ?", orgID, agentID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// ChangeRole moves a non-admin member between TeamLead and Employee.
func (s *Service) ChangeRole(ctx context.Context, rc auth.RequestContext, agentID uuid.UUID, role string) error {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return err
	}
	if agentID == rc.AgentID {
		return ErrChangeOwnRole
	}

	member, err := s.member(s.db.WithContext(ctx), rc.OrganizationID, agentID)
	if err != nil {
		return err
	}
	if member.Role == models.RoleAdmin {
		return ErrChangeAdminRole
	}
	newRole, ok := models.ParseRole(role)
	if !ok {
		return ErrInvalidRole
	}
	if newRole == models.RoleAdmin {
		return ErrPromoteToAdmin
	}

	if err := s.db.WithContext(ctx).Model(member).Update("role", newRole).Error; err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	s.logger.Info("member role changed", "org_id", rc.OrganizationID, "agent_id", agentID, "role", newRole)
	return nil
}

// RemoveMember hands the member's deals to the admin, deletes the membership
// and then releases the seat. Seat release failures never block removal.
func (s *Service) RemoveMember(ctx context.Context, rc auth.RequestContext, agentID uuid.UUID) error {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return err
	}
	if agentID == rc.AgentID {
		return ErrRemoveSelf
	}

	now := s.now()
	var org models.Organization
	var memberID uuid.UUID
	var reassigned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.member(tx, rc.OrganizationID, agentID)
		if err != nil {
			return err
		}
		memberID = member.ID
		if member.Role == models.RoleAdmin {
			return ErrRemoveAdmin
		}
		if err := tx.First(&org, "id = ?", rc.OrganizationID).Error; err != nil {
			return err
		}

		admin, err := tenant.Admin(tx, rc.OrganizationID)
		if err != nil {
			return fmt.Errorf("finding admin: %w", err)
		}
		res := tx.Model(&models.Deal{}).
			Where("organization_id = ? AND assigned_to_agent_id = ?", rc.OrganizationID, agentID).
			Updates(map[string]interface{}{
				"assigned_to_agent_id": admin.AgentID,
				"updated_at":           now,
			})
		if res.Error != nil {
			return fmt.Errorf("reassigning deals: %w", res.Error)
		}
		reassigned = res.RowsAffected

		return tx.Delete(member).Error
	})
	if err != nil {
		return err
	}

	// Keyed on the membership row: an agent removed, re-invited and removed
	// again must release a second seat.
	s.seats.RemoveSeat(ctx, &org, seatKey("remove", org.ID, memberID))
	s.logger.Info("member removed", "org_id", org.ID, "agent_id", agentID, "deals_reassigned", reassigned)
	return nil
}

// TransferAdmin demotes the caller to TeamLead and promotes the target in one
// transaction. It returns a fresh token for the caller's new role.
func (s *Service) TransferAdmin(ctx context.Context, rc auth.RequestContext, newAdminID uuid.UUID) (string, error) {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return "", err
	}
	if newAdminID == rc.AgentID {
		return "", ErrAlreadyAdmin
	}

	var current *models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.member(tx, rc.OrganizationID, newAdminID)
		if err != nil {
			return err
		}
		if target.Role == models.RoleAdmin {
			return ErrAlreadyAdmin
		}
		current, err = s.member(tx, rc.OrganizationID, rc.AgentID)
		if err != nil {
			return err
		}

		res := tx.Model(&models.OrganizationMember{}).
			Where("id = ? AND role = ?", current.ID, models.RoleAdmin).
			Update("role", models.RoleTeamLead)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotAdmin
		}
		current.Role = models.RoleTeamLead
		return tx.Model(target).Update("role", models.RoleAdmin).Error
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("admin transferred", "org_id", rc.OrganizationID, "from", rc.AgentID, "to", newAdminID)

	var agent models.Agent
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", rc.AgentID).Error; err != nil {
		return "", fmt.Errorf("loading agent: %w", err)
	}
	return s.tokens.TokenForMembership(&agent, current)
}
