package organization

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrAlreadyMember        = errors.New("this email is already a member of your organization")
	ErrInvitationPending    = errors.New("an invitation is already pending for this email")
	ErrCannotInviteAdmin    = errors.New("cannot invite as admin")
	ErrSubscriptionRequired = errors.New("subscription required to invite team members")
	ErrSeatUnavailable      = errors.New("failed to add seat to subscription")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvitationAccepted   = errors.New("invitation already accepted")
	ErrInvalidInvitation    = errors.New("invalid or expired invitation")
	ErrFullNameRequired     = errors.New("full name is required for new users")
	ErrAlreadyInOrg         = errors.New("already a member of this organization")
)

// Invite creates a pending invitation after billing one more seat. No row is
// written when the seat cannot be added.
func (s *Service) Invite(ctx context.Context, rc auth.RequestContext, email, role string) (*models.Invitation, error) {
	inviter, err := s.requireAdmin(ctx, rc)
	if err != nil {
		return nil, err
	}

	email = auth.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	org, err := s.load(ctx, rc.OrganizationID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	db := s.db.WithContext(ctx)

	var members int64
	if err := db.Model(&models.OrganizationMember{}).
		Joins("JOIN agents ON agents.id = organization_members.agent_id").
		Where("organization_members.organization_id = ? AND agents.email = ?", org.ID, email).
		Count(&members).Error; err != nil {
		return nil, err
	}
	if members > 0 {
		return nil, ErrAlreadyMember
	}

	var pending int64
	if err := db.Model(&models.Invitation{}).
		Where("organization_id = ? AND email = ? AND accepted_at IS NULL AND expires_at > ?", org.ID, email, now).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrInvitationPending
	}

	invRole, ok := models.ParseRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}
	if invRole == models.RoleAdmin {
		return nil, ErrCannotInviteAdmin
	}
	if !org.IsSubscriptionActive() {
		return nil, ErrSubscriptionRequired
	}

	token, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating invitation token: %w", err)
	}

	inv := &models.Invitation{
		Base:             models.Base{ID: uuid.New()},
		OrganizationID:   org.ID,
		Email:            email,
		Role:             invRole,
		TokenHash:        crypto.HashToken(token),
		InvitedByAgentID: &inviter.AgentID,
		ExpiresAt:        now.Add(s.expiry),
	}

	if err := s.seats.AddSeat(ctx, org, seatKey("add", org.ID, inv.ID)); err != nil {
		s.logger.Error("seat add failed, invitation not created", "org_id", org.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSeatUnavailable, err)
	}

	if err := db.Create(inv).Error; err != nil {
		s.seats.RemoveSeat(ctx, org, seatKey("release", org.ID, inv.ID))
		return nil, fmt.Errorf("creating invitation: %w", err)
	}
	s.logger.Info("invitation created", "org_id", org.ID, "invitation_id", inv.ID, "role", invRole)

	inviterName := ""
	var agent models.Agent
	if err := db.First(&agent, "id = ?", inviter.AgentID).Error; err == nil {
		inviterName = agent.DisplayName()
	}
	link := s.frontendURL + "/invite/" + url.PathEscape(token)
	s.notifier.SendInvitation(ctx, inv, org.Name, inviterName, org.BrandColor, link)
	return inv, nil
}

// seatKey scopes a billing idempotency key to one invitation or one
// membership row, never to an agent.
func seatKey(op string, orgID, refID uuid.UUID) string {
	return fmt.Sprintf("seat-%s-%s-%s", op, orgID, refID)
}

// Invitations lists the organization's pending invitations, newest first.
func (s *Service) Invitations(ctx context.Context, rc auth.RequestContext) ([]models.Invitation, error) {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return nil, err
	}
	var invs []models.Invitation
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND accepted_at IS NULL AND expires_at > ?", rc.OrganizationID, s.now()).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

// CancelInvitation releases the invitation's seat and deletes it.
func (s *Service) CancelInvitation(ctx context.Context, rc auth.RequestContext, id uuid.UUID) error {
	if _, err := s.requireAdmin(ctx, rc); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	var inv models.Invitation
	if err := db.Where("id = ? AND organization_id = ?", id, rc.OrganizationID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationNotFound
		}
		return err
	}
	if inv.AcceptedAt != nil {
		return ErrInvitationAccepted
	}

	org, err := s.load(ctx, rc.OrganizationID)
	if err != nil {
		return err
	}
	s.seats.RemoveSeat(ctx, org, seatKey("remove", org.ID, inv.ID))

	if err := db.Delete(&inv).Error; err != nil {
		return fmt.Errorf("deleting invitation: %w", err)
	}
	s.logger.Info("invitation cancelled", "org_id", org.ID, "invitation_id", inv.ID)
	return nil
}

type InvitationInfo struct {
	OrganizationName string      `json:"organizationName"`
	Email            string      `json:"email"`
	Role             models.Role `json:"role"`
	ExpiresAt        time.Time   `json:"expiresAt"`
}

func (s *Service) findPending(tx *gorm.DB, token string, now time.Time) (*models.Invitation, error) {
	if token == "" {
		return nil, ErrInvalidInvitation
	}
	var inv models.Invitation
	err := tx.Preload("Organization").
		Where("token_hash = ? AND accepted_at IS NULL AND expires_at > ?", crypto.HashToken(token), now).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidInvitation
		}
		return nil, err
	}
	return &inv, nil
}

// LookupInvitation describes a pending invitation to its recipient.
func (s *Service) LookupInvitation(ctx context.Context, token string) (*InvitationInfo, error) {
	inv, err := s.findPending(s.db.WithContext(ctx), token, s.now())
	if err != nil {
		return nil, err
	}
	info := &InvitationInfo{Email: inv.Email, Role: inv.Role, ExpiresAt: inv.ExpiresAt}
	if inv.Organization != nil {
		info.OrganizationName = inv.Organization.Name
	}
	return info, nil
}

type AcceptResult struct {
	Token      string                     `json:"token"`
	IsNewUser  bool                       `json:"isNewUser"`
	Agent      *models.Agent              `json:"agent"`
	Membership *models.OrganizationMember `json:"membership"`
}

// AcceptInvitation joins the invited agent to the organization, creating the
// agent when the address is new. A token can be accepted once.
func (s *Service) AcceptInvitation(ctx context.Context, token, fullName string) (*AcceptResult, error) {
	now := s.now()
	result := &AcceptResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.findPending(tx, token, now)
		if err != nil {
			return err
		}

		var agent models.Agent
		err = tx.Where("email = ?", inv.Email).First(&agent).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			name := strings.TrimSpace(fullName)
			if name == "" {
				return ErrFullNameRequired
			}
			agent = models.Agent{
				Email:              inv.Email,
				FullName:           &name,
				BrandColor:         models.DefaultBrandColor,
				SubscriptionStatus: models.SubscriptionTrial,
			}
			if err := tx.Create(&agent).Error; err != nil {
				return fmt.Errorf("creating agent: %w", err)
			}
			result.IsNewUser = true
		case err != nil:
			return err
		}

		var existing int64
		if err := tx.Model(&models.OrganizationMember{}).
			Where("organization_id = ? AND agent_id = ?", inv.OrganizationID, agent.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyInOrg
		}

		res := tx.Model(&models.Invitation{}).
			Where("id = ? AND accepted_at IS NULL", inv.ID).
			Update("accepted_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidInvitation
		}

		member := &models.OrganizationMember{
			OrganizationID: inv.OrganizationID,
			AgentID:        agent.ID,
			Role:           inv.Role,
			JoinedAt:       now,
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("creating membership: %w", err)
		}

		result.Agent = &agent
		result.Membership = member
		return nil
	})
	if err != nil {
		return nil, err
	}

	signed, err := s.tokens.TokenForMembership(result.Agent, result.Membership)
	if err != nil {
		return nil, err
	}
	result.Token = signed
	s.logger.Info("invitation accepted", "org_id", result.Membership.OrganizationID, "agent_id", result.Agent.ID)
	return result, nil
}
