package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/tenant"
	"github.com/hugh/estateflow/pkg/crypto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrInvalidEmail  = errors.New("invalid email")
)

type Service struct {
	db          *gorm.DB
	jwt         *JWTService
	notifier    Notifier
	logger      *slog.Logger
	frontendURL string
	linkExpiry  time.Duration
	now         func() time.Time
}

type ServiceOptions struct {
	FrontendURL     string
	MagicLinkExpiry time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

func NewService(db *gorm.DB, jwt *JWTService, notifier Notifier, opts ServiceOptions) *Service {
	if opts.MagicLinkExpiry <= 0 {
		opts.MagicLinkExpiry = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:          db,
		jwt:         jwt,
		notifier:    notifier,
		logger:      opts.Logger,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		linkExpiry:  opts.MagicLinkExpiry,
		now:         opts.Now,
	}
}

type AuthResponse struct {
	Token      string                     `json:"token"`
	Agent      *models.Agent              `json:"agent"`
	Membership *models.OrganizationMember `json:"membership,omitempty"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestMagicLink finds or creates the agent and sends a login link. The
// result does not reveal whether the address was already registered.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}

	agent, err := s.findOrCreateAgent(ctx, email)
	if err != nil {
		return err
	}

	token, err := crypto.GenerateToken(crypto.TokenBytes)
	if err != nil {
		return fmt.Errorf("generating magic link token: %w", err)
	}

	link := models.MagicLink{
		AgentID:   agent.ID,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(s.linkExpiry),
	}
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("creating magic link: %w", err)
	}

	callback := s.frontendURL + "/auth/callback?token=" + url.QueryEscape(token)
	s.notifier.SendMagicLink(ctx, agent.Email, agent.DisplayName(), callback)

	s.logger.Info("magic link issued", "agent_id", agent.ID)
	return nil
}

// VerifyMagicLink consumes a login token. Unknown, used and expired tokens all
// yield ErrInvalidToken.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (*AuthResponse, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	now := s.now()
	var agent models.Agent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link models.MagicLink
		if err := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", crypto.HashToken(token), now).
			First(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}

		// Conditional update so two concurrent verifications cannot both succeed.
		res := tx.Model(&models.MagicLink{}).
			Where("id = ? AND used_at IS NULL", link.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		return tx.First(&agent, "id = ?", link.AgentID).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("verifying magic link: %w", err)
	}

	return s.IssueToken(ctx, &agent)
}

// IssueToken signs a token for the agent's current membership, creating a
// personal organization first when the agent belongs to none.
func (s *Service) IssueToken(ctx context.Context, agent *models.Agent) (*AuthResponse, error) {
	var member *models.OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The agent row lock serializes concurrent first logins, so at most
		// one personal organization is provisioned.
		var locked models.Agent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&locked, "id = ?", agent.ID).Error; err != nil {
			return fmt.Errorf("locking agent: %w", err)
		}

		m, err := tenant.CurrentMembership(tx, agent.ID)
		if err != nil {
			return err
		}
		if m == nil {
			_, m, err = tenant.ProvisionPersonal(tx, agent, s.now())
			if err != nil {
				return err
			}
			s.logger.Info("provisioned personal organization", "agent_id", agent.ID, "org_id", m.OrganizationID)
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving membership: %w", err)
	}

	return s.tokenFor(agent, member)
}

// TokenForMembership signs a token bound to a specific membership.
func (s *Service) TokenForMembership(agent *models.Agent, member *models.OrganizationMember) (string, error) {
	resp, err := s.tokenFor(agent, member)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (s *Service) tokenFor(agent *models.Agent, member *models.OrganizationMember) (*AuthResponse, error) {
	orgID, role := uuid.Nil, models.RoleEmployee
	if member != nil {
		orgID, role = member.OrganizationID, member.Role
	}
	token, err := s.jwt.GenerateToken(agent.ID, orgID, agent.Email, role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Agent: agent, Membership: member}, nil
}

func (s *Service) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (s *Service) findOrCreateAgent(ctx context.Context, email string) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&agent).Error
	if err == nil {
		return &agent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("finding agent: %w", err)
	}

	agent = models.Agent{
		Email:              email,
		BrandColor:         models.DefaultBrandColor,
		SubscriptionStatus: models.SubscriptionTrial,
	}
	if err := s.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return &agent, nil
}
