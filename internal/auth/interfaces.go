package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
)

// Authenticator is what the auth handlers and the Me endpoint need.
type Authenticator interface {
	RequestMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (*AuthResponse, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

// TokenService signs and checks session tokens. orgID and role are zero for
// an agent without a membership.
type TokenService interface {
	GenerateToken(agentID, orgID uuid.UUID, email string, role models.Role) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Notifier delivers the login link. It owns delivery failures; login answers
// the same either way.
type Notifier interface {
	SendMagicLink(ctx context.Context, to, name, link string)
}

var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
