package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// clockSkew is tolerated on exp and nbf between API replicas.
const clockSkew = 30 * time.Second

// Claims carries the agent id in sub and its active membership in org_id/role.
// org_id and role are absent for an agent without any organization.
type Claims struct {
	Email          string `json:"email,omitempty"`
	OrganizationID string `json:"org_id,omitempty"`
	Role           string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs HS256 session tokens for agents.
type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time

	registered jwt.RegisteredClaims
	parser     *jwt.Parser
}

func NewJWTService(secret, issuer, audience string, expiry time.Duration) *JWTService {
	s := &JWTService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
		registered: jwt.RegisteredClaims{
			Issuer:   issuer,
			Audience: jwt.ClaimStrings{audience},
		},
	}
	s.parser = jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// WithClock replaces the time source for issuing and checking tokens.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

func (s *JWTService) GenerateToken(agentID, orgID uuid.UUID, email string, role models.Role) (string, error) {
	now := s.now()

	rc := s.registered
	rc.Subject = agentID.String()
	rc.ID = uuid.NewString()
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.NotBefore = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))

	claims := Claims{Email: email, RegisteredClaims: rc}
	if orgID != uuid.Nil {
		claims.OrganizationID = orgID.String()
		claims.Role = string(role)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken reports ErrExpiredToken for a well-signed token past its exp
// and ErrInvalidToken for everything else.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil, !token.Valid:
		return nil, ErrInvalidToken
	case claims.Subject == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}
