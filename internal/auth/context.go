package auth

import (
	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
)

// RequestContext is the caller identity every business operation receives.
// A nil AgentID or OrganizationID means the caller has no access.
type RequestContext struct {
	AgentID        uuid.UUID
	OrganizationID uuid.UUID
	Role           models.Role
}

// ContextFromClaims resolves the caller from validated token claims. Missing or
// malformed claims fall back to nil ids and the Employee role instead of failing.
func ContextFromClaims(c *Claims) RequestContext {
	rc := RequestContext{Role: models.RoleEmployee}
	if c == nil {
		return rc
	}

	if id, err := uuid.Parse(c.Subject); err == nil {
		rc.AgentID = id
	}
	if id, err := uuid.Parse(c.OrganizationID); err == nil {
		rc.OrganizationID = id
	}
	if role, ok := models.ParseRole(c.Role); ok {
		rc.Role = role
	}
	return rc
}

// HasAccess reports whether both ids resolved.
func (rc RequestContext) HasAccess() bool {
	return rc.AgentID != uuid.Nil && rc.OrganizationID != uuid.Nil
}

func (rc RequestContext) IsAdmin() bool {
	return rc.HasAccess() && rc.Role == models.RoleAdmin
}

func (rc RequestContext) IsTeamLeadOrAbove() bool {
	return rc.HasAccess() && (rc.Role == models.RoleAdmin || rc.Role == models.RoleTeamLead)
}
