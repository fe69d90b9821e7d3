// Package deals owns deals, their timeline steps and the rule deciding which
// deals a caller may see.
package deals

import (
	"errors"

	"github.com/hugh/estateflow/internal/auth"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("deal not found")
	ErrForbidden         = errors.New("deal not assigned to caller")
	ErrNoAccess          = errors.New("caller has no organization access")
	ErrStepNotFound      = errors.New("step not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTrialLimit        = errors.New("trial limit reached")
	ErrNoLongerAvailable = errors.New("deal no longer available")
)

// VisibleTo returns a scope restricting a deal query to the caller's visible
// set: the whole organization for TeamLead and Admin, assigned deals only for
// Employees. A caller without resolved ids sees nothing. The scope composes
// with any further conditions on the query.
func VisibleTo(rc auth.RequestContext) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !rc.HasAccess() {
			return db.Where("1 = 0")
		}
		db = db.Where("deals.organization_id = ?", rc.OrganizationID)
		if !rc.IsTeamLeadOrAbove() {
			db = db.Where("deals.assigned_to_agent_id = ?", rc.AgentID)
		}
		return db
	}
}

// InOrganization scopes a deal query to one organization regardless of role.
func InOrganization(rc auth.RequestContext) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !rc.HasAccess() {
			return db.Where("1 = 0")
		}
		return db.Where("deals.organization_id = ?", rc.OrganizationID)
	}
}
