package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/tenant"
	"gorm.io/gorm"
)

// backfillOrganizations moves single-tenant data into organizations. Every
// agent without a membership gets a personal organization, copied from its
// brand and billing fields, with the agent as admin. Deals still owned through
// the legacy agent_id column are stamped with the organization and assigned to
// their owner. Agents that already joined an organization keep it and their
// legacy deals move into their current membership.
func backfillOrganizations(ctx context.Context, tx *gorm.DB, env Env) error {
	var agents []models.Agent
	if err := tx.Order("created_at ASC").Find(&agents).Error; err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}

	created := 0
	for i := range agents {
		agent := &agents[i]

		member, err := tenant.CurrentMembership(tx, agent.ID)
		if err != nil {
			return err
		}
		if member == nil {
			joined := agent.CreatedAt
			if joined.IsZero() {
				joined = env.Now
			}
			if _, member, err = tenant.ProvisionPersonal(tx, agent, joined); err != nil {
				return fmt.Errorf("agent %s: %w", agent.ID, err)
			}
			created++
		}

		res := tx.Model(&models.Deal{}).
			Where("agent_id = ? AND (organization_id IS NULL OR organization_id = ?)", agent.ID, uuid.Nil).
			Updates(map[string]interface{}{
				"organization_id":      member.OrganizationID,
				"assigned_to_agent_id": agent.ID,
				"created_by_agent_id":  agent.ID,
			})
		if res.Error != nil {
			return fmt.Errorf("stamping deals of agent %s: %w", agent.ID, res.Error)
		}
		env.Logger.Info("migrated agent", "agent_id", agent.ID, "org_id", member.OrganizationID, "deals", res.RowsAffected)
	}
	env.Logger.Info("legacy backfill finished", "agents", len(agents), "organizations_created", created)
	return nil
}
