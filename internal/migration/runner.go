// Package migration applies ordered, named data migrations and records each
// one in the data_migrations ledger.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/gorm"
)

// Migration is one data change. Up runs inside the transaction that also
// writes the ledger row, so a failed migration leaves no trace and is retried
// on the next start.
type Migration struct {
	Name string
	Up   func(ctx context.Context, tx *gorm.DB, env Env) error
}

// Env is what a migration may use besides its transaction.
type Env struct {
	Now    time.Time
	Logger *slog.Logger
}

type Runner struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
	now        func() time.Time
}

// NewRunner orders migrations by name. Names must be unique.
func NewRunner(db *gorm.DB, logger *slog.Logger, migrations ...Migration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Runner{
		db:         db,
		logger:     logger,
		migrations: sorted,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Default is the production migration set.
func Default() []Migration {
	return []Migration{
		{Name: "0001_seed_timeline_templates", Up: seedTimelineTemplates},
		{Name: "0002_legacy_agent_organizations", Up: backfillOrganizations},
	}
}

// Run applies every migration missing from the ledger and returns the names
// it applied.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	var applied []string
	for _, m := range r.migrations {
		done, err := r.isApplied(ctx, m.Name)
		if err != nil {
			return applied, err
		}
		if done {
			r.logger.Debug("data migration already applied", "name", m.Name)
			continue
		}

		now := r.now()
		r.logger.Info("applying data migration", "name", m.Name)
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := m.Up(ctx, tx, Env{Now: now, Logger: r.logger.With("migration", m.Name)}); err != nil {
				return err
			}
			return tx.Create(&models.DataMigration{Name: m.Name, AppliedAt: now}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("data migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
		r.logger.Info("data migration applied", "name", m.Name)
	}
	return applied, nil
}

func (r *Runner) isApplied(ctx context.Context, name string) (bool, error) {
	var row models.DataMigration
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading migration ledger: %w", err)
	}
	return true, nil
}
