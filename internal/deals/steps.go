package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/gorm"
)

type StepInput struct {
	Title                  string
	Description            *string
	DueDate                *time.Time
	Order                  *int
	Status                 *models.StepStatus
	ExpectedDurationDays   *int
	InactivityWarningDays  *int
	InactivityCriticalDays *int
}

type StepUpdate struct {
	Title                  *string
	Description            *string
	DueDate                *time.Time
	ClearDueDate           bool
	Order                  *int
	Status                 *models.StepStatus
	ExpectedDurationDays   *int
	InactivityWarningDays  *int
	InactivityCriticalDays *int
}

func (s *Service) ListSteps(ctx context.Context, rc auth.RequestContext, dealID uuid.UUID) ([]models.TimelineStep, error) {
	deal, err := s.load(s.db.WithContext(ctx), rc, dealID)
	if err != nil {
		return nil, err
	}

	var steps []models.TimelineStep
	if err := s.db.WithContext(ctx).
		Where("deal_id = ?", deal.ID).
		Order("step_order ASC").
		Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("listing steps: %w", err)
	}
	return steps, nil
}

// CreateStep appends a step, defaulting order to the end of the timeline.
func (s *Service) CreateStep(ctx context.Context, rc auth.RequestContext, dealID uuid.UUID, in StepInput) (*models.TimelineStep, error) {
	deal, err := s.load(s.db.WithContext(ctx), rc, dealID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	step := &models.TimelineStep{
		DealID:                 deal.ID,
		Title:                  in.Title,
		Description:            in.Description,
		Status:                 models.StepStatusPending,
		DueDate:                dateOnly(in.DueDate),
		ExpectedDurationDays:   intOr(in.ExpectedDurationDays, models.DefaultExpectedDurationDays),
		InactivityWarningDays:  intOr(in.InactivityWarningDays, models.DefaultInactivityWarningDays),
		InactivityCriticalDays: intOr(in.InactivityCriticalDays, models.DefaultInactivityCriticalDays),
		LastActivityAt:         &now,
	}
	if in.Status != nil {
		ApplyStepStatus(step, *in.Status, now)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Order != nil {
			step.Order = *in.Order
		} else {
			var maxOrder int64
			if err := tx.Model(&models.TimelineStep{}).
				Where("deal_id = ?", deal.ID).
				Select("COALESCE(MAX(step_order), 0)").
				Row().Scan(&maxOrder); err != nil {
				return err
			}
			step.Order = int(maxOrder) + 1
		}
		if err := tx.Create(step).Error; err != nil {
			return err
		}
		return touchDeal(tx, deal.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("creating step: %w", err)
	}
	return step, nil
}

// UpdateStep edits a step. Any update counts as activity on the step, and a
// status change emails the client.
func (s *Service) UpdateStep(ctx context.Context, rc auth.RequestContext, dealID, stepID uuid.UUID, in StepUpdate) (*models.TimelineStep, error) {
	deal, err := s.load(s.db.WithContext(ctx), rc, dealID)
	if err != nil {
		return nil, err
	}

	var step models.TimelineStep
	if err := s.db.WithContext(ctx).Where("id = ? AND deal_id = ?", stepID, deal.ID).First(&step).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}

	now := s.now()
	previous := step.Status

	if in.Title != nil {
		step.Title = *in.Title
	}
	if in.Description != nil {
		step.Description = in.Description
	}
	if in.ClearDueDate {
		step.DueDate = nil
	} else if in.DueDate != nil {
		step.DueDate = dateOnly(in.DueDate)
	}
	if in.Order != nil {
		step.Order = *in.Order
	}
	if in.ExpectedDurationDays != nil {
		step.ExpectedDurationDays = *in.ExpectedDurationDays
	}
	if in.InactivityWarningDays != nil {
		step.InactivityWarningDays = *in.InactivityWarningDays
	}
	if in.InactivityCriticalDays != nil {
		step.InactivityCriticalDays = *in.InactivityCriticalDays
	}
	if in.Status != nil {
		ApplyStepStatus(&step, *in.Status, now)
	}
	step.LastActivityAt = &now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&step).Error; err != nil {
			return err
		}
		return touchDeal(tx, deal.ID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("updating step: %w", err)
	}

	if step.Status != previous {
		_, brand := s.sender(ctx, rc)
		s.notifier.SendStepUpdate(ctx, deal, &step, brand, s.PortalLink(deal))
	}
	return &step, nil
}

func (s *Service) DeleteStep(ctx context.Context, rc auth.RequestContext, dealID, stepID uuid.UUID) error {
	deal, err := s.load(s.db.WithContext(ctx), rc, dealID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND deal_id = ?", stepID, deal.ID).Delete(&models.TimelineStep{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStepNotFound
		}
		return touchDeal(tx, deal.ID, s.now())
	})
}

// ApplyStepStatus moves a step to status, maintaining its activity timestamps.
// Entering InProgress records startedAt once; entering Completed records
// completedAt once; leaving Completed clears completedAt.
func ApplyStepStatus(step *models.TimelineStep, status models.StepStatus, now time.Time) {
	switch status {
	case models.StepStatusInProgress:
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
		step.CompletedAt = nil
	case models.StepStatusCompleted:
		if step.CompletedAt == nil {
			step.CompletedAt = &now
		}
	case models.StepStatusPending:
		step.CompletedAt = nil
	}
	step.Status = status
}

func touchDeal(tx *gorm.DB, dealID uuid.UUID, now time.Time) error {
	return tx.Model(&models.Deal{}).Where("id = ?", dealID).Update("updated_at", now).Error
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOnly(*t)
	return &d
}

func intOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}
