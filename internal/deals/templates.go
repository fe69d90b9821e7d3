package deals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"gorm.io/gorm"
)

func (s *Service) ListTemplates(ctx context.Context) ([]models.TimelineTemplate, error) {
	var templates []models.TimelineTemplate
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*models.TimelineTemplate, error) {
	var tmpl models.TimelineTemplate
	if err := s.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &tmpl, nil
}
