package deals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
)

const recentViewLimit = 10

type ViewEvent struct {
	Type         models.ViewType `json:"type"`
	DocumentName *string         `json:"documentName,omitempty"`
	ViewedAt     time.Time       `json:"viewedAt"`
}

type Analytics struct {
	TotalViews     int64       `json:"totalViews"`
	TotalDownloads int64       `json:"totalDownloads"`
	LastViewedAt   *time.Time  `json:"lastViewedAt"`
	RecentViews    []ViewEvent `json:"recentViews"`
}

// Analytics summarizes how the client has used the deal's portal.
func (s *Service) Analytics(ctx context.Context, rc auth.RequestContext, dealID uuid.UUID) (*Analytics, error) {
	deal, err := s.load(s.db.WithContext(ctx), rc, dealID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	out := &Analytics{RecentViews: []ViewEvent{}}

	if err := db.Model(&models.DealView{}).
		Where("deal_id = ? AND view_type = ?", deal.ID, models.ViewTypePageView).
		Count(&out.TotalViews).Error; err != nil {
		return nil, fmt.Errorf("counting views: %w", err)
	}
	if err := db.Model(&models.DealView{}).
		Where("deal_id = ? AND view_type = ?", deal.ID, models.ViewTypeDocumentDownload).
		Count(&out.TotalDownloads).Error; err != nil {
		return nil, fmt.Errorf("counting downloads: %w", err)
	}

	var views []models.DealView
	if err := db.Where("deal_id = ?", deal.ID).
		Order("viewed_at DESC").
		Limit(recentViewLimit).
		Find(&views).Error; err != nil {
		return nil, fmt.Errorf("listing views: %w", err)
	}

	names := map[uuid.UUID]string{}
	var docs []models.Document
	if err := db.Select("id", "filename").Where("deal_id = ?", deal.ID).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	for _, d := range docs {
		names[d.ID] = d.Filename
	}

	for _, v := range views {
		ev := ViewEvent{Type: v.ViewType, ViewedAt: v.ViewedAt}
		if v.DocumentID != nil {
			if name, ok := names[*v.DocumentID]; ok {
				ev.DocumentName = &name
			}
		}
		out.RecentViews = append(out.RecentViews, ev)
	}
	if len(views) > 0 {
		last := views[0].ViewedAt
		out.LastViewedAt = &last
	}
	return out, nil
}

// RecordView logs a portal visit. Failures are logged and otherwise ignored.
func (s *Service) RecordView(ctx context.Context, dealID uuid.UUID, viewType models.ViewType, documentID *uuid.UUID, meta ViewMeta) {
	view := models.DealView{
		DealID:     dealID,
		ViewType:   viewType,
		DocumentID: documentID,
		ViewedAt:   s.now(),
	}
	if meta.UserAgent != "" {
		ua := meta.UserAgent
		view.UserAgent = &ua
	}
	if meta.IPAddress != "" {
		ip := meta.IPAddress
		view.IPAddress = &ip
	}
	if err := s.db.WithContext(ctx).Create(&view).Error; err != nil {
		s.logger.Warn("failed to record deal view", "deal_id", dealID, "error", err)
	}
}
