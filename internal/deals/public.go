package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/tenant"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ViewMeta describes the client making a portal request.
type ViewMeta struct {
	UserAgent string
	IPAddress string
}

type PublicAgent struct {
	FullName    *string           `json:"fullName"`
	Email       string            `json:"email"`
	Phone       *string           `json:"phone"`
	PhotoURL    *string           `json:"photoUrl"`
	BrandColor  string            `json:"brandColor"`
	LogoURL     *string           `json:"logoUrl"`
	SocialLinks datatypes.JSONMap `json:"socialLinks,omitempty"`
}

type PublicStep struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description *string           `json:"description,omitempty"`
	Status      models.StepStatus `json:"status"`
	DueDate     *time.Time        `json:"dueDate,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Order       int               `json:"order"`
}

type PublicDocument struct {
	ID         uuid.UUID               `json:"id"`
	Filename   string                  `json:"filename"`
	Category   models.DocumentCategory `json:"category"`
	UploadedAt time.Time               `json:"uploadedAt"`
	SignedAt   *time.Time              `json:"signedAt,omitempty"`
}

// PublicDeal is what the client portal shows. It never carries internal ids
// of the organization or its members.
type PublicDeal struct {
	ClientName       string            `json:"clientName"`
	PropertyAddress  *string           `json:"propertyAddress"`
	PropertyPhotoURL *string           `json:"propertyPhotoUrl"`
	WelcomeMessage   *string           `json:"welcomeMessage"`
	Status           models.DealStatus `json:"status"`
	Agent            PublicAgent       `json:"agent"`
	Steps            []PublicStep      `json:"timelineSteps"`
	Documents        []PublicDocument  `json:"documents"`
}

// FindByAccessToken loads a deal through its portal capability token.
// Archived deals are ErrNoLongerAvailable.
func (s *Service) FindByAccessToken(ctx context.Context, accessToken string) (*models.Deal, error) {
	if accessToken == "" {
		return nil, ErrNotFound
	}
	var deal models.Deal
	if err := s.db.WithContext(ctx).Scopes(withTimeline).
		Where("access_token = ?", accessToken).
		First(&deal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if deal.Status == models.DealStatusArchived {
		return nil, ErrNoLongerAvailable
	}
	return &deal, nil
}

// PublicView renders the client portal and records the page view.
func (s *Service) PublicView(ctx context.Context, accessToken string, meta ViewMeta) (*PublicDeal, error) {
	deal, err := s.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	agent, err := s.portalAgent(ctx, deal)
	if err != nil {
		return nil, fmt.Errorf("loading deal agent: %w", err)
	}

	out := &PublicDeal{
		ClientName:       deal.ClientName,
		PropertyAddress:  deal.PropertyAddress,
		PropertyPhotoURL: deal.PropertyPhotoURL,
		WelcomeMessage:   deal.WelcomeMessage,
		Status:           deal.Status,
		Agent:            *agent,
		Steps:            make([]PublicStep, 0, len(deal.Steps)),
		Documents:        make([]PublicDocument, 0, len(deal.Documents)),
	}
	for _, st := range deal.Steps {
		out.Steps = append(out.Steps, PublicStep{
			ID:          st.ID,
			Title:       st.Title,
			Description: st.Description,
			Status:      st.Status,
			DueDate:     st.DueDate,
			CompletedAt: st.CompletedAt,
			Order:       st.Order,
		})
	}
	for _, d := range deal.Documents {
		out.Documents = append(out.Documents, PublicDocument{
			ID:         d.ID,
			Filename:   d.Filename,
			Category:   d.Category,
			UploadedAt: d.UploadedAt,
			SignedAt:   d.SignedAt,
		})
	}

	s.RecordView(ctx, deal.ID, models.ViewTypePageView, nil, meta)
	return out, nil
}

// portalAgent picks the assigned agent, or the admin when the deal has no
// assignee, branded with the organization's colors when set.
func (s *Service) portalAgent(ctx context.Context, deal *models.Deal) (*PublicAgent, error) {
	db := s.db.WithContext(ctx)

	agent := deal.AssignedToAgent
	if agent == nil {
		admin, err := tenant.Admin(db, deal.OrganizationID)
		if err != nil {
			return nil, err
		}
		agent = admin.Agent
	}

	out := &PublicAgent{
		FullName:    agent.FullName,
		Email:       agent.Email,
		Phone:       agent.Phone,
		PhotoURL:    agent.PhotoURL,
		BrandColor:  agent.BrandColor,
		LogoURL:     agent.LogoURL,
		SocialLinks: agent.SocialLinks,
	}

	var org models.Organization
	if err := db.First(&org, "id = ?", deal.OrganizationID).Error; err == nil {
		if org.BrandColor != "" {
			out.BrandColor = org.BrandColor
		}
		if org.LogoURL != nil {
			out.LogoURL = org.LogoURL
		}
	}
	if out.BrandColor == "" {
		out.BrandColor = models.DefaultBrandColor
	}
	return out, nil
}
