package dto

import (
	"github.com/hugh/estateflow/internal/api/validation"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
)

type LoginRequest struct {
	Email string `json:"email"`
}

func (r LoginRequest) Validate() map[string]string {
	errs := validation.New()
	errs.Email("email", auth.NormalizeEmail(r.Email), "Email is required")
	return errs
}

type CallbackRequest struct {
	Token string `json:"token"`
}

func (r CallbackRequest) Validate() map[string]string {
	errs := validation.New()
	errs.Required("token", r.Token, "Token is required")
	return errs
}

type AuthResponse struct {
	Token      string                     `json:"token"`
	Agent      *models.Agent              `json:"agent"`
	Membership *models.OrganizationMember `json:"membership,omitempty"`
}

type UpdateProfileRequest struct {
	FullName    *string                `json:"fullName"`
	Phone       *string                `json:"phone"`
	PhotoURL    *string                `json:"photoUrl"`
	BrandColor  *string                `json:"brandColor"`
	LogoURL     *string                `json:"logoUrl"`
	SocialLinks map[string]interface{} `json:"socialLinks"`
}

func (r UpdateProfileRequest) Validate() map[string]string {
	errs := validation.New()

	errs.NotBlank("fullName", r.FullName, "Full name cannot be empty")
	errs.MaxLen("fullName", r.FullName, 200)
	errs.MaxLen("phone", r.Phone, 50)
	errs.OptionalURL("photoUrl", r.PhotoURL)
	errs.OptionalURL("logoUrl", r.LogoURL)
	errs.OptionalColor("brandColor", r.BrandColor)
	errs.LinkMap("socialLinks", r.SocialLinks)

	return errs
}
