package dto

import (
	"strings"

	"github.com/hugh/estateflow/internal/api/validation"
	"github.com/hugh/estateflow/internal/auth"
)

type UpdateOrganizationRequest struct {
	Name       *string `json:"name"`
	BrandColor *string `json:"brandColor"`
	LogoURL    *string `json:"logoUrl"`
}

func (r UpdateOrganizationRequest) Validate() map[string]string {
	errs := validation.New()

	errs.NotBlank("name", r.Name, "Name cannot be empty")
	errs.MaxLen("name", r.Name, 200)
	errs.OptionalColor("brandColor", r.BrandColor)
	errs.OptionalURL("logoUrl", r.LogoURL)

	return errs
}

// InviteRequest leaves role checks to the membership rules, which also
// refuse Admin.
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r InviteRequest) Validate() map[string]string {
	errs := validation.New()
	errs.Email("email", auth.NormalizeEmail(r.Email), "Email is required")
	errs.Required("role", r.Role, "Role is required")
	return errs
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

func (r ChangeRoleRequest) Validate() map[string]string {
	errs := validation.New()
	errs.Required("role", r.Role, "Role is required")
	return errs
}

type TransferAdminRequest struct {
	NewAdminID string `json:"newAdminId"`
}

func (r TransferAdminRequest) Validate() map[string]string {
	errs := validation.New()
	errs.UUID("newAdminId", r.NewAdminID, "Invalid agent ID")
	return errs
}

type TransferAdminResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type AcceptInvitationRequest struct {
	FullName string `json:"fullName"`
}

func (r AcceptInvitationRequest) Validate() map[string]string {
	errs := validation.New()
	errs.MaxLen("fullName", &r.FullName, 200)
	return errs
}

type CheckoutRequest struct {
	Plan string `json:"plan"`
}

func (r CheckoutRequest) Validate() map[string]string {
	errs := validation.New()
	switch strings.ToLower(strings.TrimSpace(r.Plan)) {
	case "", "monthly", "yearly":
	default:
		errs.Add("plan", "Plan must be monthly or yearly")
	}
	return errs
}

type URLResponse struct {
	URL string `json:"url"`
}
