package dto

import (
	"github.com/hugh/estateflow/internal/api/validation"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/database/models"
)

type CreateDealRequest struct {
	ClientName       string  `json:"clientName"`
	ClientEmail      string  `json:"clientEmail"`
	PropertyAddress  *string `json:"propertyAddress"`
	PropertyPhotoURL *string `json:"propertyPhotoUrl"`
	WelcomeMessage   *string `json:"welcomeMessage"`
	TemplateID       *string `json:"templateId"`
}

func (r CreateDealRequest) Validate() map[string]string {
	errs := validation.New()

	errs.Required("clientName", r.ClientName, "Client name is required")
	errs.Email("clientEmail", auth.NormalizeEmail(r.ClientEmail), "Client email is required")
	errs.MaxLen("propertyAddress", r.PropertyAddress, 500)
	errs.OptionalURL("propertyPhotoUrl", r.PropertyPhotoURL)
	errs.MaxLen("welcomeMessage", r.WelcomeMessage, 2000)
	errs.OptionalUUID("templateId", r.TemplateID, "Invalid template ID")

	return errs
}

type UpdateDealRequest struct {
	ClientName       *string `json:"clientName"`
	ClientEmail      *string `json:"clientEmail"`
	PropertyAddress  *string `json:"propertyAddress"`
	PropertyPhotoURL *string `json:"propertyPhotoUrl"`
	WelcomeMessage   *string `json:"welcomeMessage"`
	Status           *string `json:"status"`
}

func (r UpdateDealRequest) Validate() map[string]string {
	errs := validation.New()

	errs.NotBlank("clientName", r.ClientName, "Client name cannot be empty")
	errs.OptionalEmail("clientEmail", r.ClientEmail)
	errs.MaxLen("propertyAddress", r.PropertyAddress, 500)
	errs.OptionalURL("propertyPhotoUrl", r.PropertyPhotoURL)
	errs.MaxLen("welcomeMessage", r.WelcomeMessage, 2000)
	if r.Status != nil {
		if _, ok := models.ParseDealStatus(*r.Status); !ok {
			errs.Add("status", "Status must be Active, Completed or Archived")
		}
	}

	return errs
}

// DealSummary is a deal in list views, with its timeline progress.
type DealSummary struct {
	models.Deal
	TotalSteps     int `json:"totalSteps"`
	CompletedSteps int `json:"completedSteps"`
}

func NewDealSummaries(deals []models.Deal) []DealSummary {
	out := make([]DealSummary, 0, len(deals))
	for _, d := range deals {
		s := DealSummary{Deal: d, TotalSteps: len(d.Steps)}
		for _, step := range d.Steps {
			if step.Status == models.StepStatusCompleted {
				s.CompletedSteps++
			}
		}
		s.Steps = nil
		s.Documents = nil
		out = append(out, s)
	}
	return out
}

type CreateStepRequest struct {
	Title                  string  `json:"title"`
	Description            *string `json:"description"`
	DueDate                *string `json:"dueDate"`
	Order                  *int    `json:"order"`
	Status                 *string `json:"status"`
	ExpectedDurationDays   *int    `json:"expectedDurationDays"`
	InactivityWarningDays  *int    `json:"inactivityWarningDays"`
	InactivityCriticalDays *int    `json:"inactivityCriticalDays"`
}

func (r CreateStepRequest) Validate() map[string]string {
	errs := validation.New()

	errs.Required("title", r.Title, "Title is required")
	errs.MaxLen("title", &r.Title, 200)
	validateStepFields(errs, r.DueDate, r.Order, r.Status, r.ExpectedDurationDays, r.InactivityWarningDays, r.InactivityCriticalDays)

	return errs
}

type UpdateStepRequest struct {
	Title                  *string `json:"title"`
	Description            *string `json:"description"`
	DueDate                *string `json:"dueDate"`
	ClearDueDate           bool    `json:"clearDueDate"`
	Order                  *int    `json:"order"`
	Status                 *string `json:"status"`
	ExpectedDurationDays   *int    `json:"expectedDurationDays"`
	InactivityWarningDays  *int    `json:"inactivityWarningDays"`
	InactivityCriticalDays *int    `json:"inactivityCriticalDays"`
}

func (r UpdateStepRequest) Validate() map[string]string {
	errs := validation.New()

	errs.NotBlank("title", r.Title, "Title cannot be empty")
	errs.MaxLen("title", r.Title, 200)
	validateStepFields(errs, r.DueDate, r.Order, r.Status, r.ExpectedDurationDays, r.InactivityWarningDays, r.InactivityCriticalDays)

	return errs
}

func validateStepFields(errs validation.Errors, due *string, order *int, status *string, thresholds ...*int) {
	if due != nil && *due != "" {
		if _, err := ParseDate(*due); err != nil {
			errs.Add("dueDate", "Due date must be YYYY-MM-DD")
		}
	}
	if order != nil && *order < 0 {
		errs.Add("order", "Order cannot be negative")
	}
	if status != nil {
		if _, ok := models.ParseStepStatus(*status); !ok {
			errs.Add("status", "Status must be Pending, InProgress or Completed")
		}
	}
	names := []string{"expectedDurationDays", "inactivityWarningDays", "inactivityCriticalDays"}
	for i, v := range thresholds {
		if v != nil && *v < 1 {
			errs.Add(names[i], "Must be at least 1 day")
		}
	}
}

type SignatureResponse struct {
	SignatureRequestID string `json:"signatureRequestId"`
	SignerURL          string `json:"signerUrl"`
	Status             string `json:"status"`
}

type AssignDealRequest struct {
	AgentID string `json:"agentId"`
}

func (r AssignDealRequest) Validate() map[string]string {
	errs := validation.New()
	errs.UUID("agentId", r.AgentID, "Invalid agent ID")
	return errs
}
