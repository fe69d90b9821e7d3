package models

import "strings"

// Role is an organization member's role. Admin > TeamLead > Employee.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleTeamLead Role = "TeamLead"
	RoleEmployee Role = "Employee"
)

var roles = []Role{RoleAdmin, RoleTeamLead, RoleEmployee}

func ParseRole(s string) (Role, bool) {
	return parseEnum(s, roles)
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Rank orders roles so that a higher value means more privileges.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleTeamLead:
		return 2
	case RoleEmployee:
		return 1
	default:
		return 0
	}
}

type DealStatus string

const (
	DealStatusActive    DealStatus = "Active"
	DealStatusCompleted DealStatus = "Completed"
	DealStatusArchived  DealStatus = "Archived"
)

var dealStatuses = []DealStatus{DealStatusActive, DealStatusCompleted, DealStatusArchived}

func ParseDealStatus(s string) (DealStatus, bool) {
	return parseEnum(s, dealStatuses)
}

type StepStatus string

const (
	StepStatusPending    StepStatus = "Pending"
	StepStatusInProgress StepStatus = "InProgress"
	StepStatusCompleted  StepStatus = "Completed"
)

var stepStatuses = []StepStatus{StepStatusPending, StepStatusInProgress, StepStatusCompleted}

func ParseStepStatus(s string) (StepStatus, bool) {
	return parseEnum(s, stepStatuses)
}

type DocumentCategory string

const (
	DocumentCategoryToSign    DocumentCategory = "ToSign"
	DocumentCategoryReference DocumentCategory = "Reference"
)

var documentCategories = []DocumentCategory{DocumentCategoryToSign, DocumentCategoryReference}

func ParseDocumentCategory(s string) (DocumentCategory, bool) {
	return parseEnum(s, documentCategories)
}

type ViewType string

const (
	ViewTypePageView         ViewType = "PageView"
	ViewTypeDocumentDownload ViewType = "DocumentDownload"
)

type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "Trial"
	SubscriptionActive    SubscriptionStatus = "Active"
	SubscriptionCancelled SubscriptionStatus = "Cancelled"
	SubscriptionExpired   SubscriptionStatus = "Expired"
)

var subscriptionStatuses = []SubscriptionStatus{
	SubscriptionTrial, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired,
}

func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	return parseEnum(s, subscriptionStatuses)
}

func parseEnum[T ~string](s string, values []T) (T, bool) {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(s, string(v)) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
