package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Deal is a tracked transaction. OrganizationID never changes after creation.
type Deal struct {
	Base
	OrganizationID    uuid.UUID  `gorm:"type:uuid;index" json:"organizationId"`
	AgentID           *uuid.UUID `gorm:"type:uuid;index" json:"-"` // legacy single-tenant owner
	AssignedToAgentID *uuid.UUID `gorm:"type:uuid;index" json:"assignedToAgentId,omitempty"`
	CreatedByAgentID  *uuid.UUID `gorm:"type:uuid" json:"createdByAgentId,omitempty"`
	ClientName        string     `gorm:"not null" json:"clientName"`
	ClientEmail       string     `gorm:"not null" json:"clientEmail"`
	PropertyAddress   *string    `json:"propertyAddress,omitempty"`
	PropertyPhotoURL  *string    `json:"propertyPhotoUrl,omitempty"`
	WelcomeMessage    *string    `json:"welcomeMessage,omitempty"`
	Status            DealStatus `gorm:"not null;default:'Active';index" json:"status"`
	AccessToken       string     `gorm:"uniqueIndex;not null" json:"accessToken"`

	Organization    *Organization  `gorm:"foreignKey:OrganizationID" json:"-"`
	AssignedToAgent *Agent         `gorm:"foreignKey:AssignedToAgentID" json:"assignedTo,omitempty"`
	Steps           []TimelineStep `gorm:"foreignKey:DealID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Documents       []Document     `gorm:"foreignKey:DealID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
	Views           []DealView     `gorm:"foreignKey:DealID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Deal) TableName() string {
	return "deals"
}

// DisplayName is the property address, or the client name when no address is set.
func (d *Deal) DisplayName() string {
	if d.PropertyAddress != nil && *d.PropertyAddress != "" {
		return *d.PropertyAddress
	}
	return d.ClientName
}

func (d *Deal) IsAssignedTo(agentID uuid.UUID) bool {
	return d.AssignedToAgentID != nil && *d.AssignedToAgentID == agentID
}

// Step threshold defaults, in days.
const (
	DefaultExpectedDurationDays   = 7
	DefaultInactivityWarningDays  = 3
	DefaultInactivityCriticalDays = 7
)

type TimelineStep struct {
	Base
	DealID                 uuid.UUID  `gorm:"type:uuid;not null;index" json:"dealId"`
	Title                  string     `gorm:"not null" json:"title"`
	Description            *string    `json:"description,omitempty"`
	Status                 StepStatus `gorm:"not null;default:'Pending'" json:"status"`
	DueDate                *time.Time `gorm:"type:date" json:"dueDate,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
	Order                  int        `gorm:"column:step_order;not null" json:"order"`
	ExpectedDurationDays   int        `gorm:"not null;default:7" json:"expectedDurationDays"`
	InactivityWarningDays  int        `gorm:"not null;default:3" json:"inactivityWarningDays"`
	InactivityCriticalDays int        `gorm:"not null;default:7" json:"inactivityCriticalDays"`
	StartedAt              *time.Time `json:"startedAt,omitempty"`
	LastActivityAt         *time.Time `json:"lastActivityAt,omitempty"`
}

func (TimelineStep) TableName() string {
	return "timeline_steps"
}

type Document struct {
	Base
	DealID             uuid.UUID        `gorm:"type:uuid;not null;index" json:"dealId"`
	Filename           string           `gorm:"not null" json:"filename"`
	FilePath           string           `gorm:"not null" json:"-"`
	Category           DocumentCategory `gorm:"not null;default:'Reference'" json:"category"`
	UploadedAt         time.Time        `gorm:"not null" json:"uploadedAt"`
	SignatureRequestID *string          `json:"signatureRequestId,omitempty"`
	SignatureStatus    *string          `json:"signatureStatus,omitempty"`
	SignedFilePath     *string          `json:"-"`
	SignedAt           *time.Time       `json:"signedAt,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

type DealView struct {
	Base
	DealID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"dealId"`
	ViewType   ViewType   `gorm:"not null" json:"viewType"`
	DocumentID *uuid.UUID `gorm:"type:uuid" json:"documentId,omitempty"`
	UserAgent  *string    `json:"userAgent,omitempty"`
	IPAddress  *string    `json:"ipAddress,omitempty"`
	ViewedAt   time.Time  `gorm:"not null;index" json:"viewedAt"`
}

func (DealView) TableName() string {
	return "deal_views"
}

// TemplateStep is one step definition inside a TimelineTemplate.
type TemplateStep struct {
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Order                  int    `json:"order"`
	ExpectedDurationDays   int    `json:"expectedDurationDays,omitempty"`
	InactivityWarningDays  int    `json:"inactivityWarningDays,omitempty"`
	InactivityCriticalDays int    `json:"inactivityCriticalDays,omitempty"`
}

type TimelineTemplate struct {
	Base
	Name  string                           `gorm:"not null" json:"name"`
	Steps datatypes.JSONSlice[TemplateStep] `json:"steps"`
}

func (TimelineTemplate) TableName() string {
	return "timeline_templates"
}

// DataMigration records a data migration that has been applied.
type DataMigration struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	AppliedAt time.Time `gorm:"not null" json:"appliedAt"`
}

func (DataMigration) TableName() string {
	return "data_migrations"
}

// All lists every persisted model in dependency order.
func All() []interface{} {
	return []interface{}{
		&Agent{},
		&MagicLink{},
		&Organization{},
		&OrganizationMember{},
		&Invitation{},
		&Deal{},
		&TimelineStep{},
		&Document{},
		&DealView{},
		&TimelineTemplate{},
		&DataMigration{},
	}
}
