package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNoTemplateAvailable      = errors.New("no_template_available")
	ErrDuplicateDispatchAttempt = errors.New("duplicate_dispatch_attempt")
	ErrInvalidThresholds        = errors.New("invalid_thresholds")
	ErrInvalidTemplate          = errors.New("invalid_template")
	ErrNotEligible              = errors.New("not_eligible")
	ErrAttemptNotFound          = errors.New("attempt_not_found")
	ErrAttemptNotPending        = errors.New("attempt_not_pending")
	ErrInvalidOutcome           = errors.New("invalid_outcome")
)

// Ineligibility reason codes surfaced to callers instead of errors.
const (
	ReasonAutomationDisabled = "automation_disabled"
	ReasonNotOverdue         = "not_overdue"
	ReasonNoContact          = "no_contact"
	ReasonNoTemplate         = "no_template"
	ReasonAttemptInFlight    = "attempt_in_flight"
	ReasonCooldownActive     = "cooldown_active"
	ReasonTerminalFailure    = "terminal_failure"
)

// Evaluation is the dispatch gate's answer for one invoice. When the
// invoice is ineligible, Reason carries the first failing check.
type Evaluation struct {
	Eligible    bool   `json:"eligible"`
	Reason      string `json:"reason,omitempty"`
	Tier        Tier   `json:"tier,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	DaysOverdue int    `json:"days_overdue"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
}

type UpsertTemplateInput struct {
	Tier         Tier
	Subject      string
	Body         string
	DaysAfterDue int
	Active       bool
}

type UpdateAutomationConfigInput struct {
	Enabled            bool
	FirstReminderDays  int
	SecondReminderDays int
	FinalNoticeDays    int
	CooldownDays       int
}

// CloseOutcome reports the sender's result for a pending attempt.
type CloseOutcome struct {
	Status AttemptStatus
	Reason string
}

type ListAttemptsRequest struct {
	pagination.Pagination
	CompanyID snowflake.ID
	InvoiceID snowflake.ID
	Status    AttemptStatus
}

type ListAttemptsResponse struct {
	pagination.PageInfo
	Attempts []DispatchAttempt `json:"attempts"`
}

// InvoiceContext is the ledger view the gate evaluates against,
// joined with the owning company for contact fallback.
type InvoiceContext struct {
	InvoiceID    snowflake.ID `gorm:"column:id"`
	CompanyID    snowflake.ID `gorm:"column:company_id"`
	Number       string       `gorm:"column:number"`
	ContactEmail string       `gorm:"column:contact_email"`
	Currency     string       `gorm:"column:currency"`
	Balance      int64        `gorm:"column:balance"`
	Status       string       `gorm:"column:status"`
	Overdue      bool         `gorm:"column:overdue"`
	DaysOverdue  int          `gorm:"column:days_overdue"`
	DueDate      time.Time    `gorm:"column:due_date"`
	CompanyName  string       `gorm:"column:company_name"`
	CompanyEmail string       `gorm:"column:company_email"`
}

type Repository interface {
	UpsertTemplate(ctx context.Context, db *gorm.DB, template *ReminderTemplate) error
	ListTemplates(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]ReminderTemplate, error)
	FindActiveTemplate(ctx context.Context, db *gorm.DB, companyID snowflake.ID, tier Tier) (*ReminderTemplate, error)
	DeleteTemplate(ctx context.Context, db *gorm.DB, companyID, templateID snowflake.ID) (bool, error)

	GetConfig(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*AutomationConfig, error)
	SaveConfig(ctx context.Context, db *gorm.DB, cfg *AutomationConfig) error

	LoadInvoiceContext(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*InvoiceContext, error)

	FindPendingAttempt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier Tier) (*DispatchAttempt, error)
	LastSentAt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier Tier) (*time.Time, error)
	LastTerminalFailure(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier Tier) (bool, error)
	InsertAttemptIfAbsent(ctx context.Context, db *gorm.DB, attempt *DispatchAttempt) (bool, error)
	FindAttempt(ctx context.Context, db *gorm.DB, companyID, attemptID snowflake.ID) (*DispatchAttempt, error)
	CloseAttempt(ctx context.Context, db *gorm.DB, attemptID snowflake.ID, status AttemptStatus, reason string, closedAt time.Time) (bool, error)
	ListAttempts(ctx context.Context, db *gorm.DB, filter AttemptFilter) ([]DispatchAttempt, int64, error)
	ListPendingAttempts(ctx context.Context, db *gorm.DB, limit int) ([]DispatchAttempt, error)
	ListOverdueInvoiceRefs(ctx context.Context, db *gorm.DB, limit int) ([]InvoiceRef, error)
}

// InvoiceRef identifies one overdue invoice for the dispatch job.
type InvoiceRef struct {
	CompanyID snowflake.ID `gorm:"column:company_id"`
	InvoiceID snowflake.ID `gorm:"column:id"`
}

type AttemptFilter struct {
	CompanyID snowflake.ID
	InvoiceID snowflake.ID
	Status    AttemptStatus
	Limit     int
	Offset    int
}

// Service is the escalation selector and dispatch gate.
type Service interface {
	UpsertTemplate(ctx context.Context, companyID snowflake.ID, input UpsertTemplateInput) (*ReminderTemplate, error)
	ListTemplates(ctx context.Context, companyID snowflake.ID) ([]ReminderTemplate, error)
	DeleteTemplate(ctx context.Context, companyID, templateID snowflake.ID) error

	GetAutomationConfig(ctx context.Context, companyID snowflake.ID) (*AutomationConfig, error)
	UpdateAutomationConfig(ctx context.Context, companyID snowflake.ID, input UpdateAutomationConfigInput) (*AutomationConfig, error)

	// Evaluate runs the gate without side effects. Ineligibility is a
	// reason code on the result, never an error.
	Evaluate(ctx context.Context, companyID, invoiceID snowflake.ID) (Evaluation, error)

	// OpenAttempt re-evaluates the gate and records a pending attempt
	// under the per (invoice, tier) compare-and-set guard.
	OpenAttempt(ctx context.Context, companyID, invoiceID snowflake.ID) (*DispatchAttempt, error)

	// CloseAttempt moves a pending attempt to its terminal state.
	CloseAttempt(ctx context.Context, companyID, attemptID snowflake.ID, outcome CloseOutcome) (*DispatchAttempt, error)

	ListAttempts(ctx context.Context, req ListAttemptsRequest) (ListAttemptsResponse, error)
}
