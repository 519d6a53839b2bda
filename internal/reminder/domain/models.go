// Package domain contains the escalation and dispatch models for
// overdue-payment follow-up.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is the escalation stage of a reminder.
type Tier string

const (
	TierFirst  Tier = "FIRST"
	TierSecond Tier = "SECOND"
	TierFinal  Tier = "FINAL"
)

// AttemptStatus is the dispatch attempt state machine. PENDING is the
// only non-terminal state.
type AttemptStatus string

const (
	AttemptPending         AttemptStatus = "PENDING"
	AttemptSent            AttemptStatus = "SENT"
	AttemptFailedRetryable AttemptStatus = "FAILED_RETRYABLE"
	AttemptFailedTerminal  AttemptStatus = "FAILED_TERMINAL"
)

// ReminderTemplate is the message content for one escalation tier.
// Subject and Body may carry placeholders of the form {{name}}.
type ReminderTemplate struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	CompanyID    snowflake.ID `gorm:"not null;index"`
	Tier         Tier         `gorm:"type:text;not null"`
	Subject      string       `gorm:"type:text;not null"`
	Body         string       `gorm:"type:text;not null"`
	DaysAfterDue int          `gorm:"not null;default:0"`
	Active       bool         `gorm:"not null;default:true"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReminderTemplate) TableName() string { return "reminder_templates" }

// AutomationConfig holds one company's follow-up settings. Thresholds
// are whole days past due and must be strictly increasing.
type AutomationConfig struct {
	CompanyID          snowflake.ID `gorm:"primaryKey"`
	Enabled            bool         `gorm:"not null;default:false"`
	FirstReminderDays  int          `gorm:"not null"`
	SecondReminderDays int          `gorm:"not null"`
	FinalNoticeDays    int          `gorm:"not null"`
	CooldownDays       int          `gorm:"not null"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AutomationConfig) TableName() string { return "automation_configs" }

// DispatchAttempt records one reminder handed to the email sender. The
// rendered content is frozen at open time so the sender and the audit
// trail see exactly what was decided.
type DispatchAttempt struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	CompanyID     snowflake.ID  `gorm:"not null;index"`
	InvoiceID     snowflake.ID  `gorm:"not null;index"`
	Tier          Tier          `gorm:"type:text;not null"`
	Status        AttemptStatus `gorm:"type:text;not null"`
	Recipient     string        `gorm:"type:text;not null"`
	Subject       string        `gorm:"type:text;not null"`
	Body          string        `gorm:"type:text;not null"`
	FailureReason string        `gorm:"type:text"`
	OpenedAt      time.Time     `gorm:"not null"`
	ClosedAt      *time.Time    `gorm:""`
}

// TableName sets the database table name.
func (DispatchAttempt) TableName() string { return "dispatch_attempts" }
