// Package domain contains the settlement ledger models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SettlementStatus is the derived paid state of an invoice.
type SettlementStatus string

const (
	StatusUnsettled SettlementStatus = "UNSETTLED"
	StatusPartial   SettlementStatus = "PARTIAL"
	StatusSettled   SettlementStatus = "SETTLED"
)

// Invoice is an amount owed by a customer of a company. The derived
// fields (AmountPaid, Balance, Status, Overdue, DaysOverdue,
// LastPaymentAt) are strongly-typed columns maintained exclusively by
// the ledger recompute; nothing else may write them.
type Invoice struct {
	ID            snowflake.ID     `gorm:"primaryKey"`
	CompanyID     snowflake.ID     `gorm:"not null;index"`
	Number        string           `gorm:"type:text;not null"`
	ContactEmail  string           `gorm:"type:text"`
	Currency      string           `gorm:"type:text;not null"`
	AmountTotal   int64            `gorm:"not null"`
	IssueDate     time.Time        `gorm:"not null"`
	DueDate       time.Time        `gorm:"not null;index"`
	AmountPaid    int64            `gorm:"not null;default:0"`
	Balance       int64            `gorm:"not null;default:0"`
	Status        SettlementStatus `gorm:"type:text;not null;default:'UNSETTLED'"`
	Overdue       bool             `gorm:"not null;default:false;index"`
	DaysOverdue   int              `gorm:"not null;default:0"`
	LastPaymentAt *time.Time       `gorm:""`
	CreatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Payment is an append-only settlement event against one invoice.
// Amounts are never edited in place; corrections remove and re-add the
// payment so the ledger recompute runs in the same transaction.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CompanyID snowflake.ID `gorm:"not null;index"`
	InvoiceID snowflake.ID `gorm:"not null;index"`
	Amount    int64        `gorm:"not null"`
	PaidAt    time.Time    `gorm:"not null"`
	Method    string       `gorm:"type:text"`
	Reference string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Snapshot is the derived ledger view of one invoice.
type Snapshot struct {
	AmountPaid    int64            `json:"amount_paid"`
	Balance       int64            `json:"balance"`
	Status        SettlementStatus `json:"status"`
	Overdue       bool             `json:"overdue"`
	DaysOverdue   int              `json:"days_overdue"`
	LastPaymentAt *time.Time       `json:"last_payment_at,omitempty"`
}
