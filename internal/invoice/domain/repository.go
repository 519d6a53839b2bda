package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence boundary for invoices and payments.
// Methods take the handle explicitly so the service can run several of
// them inside one transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, int64, error)
	ListSweepCandidates(ctx context.Context, db *gorm.DB, limit int) ([]CandidateRow, error)
	UpdateSnapshot(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID, snap Snapshot, updatedAt time.Time) error
	Delete(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) error

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) ([]Payment, error)
	DeletePayment(ctx context.Context, db *gorm.DB, companyID, invoiceID, paymentID snowflake.ID) (bool, error)
	DeletePayments(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) error
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	CompanyID snowflake.ID
	Status    SettlementStatus
	Overdue   *bool
	Limit     int
	Offset    int
}

// CandidateRow is the projection the overdue sweep iterates. The sweep
// refreshes each row under its own short lock, so only identifiers are
// loaded here.
type CandidateRow struct {
	ID        snowflake.ID `gorm:"column:id"`
	CompanyID snowflake.ID `gorm:"column:company_id"`
}
