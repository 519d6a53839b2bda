package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/pkg/db/pagination"
)

var (
	ErrNotFound             = errors.New("invoice_not_found")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrInvalidInvoice       = errors.New("invalid_invoice")
	ErrDuplicateNumber      = errors.New("duplicate_invoice_number")
	ErrInvalidPaymentAmount = errors.New("invalid_payment_amount")
	ErrRecomputeFailed      = errors.New("recompute_failed")
)

// CreateInvoiceInput creates an invoice. Derived fields start at their
// zero-payment values.
type CreateInvoiceInput struct {
	CompanyID    snowflake.ID
	Number       string
	ContactEmail string
	Currency     string
	AmountTotal  int64
	IssueDate    time.Time
	DueDate      time.Time
}

// PaymentInput records a settlement event against an invoice.
type PaymentInput struct {
	Amount    int64
	PaidAt    time.Time
	Method    string
	Reference string
}

type ListInvoicesRequest struct {
	pagination.Pagination
	CompanyID snowflake.ID
	Status    SettlementStatus
	Overdue   *bool
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// InvoiceDetail is the read model for detail views.
type InvoiceDetail struct {
	Invoice  Invoice   `json:"invoice"`
	Payments []Payment `json:"payments"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Service is the settlement ledger. Every operation takes explicit
// company and invoice identifiers; there is no ambient selection state.
type Service interface {
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error)
	DeleteInvoice(ctx context.Context, companyID, invoiceID snowflake.ID) error
	GetInvoice(ctx context.Context, companyID, invoiceID snowflake.ID) (*InvoiceDetail, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)

	// ApplyPayment validates and commits one payment together with the
	// recomputed invoice snapshot, in a single row-locked transaction.
	ApplyPayment(ctx context.Context, companyID, invoiceID snowflake.ID, input PaymentInput) (Snapshot, error)

	// RemovePayment deletes one payment and recomputes the snapshot in
	// the same transaction.
	RemovePayment(ctx context.Context, companyID, invoiceID, paymentID snowflake.ID) (Snapshot, error)

	// RefreshOverdue re-derives the cached overdue flag for one invoice
	// under a short row lock. Returns true when the stored flag changed.
	RefreshOverdue(ctx context.Context, companyID, invoiceID snowflake.ID) (bool, error)
}
