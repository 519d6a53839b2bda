package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/clock"
	"github.com/duetrack/duetrack/internal/invoice/domain"
	obsmetrics "github.com/duetrack/duetrack/internal/observability/metrics"
	"github.com/duetrack/duetrack/pkg/db"
	"github.com/duetrack/duetrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateInvoice(ctx context.Context, input domain.CreateInvoiceInput) (*domain.Invoice, error) {
	if input.CompanyID == 0 {
		return nil, domain.ErrInvalidInvoice
	}
	number := strings.TrimSpace(input.Number)
	if number == "" || input.AmountTotal <= 0 {
		return nil, domain.ErrInvalidInvoice
	}
	if input.IssueDate.IsZero() || input.DueDate.IsZero() || input.DueDate.Before(input.IssueDate) {
		return nil, domain.ErrInvalidInvoice
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := s.clock.Now()
	snap := domain.Recompute(input.AmountTotal, nil)
	snap.Overdue, snap.DaysOverdue = domain.Classify(snap, input.DueDate, now)

	invoice := domain.Invoice{
		ID:           s.genID.Generate(),
		CompanyID:    input.CompanyID,
		Number:       number,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		Currency:     currency,
		AmountTotal:  input.AmountTotal,
		IssueDate:    input.IssueDate.UTC(),
		DueDate:      input.DueDate.UTC(),
		AmountPaid:   snap.AmountPaid,
		Balance:      snap.Balance,
		Status:       snap.Status,
		Overdue:      snap.Overdue,
		DaysOverdue:  snap.DaysOverdue,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateNumber
		}
		return nil, err
	}

	s.audit(ctx, invoice.CompanyID, "invoice.created", invoice.ID, map[string]any{
		"number":       invoice.Number,
		"amount_total": invoice.AmountTotal,
		"due_date":     invoice.DueDate.Format(time.RFC3339),
	})
	return &invoice, nil
}

// DeleteInvoice removes the invoice and its payment history in one
// transaction.
func (s *Service) DeleteInvoice(ctx context.Context, companyID, invoiceID snowflake.ID) error {
	if companyID == 0 || invoiceID == 0 {
		return domain.ErrInvalidInvoice
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, invoiceID); err != nil {
			return err
		}
		if err := s.repo.DeletePayments(ctx, tx, companyID, invoiceID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, companyID, invoiceID)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, companyID, "invoice.deleted", invoiceID, nil)
	return nil
}

// GetInvoice serves the detail view. The overdue flag and day count
// are reclassified against the current clock on every read; the cached
// columns exist for list filtering and the sweep, never as the source
// of truth a caller sees.
func (s *Service) GetInvoice(ctx context.Context, companyID, invoiceID snowflake.ID) (*domain.InvoiceDetail, error) {
	if companyID == 0 || invoiceID == 0 {
		return nil, domain.ErrInvalidInvoice
	}

	invoice, err := s.repo.FindByID(ctx, s.db, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, s.db, companyID, invoiceID)
	if err != nil {
		return nil, err
	}

	snap := snapshotOf(invoice)
	snap.Overdue, snap.DaysOverdue = domain.Classify(snap, invoice.DueDate, s.clock.Now())
	invoice.Overdue = snap.Overdue
	invoice.DaysOverdue = snap.DaysOverdue

	return &domain.InvoiceDetail{
		Invoice:  *invoice,
		Payments: payments,
		Snapshot: snap,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoicesRequest) (domain.ListInvoicesResponse, error) {
	if req.CompanyID == 0 {
		return domain.ListInvoicesResponse{}, domain.ErrInvalidInvoice
	}

	invoices, total, err := s.repo.List(ctx, s.db, domain.ListFilter{
		CompanyID: req.CompanyID,
		Status:    req.Status,
		Overdue:   req.Overdue,
		Limit:     req.Limit(),
		Offset:    req.Offset(),
	})
	if err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	return domain.ListInvoicesResponse{
		PageInfo: pagination.BuildPageInfo(req.Pagination, total),
		Invoices: invoices,
	}, nil
}

// ApplyPayment validates the payment against the locked invoice, then
// commits the payment row and the recomputed snapshot atomically. The
// balance check runs against the full payment set read under the lock,
// so concurrent writers can never overdraw the invoice.
func (s *Service) ApplyPayment(ctx context.Context, companyID, invoiceID snowflake.ID, input domain.PaymentInput) (domain.Snapshot, error) {
	if companyID == 0 || invoiceID == 0 {
		return domain.Snapshot{}, domain.ErrInvalidInvoice
	}
	if input.Amount <= 0 {
		s.obsMetrics.RecordPaymentRejected("non_positive_amount")
		s.audit(ctx, companyID, "payment.rejected", invoiceID, map[string]any{
			"amount": input.Amount,
			"reason": "non_positive_amount",
		})
		return domain.Snapshot{}, domain.ErrInvalidPaymentAmount
	}

	now := s.clock.Now()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	var snap domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}

		payments, err := s.repo.ListPayments(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}

		current := domain.Recompute(invoice.AmountTotal, payments)
		if input.Amount > current.Balance {
			return domain.ErrInvalidPaymentAmount
		}

		payment := domain.Payment{
			ID:        s.genID.Generate(),
			CompanyID: companyID,
			InvoiceID: invoiceID,
			Amount:    input.Amount,
			PaidAt:    paidAt.UTC(),
			Method:    strings.TrimSpace(input.Method),
			Reference: strings.TrimSpace(input.Reference),
			CreatedAt: now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}

		snap = domain.Recompute(invoice.AmountTotal, append(payments, payment))
		snap.Overdue, snap.DaysOverdue = domain.Classify(snap, invoice.DueDate, now)
		return s.repo.UpdateSnapshot(ctx, tx, companyID, invoiceID, snap, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPaymentAmount) {
			s.obsMetrics.RecordPaymentRejected("exceeds_balance")
			s.audit(ctx, companyID, "payment.rejected", invoiceID, map[string]any{
				"amount": input.Amount,
				"reason": "exceeds_balance",
			})
		}
		return domain.Snapshot{}, recomputeErr(err)
	}

	s.obsMetrics.RecordPaymentApplied(string(snap.Status))
	s.audit(ctx, companyID, "payment.applied", invoiceID, map[string]any{
		"amount":  input.Amount,
		"status":  string(snap.Status),
		"balance": snap.Balance,
	})
	return snap, nil
}

// RemovePayment deletes one payment and recomputes the snapshot in the
// same transaction. Corrections are remove-then-reapply; payment rows
// are never edited in place.
func (s *Service) RemovePayment(ctx context.Context, companyID, invoiceID, paymentID snowflake.ID) (domain.Snapshot, error) {
	if companyID == 0 || invoiceID == 0 || paymentID == 0 {
		return domain.Snapshot{}, domain.ErrInvalidInvoice
	}

	now := s.clock.Now()

	var snap domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}

		deleted, err := s.repo.DeletePayment(ctx, tx, companyID, invoiceID, paymentID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrPaymentNotFound
		}

		payments, err := s.repo.ListPayments(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}

		snap = domain.Recompute(invoice.AmountTotal, payments)
		snap.Overdue, snap.DaysOverdue = domain.Classify(snap, invoice.DueDate, now)
		return s.repo.UpdateSnapshot(ctx, tx, companyID, invoiceID, snap, now)
	})
	if err != nil {
		return domain.Snapshot{}, recomputeErr(err)
	}

	s.obsMetrics.RecordPaymentRemoved()
	s.audit(ctx, companyID, "payment.removed", invoiceID, map[string]any{
		"payment_id": paymentID.String(),
		"status":     string(snap.Status),
		"balance":    snap.Balance,
	})
	return snap, nil
}

// RefreshOverdue re-derives the cached overdue flag for one invoice
// under a short row lock. It reports whether the stored flag or day
// count changed.
func (s *Service) RefreshOverdue(ctx context.Context, companyID, invoiceID snowflake.ID) (bool, error) {
	if companyID == 0 || invoiceID == 0 {
		return false, domain.ErrInvalidInvoice
	}

	now := s.clock.Now()

	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}

		snap := snapshotOf(invoice)
		overdue, days := domain.Classify(snap, invoice.DueDate, now)
		if overdue == invoice.Overdue && days == invoice.DaysOverdue {
			return nil
		}

		snap.Overdue = overdue
		snap.DaysOverdue = days
		changed = true
		return s.repo.UpdateSnapshot(ctx, tx, companyID, invoiceID, snap, now)
	})
	if err != nil {
		return false, recomputeErr(err)
	}
	return changed, nil
}

// recomputeErr wraps storage failures out of the recompute transaction
// in the typed error kind. Domain rejections pass through untouched.
func recomputeErr(err error) error {
	if err == nil ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrPaymentNotFound) ||
		errors.Is(err, domain.ErrInvalidPaymentAmount) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrRecomputeFailed, err)
}

func (s *Service) audit(ctx context.Context, companyID snowflake.ID, action string, invoiceID snowflake.ID, metadata map[string]any) {
	target := invoiceID.String()
	if err := s.auditSvc.AuditLog(ctx, &companyID, auditdomain.ActorFromContext(ctx), action, "invoice", &target, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func snapshotOf(invoice *domain.Invoice) domain.Snapshot {
	return domain.Snapshot{
		AmountPaid:    invoice.AmountPaid,
		Balance:       invoice.Balance,
		Status:        invoice.Status,
		Overdue:       invoice.Overdue,
		DaysOverdue:   invoice.DaysOverdue,
		LastPaymentAt: invoice.LastPaymentAt,
	}
}
