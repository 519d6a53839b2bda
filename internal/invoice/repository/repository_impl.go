package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := db.WithContext(ctx).
		First(&invoice, "id = ? AND company_id = ?", invoiceID, companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// FindByIDForUpdate locks the invoice row for the remainder of the
// enclosing transaction. SQLite serializes writers at the database
// level, so the clause is skipped there.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*domain.Invoice, error) {
	query := `SELECT * FROM invoices WHERE id = ? AND company_id = ?` + lockClause(db)

	var rows []domain.Invoice
	if err := db.WithContext(ctx).Raw(query, invoiceID, companyID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("company_id = ?", filter.CompanyID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Overdue != nil {
		stmt = stmt.Where("overdue = ?", *filter.Overdue)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []domain.Invoice
	if err := stmt.
		Order("due_date asc, id asc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *repo) ListSweepCandidates(ctx context.Context, db *gorm.DB, limit int) ([]domain.CandidateRow, error) {
	var rows []domain.CandidateRow
	if err := db.WithContext(ctx).Raw(
		`SELECT id, company_id
		 FROM invoices
		 WHERE balance > 0
		   AND status != ?
		 ORDER BY due_date ASC
		 LIMIT ?`,
		domain.StatusSettled,
		limit,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpdateSnapshot(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID, snap domain.Snapshot, updatedAt time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?,
		     balance = ?,
		     status = ?,
		     overdue = ?,
		     days_overdue = ?,
		     last_payment_at = ?,
		     updated_at = ?
		 WHERE id = ? AND company_id = ?`,
		snap.AmountPaid,
		snap.Balance,
		snap.Status,
		snap.Overdue,
		snap.DaysOverdue,
		snap.LastPaymentAt,
		updatedAt.UTC(),
		invoiceID,
		companyID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) error {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM invoices WHERE id = ? AND company_id = ?`,
		invoiceID,
		companyID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	if err := db.WithContext(ctx).
		Where("company_id = ? AND invoice_id = ?", companyID, invoiceID).
		Order("paid_at asc, id asc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) DeletePayment(ctx context.Context, db *gorm.DB, companyID, invoiceID, paymentID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM payments WHERE id = ? AND invoice_id = ? AND company_id = ?`,
		paymentID,
		invoiceID,
		companyID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeletePayments(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payments WHERE invoice_id = ? AND company_id = ?`,
		invoiceID,
		companyID,
	).Error
}

func lockClause(db *gorm.DB) string {
	if db != nil && db.Dialector != nil && strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return ""
	}
	return " FOR UPDATE"
}
