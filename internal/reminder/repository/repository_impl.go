package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duetrack/duetrack/internal/reminder/domain"
	dbpkg "github.com/duetrack/duetrack/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertTemplate(ctx context.Context, db *gorm.DB, template *domain.ReminderTemplate) error {
	return db.WithContext(ctx).Save(template).Error
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]domain.ReminderTemplate, error) {
	var templates []domain.ReminderTemplate
	if err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("tier asc, created_at asc").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repo) FindActiveTemplate(ctx context.Context, db *gorm.DB, companyID snowflake.ID, tier domain.Tier) (*domain.ReminderTemplate, error) {
	var template domain.ReminderTemplate
	err := db.WithContext(ctx).
		Where("company_id = ? AND tier = ? AND active = ?", companyID, tier, true).
		Order("created_at asc").
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *repo) DeleteTemplate(ctx context.Context, db *gorm.DB, companyID, templateID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM reminder_templates WHERE id = ? AND company_id = ?`,
		templateID,
		companyID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) GetConfig(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*domain.AutomationConfig, error) {
	var cfg domain.AutomationConfig
	err := db.WithContext(ctx).
		First(&cfg, "company_id = ?", companyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repo) SaveConfig(ctx context.Context, db *gorm.DB, cfg *domain.AutomationConfig) error {
	return db.WithContext(ctx).Save(cfg).Error
}

func (r *repo) LoadInvoiceContext(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (*domain.InvoiceContext, error) {
	var rows []domain.InvoiceContext
	if err := db.WithContext(ctx).Raw(
		`SELECT
			i.id,
			i.company_id,
			i.number,
			i.contact_email,
			i.currency,
			i.balance,
			i.status,
			i.overdue,
			i.days_overdue,
			i.due_date,
			c.name AS company_name,
			c.contact_email AS company_email
		 FROM invoices i
		 JOIN companies c ON c.id = i.company_id
		 WHERE i.id = ? AND i.company_id = ?`,
		invoiceID,
		companyID,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindPendingAttempt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier domain.Tier) (*domain.DispatchAttempt, error) {
	var attempt domain.DispatchAttempt
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND tier = ? AND status = ?", invoiceID, tier, domain.AttemptPending).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repo) LastSentAt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier domain.Tier) (*time.Time, error) {
	var attempt domain.DispatchAttempt
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND tier = ? AND status = ?", invoiceID, tier, domain.AttemptSent).
		Order("closed_at desc").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return attempt.ClosedAt, nil
}

func (r *repo) LastTerminalFailure(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, tier domain.Tier) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).
		Model(&domain.DispatchAttempt{}).
		Where("invoice_id = ? AND tier = ? AND status = ?", invoiceID, tier, domain.AttemptFailedTerminal).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertAttemptIfAbsent is the compare-and-set guard: the insert lands
// only when no pending attempt exists for the same (invoice, tier).
func (r *repo) InsertAttemptIfAbsent(ctx context.Context, db *gorm.DB, attempt *domain.DispatchAttempt) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO dispatch_attempts (
			id, company_id, invoice_id, tier, status,
			recipient, subject, body, failure_reason, opened_at, closed_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL
		WHERE NOT EXISTS (
			SELECT 1 FROM dispatch_attempts
			WHERE invoice_id = ? AND tier = ? AND status = ?
		)`,
		attempt.ID,
		attempt.CompanyID,
		attempt.InvoiceID,
		attempt.Tier,
		attempt.Status,
		attempt.Recipient,
		attempt.Subject,
		attempt.Body,
		attempt.FailureReason,
		attempt.OpenedAt,
		attempt.InvoiceID,
		attempt.Tier,
		domain.AttemptPending,
	)
	if result.Error != nil {
		// A concurrent writer can slip between the NOT EXISTS check and
		// the insert; the partial unique index turns that into a
		// duplicate-key error, which is just the CAS losing.
		if dbpkg.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindAttempt(ctx context.Context, db *gorm.DB, companyID, attemptID snowflake.ID) (*domain.DispatchAttempt, error) {
	var attempt domain.DispatchAttempt
	err := db.WithContext(ctx).
		First(&attempt, "id = ? AND company_id = ?", attemptID, companyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// CloseAttempt transitions PENDING to the given terminal status. The
// status guard in the WHERE clause makes double-closes lose cleanly.
func (r *repo) CloseAttempt(ctx context.Context, db *gorm.DB, attemptID snowflake.ID, status domain.AttemptStatus, reason string, closedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE dispatch_attempts
		 SET status = ?, failure_reason = ?, closed_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		reason,
		closedAt,
		attemptID,
		domain.AttemptPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListAttempts(ctx context.Context, db *gorm.DB, filter domain.AttemptFilter) ([]domain.DispatchAttempt, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.DispatchAttempt{}).
		Where("company_id = ?", filter.CompanyID)

	if filter.InvoiceID != 0 {
		stmt = stmt.Where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var attempts []domain.DispatchAttempt
	if err := stmt.
		Order("opened_at desc, id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

func (r *repo) ListOverdueInvoiceRefs(ctx context.Context, db *gorm.DB, limit int) ([]domain.InvoiceRef, error) {
	var refs []domain.InvoiceRef
	if err := db.WithContext(ctx).Raw(
		`SELECT id, company_id
		 FROM invoices
		 WHERE overdue = ? AND balance > 0
		 ORDER BY days_overdue DESC
		 LIMIT ?`,
		true,
		limit,
	).Scan(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *repo) ListPendingAttempts(ctx context.Context, db *gorm.DB, limit int) ([]domain.DispatchAttempt, error) {
	var attempts []domain.DispatchAttempt
	if err := db.WithContext(ctx).
		Where("status = ?", domain.AttemptPending).
		Order("opened_at asc").
		Limit(limit).
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
