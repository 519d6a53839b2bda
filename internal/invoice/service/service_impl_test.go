package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/clock"
	"github.com/duetrack/duetrack/internal/invoice/domain"
	"github.com/duetrack/duetrack/internal/invoice/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubAuditSvc struct {
	mu      sync.Mutex
	actions []string
}

func (m *stubAuditSvc) AuditLog(ctx context.Context, companyID *snowflake.ID, actorType string, action string, targetType string, targetID *string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

func (m *stubAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	// One connection serializes transactions the way Postgres row locks
	// would, so concurrent writer tests stay deterministic.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db.Exec(`CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT PRIMARY KEY,
		company_id BIGINT NOT NULL,
		number TEXT NOT NULL,
		contact_email TEXT,
		currency TEXT NOT NULL,
		amount_total BIGINT NOT NULL,
		issue_date TIMESTAMP NOT NULL,
		due_date TIMESTAMP NOT NULL,
		amount_paid BIGINT NOT NULL DEFAULT 0,
		balance BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'UNSETTLED',
		overdue BOOLEAN NOT NULL DEFAULT FALSE,
		days_overdue INTEGER NOT NULL DEFAULT 0,
		last_payment_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	db.Exec(`CREATE TABLE IF NOT EXISTS payments (
		id BIGINT PRIMARY KEY,
		company_id BIGINT NOT NULL,
		invoice_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		paid_at TIMESTAMP NOT NULL,
		method TEXT,
		reference TEXT,
		created_at TIMESTAMP NOT NULL
	)`)

	return db
}

func newTestService(t *testing.T, clk clock.Clock) (domain.Service, *snowflake.Node) {
	t.Helper()
	db := setupDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		AuditSvc: &stubAuditSvc{},
	})
	return svc, node
}

func createInvoice(t *testing.T, svc domain.Service, node *snowflake.Node, total int64, issued, due time.Time) *domain.Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), domain.CreateInvoiceInput{
		CompanyID:   node.Generate(),
		Number:      "INV-1001",
		Currency:    "USD",
		AmountTotal: total,
		IssueDate:   issued,
		DueDate:     due,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoice_Validation(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 0, 14)

	_, err := svc.CreateInvoice(ctx, domain.CreateInvoiceInput{
		CompanyID:   node.Generate(),
		Number:      "",
		AmountTotal: 1000,
		IssueDate:   issued,
		DueDate:     due,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)

	_, err = svc.CreateInvoice(ctx, domain.CreateInvoiceInput{
		CompanyID:   node.Generate(),
		Number:      "INV-1",
		AmountTotal: 0,
		IssueDate:   issued,
		DueDate:     due,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)

	_, err = svc.CreateInvoice(ctx, domain.CreateInvoiceInput{
		CompanyID:   node.Generate(),
		Number:      "INV-2",
		AmountTotal: 1000,
		IssueDate:   issued,
		DueDate:     issued.AddDate(0, 0, -1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInvoice)

	inv := createInvoice(t, svc, node, 120_00, issued, due)
	assert.Equal(t, int64(120_00), inv.Balance)
	assert.Equal(t, domain.StatusUnsettled, inv.Status)
	assert.False(t, inv.Overdue)
}

func TestApplyPayment_PartialThenSettled(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 500_00, issued, issued.AddDate(0, 0, 14))

	snap, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 200_00})
	require.NoError(t, err)
	assert.Equal(t, int64(200_00), snap.AmountPaid)
	assert.Equal(t, int64(300_00), snap.Balance)
	assert.Equal(t, domain.StatusPartial, snap.Status)
	assert.NotNil(t, snap.LastPaymentAt)

	snap, err = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 300_00})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, domain.StatusSettled, snap.Status)
	assert.False(t, snap.Overdue)
	assert.Equal(t, 0, snap.DaysOverdue)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Payments, 2)
	assert.Equal(t, domain.StatusSettled, detail.Invoice.Status)
}

func TestApplyPayment_SettledInvoiceNeverOverdue(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 7))

	// Settle well past the due date. Settlement clears overdue no matter
	// how late the payment lands.
	clk.Advance(40 * 24 * time.Hour)

	snap, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 100_00})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, snap.Status)
	assert.False(t, snap.Overdue)
	assert.Equal(t, 0, snap.DaysOverdue)
}

func TestApplyPayment_RejectsOverpayment(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 14))

	_, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)

	_, err = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: -50})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)

	_, err = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 100_01})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)

	// Rejection leaves no trace: no payment row, no snapshot drift.
	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Payments)
	assert.Equal(t, int64(100_00), detail.Invoice.Balance)
	assert.Equal(t, domain.StatusUnsettled, detail.Invoice.Status)
}

func TestRemovePayment_RecomputesSnapshot(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 300_00, issued, issued.AddDate(0, 0, 14))

	_, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 300_00})
	require.NoError(t, err)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	require.Len(t, detail.Payments, 1)

	snap, err := svc.RemovePayment(ctx, inv.CompanyID, inv.ID, detail.Payments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.AmountPaid)
	assert.Equal(t, int64(300_00), snap.Balance)
	assert.Equal(t, domain.StatusUnsettled, snap.Status)
	assert.Nil(t, snap.LastPaymentAt)

	_, err = svc.RemovePayment(ctx, inv.CompanyID, inv.ID, node.Generate())
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestRemovePayment_ReopensOverdue(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 7))

	_, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 100_00})
	require.NoError(t, err)

	// Removing the settling payment after the due date has passed must
	// leave the invoice overdue again.
	clk.Advance(10 * 24 * time.Hour)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)

	snap, err := svc.RemovePayment(ctx, inv.CompanyID, inv.ID, detail.Payments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnsettled, snap.Status)
	assert.True(t, snap.Overdue)
	assert.Equal(t, 4, snap.DaysOverdue)
}

func TestRefreshOverdue(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := issued.AddDate(0, 0, 7)
	inv := createInvoice(t, svc, node, 100_00, issued, due)

	// Exactly at the due instant: not yet overdue.
	clk.Advance(7 * 24 * time.Hour)
	changed, err := svc.RefreshOverdue(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// One hour past due rounds up to one whole day.
	clk.Advance(time.Hour)
	changed, err = svc.RefreshOverdue(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.True(t, detail.Invoice.Overdue)
	assert.Equal(t, 1, detail.Invoice.DaysOverdue)

	// Re-running with no movement is a no-op.
	changed, err = svc.RefreshOverdue(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// The day count keeps climbing while the balance stays open.
	clk.Advance(48 * time.Hour)
	changed, err = svc.RefreshOverdue(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	detail, err = svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Invoice.DaysOverdue)
}

func TestGetInvoice_ReclassifiesOnRead(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 1))

	// Time passes with no payment and no sweep. The cached columns still
	// say on-time; the detail view must classify against the clock.
	clk.Advance(6 * 24 * time.Hour)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.True(t, detail.Snapshot.Overdue)
	assert.Equal(t, 5, detail.Snapshot.DaysOverdue)
	assert.True(t, detail.Invoice.Overdue)
	assert.Equal(t, 5, detail.Invoice.DaysOverdue)
}

func TestApplyPayment_StorageFailureIsRecomputeFailed(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db := setupDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		AuditSvc: &stubAuditSvc{},
	})
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 14))

	// Break storage out from under the transaction. The failure must
	// surface as the typed recompute error, not a raw driver error.
	require.NoError(t, db.Exec(`DROP TABLE payments`).Error)

	_, err = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 50_00})
	assert.ErrorIs(t, err, domain.ErrRecomputeFailed)

	// Domain rejections keep their own identity.
	_, err = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)
	assert.NotErrorIs(t, err, domain.ErrRecomputeFailed)
}

func TestApplyPayment_StampsUpdatedAtFromClock(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 14))

	clk.Advance(3 * time.Hour)
	paidAt := clk.Now()

	_, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 40_00})
	require.NoError(t, err)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.True(t, detail.Invoice.UpdatedAt.Equal(paidAt))
}

func TestApplyPayment_ConcurrentWritersCannotOverdraw(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 14))

	// Two writers race to settle the full balance. Exactly one payment
	// may land; the loser must be rejected, not queued.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 100_00})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	detail, err := svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Payments, 1)
	assert.Equal(t, int64(0), detail.Invoice.Balance)
	assert.Equal(t, domain.StatusSettled, detail.Invoice.Status)
}

func TestDeleteInvoice_RemovesPayments(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := createInvoice(t, svc, node, 100_00, issued, issued.AddDate(0, 0, 14))

	_, err := svc.ApplyPayment(ctx, inv.CompanyID, inv.ID, domain.PaymentInput{Amount: 40_00})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteInvoice(ctx, inv.CompanyID, inv.ID))

	_, err = svc.GetInvoice(ctx, inv.CompanyID, inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.DeleteInvoice(ctx, inv.CompanyID, inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_FiltersByStatusAndOverdue(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newTestService(t, clk)
	ctx := context.Background()

	companyID := node.Generate()
	issued := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mk := func(number string, due time.Time) *domain.Invoice {
		inv, err := svc.CreateInvoice(ctx, domain.CreateInvoiceInput{
			CompanyID:   companyID,
			Number:      number,
			Currency:    "USD",
			AmountTotal: 100_00,
			IssueDate:   issued,
			DueDate:     due,
		})
		require.NoError(t, err)
		return inv
	}

	late := mk("INV-1", issued.AddDate(0, 0, 7))    // due 2026-02-08, already overdue
	current := mk("INV-2", issued.AddDate(0, 2, 0)) // due 2026-04-01

	_, err := svc.ApplyPayment(ctx, companyID, current.ID, domain.PaymentInput{Amount: 100_00})
	require.NoError(t, err)

	resp, err := svc.List(ctx, domain.ListInvoicesRequest{CompanyID: companyID})
	require.NoError(t, err)
	assert.Len(t, resp.Invoices, 2)
	assert.Equal(t, int64(2), resp.TotalCount)

	overdue := true
	resp, err = svc.List(ctx, domain.ListInvoicesRequest{CompanyID: companyID, Overdue: &overdue})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, late.ID, resp.Invoices[0].ID)

	resp, err = svc.List(ctx, domain.ListInvoicesRequest{CompanyID: companyID, Status: domain.StatusSettled})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, current.ID, resp.Invoices[0].ID)
}
