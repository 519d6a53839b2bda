package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/clock"
	"github.com/duetrack/duetrack/internal/config"
	invoicedomain "github.com/duetrack/duetrack/internal/invoice/domain"
	invoicerepo "github.com/duetrack/duetrack/internal/invoice/repository"
	invoiceservice "github.com/duetrack/duetrack/internal/invoice/service"
	"github.com/duetrack/duetrack/internal/providers/email"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
	reminderrepo "github.com/duetrack/duetrack/internal/reminder/repository"
	reminderservice "github.com/duetrack/duetrack/internal/reminder/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditEntry struct {
	actorType string
	action    string
}

type stubAuditSvc struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (m *stubAuditSvc) AuditLog(ctx context.Context, companyID *snowflake.ID, actorType string, action string, targetType string, targetID *string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{actorType: actorType, action: action})
	return nil
}

func (m *stubAuditSvc) actorsFor(action string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var actors []string
	for _, e := range m.entries {
		if e.action == action {
			actors = append(actors, e.actorType)
		}
	}
	return actors
}

func (m *stubAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type sentMail struct {
	To      string
	Subject string
}

// recordingProvider captures sends and can be told to fail.
type recordingProvider struct {
	mu       sync.Mutex
	sent     []sentMail
	failWith error
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.sent = append(p.sent, sentMail{To: to[0], Subject: subject})
	return nil
}

func (p *recordingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fixture struct {
	db       *gorm.DB
	sched    *Scheduler
	invSvc   invoicedomain.Service
	remSvc   reminderdomain.Service
	node     *snowflake.Node
	clk      *clock.FakeClock
	provider *recordingProvider
	audit    *stubAuditSvc
	coID     snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			contact_email TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
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
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			invoice_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			paid_at TIMESTAMP NOT NULL,
			method TEXT,
			reference TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_templates (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			tier TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			days_after_due INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS automation_configs (
			company_id BIGINT PRIMARY KEY,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			first_reminder_days INTEGER NOT NULL,
			second_reminder_days INTEGER NOT NULL,
			final_notice_days INTEGER NOT NULL,
			cooldown_days INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_attempts (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			invoice_id BIGINT NOT NULL,
			tier TEXT NOT NULL,
			status TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			failure_reason TEXT,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP
		)`,
	} {
		db.Exec(ddl)
	}

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	audit := &stubAuditSvc{}

	cfg := config.Config{
		Automation: config.AutomationDefaults{
			Enabled:            true,
			FirstReminderDays:  7,
			SecondReminderDays: 15,
			FinalNoticeDays:    30,
			CooldownDays:       3,
		},
	}

	invSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     invoicerepo.Provide(),
		AuditSvc: audit,
	})
	remSvc := reminderservice.NewService(reminderservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		Repo:     reminderrepo.Provide(),
		AuditSvc: audit,
	})

	provider := &recordingProvider{}
	sched, err := New(Params{
		DB:           db,
		Log:          log,
		Clock:        clk,
		InvoiceSvc:   invSvc,
		InvoiceRepo:  invoicerepo.Provide(),
		ReminderSvc:  remSvc,
		ReminderRepo: reminderrepo.Provide(),
		Email:        provider,
	})
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		sched:    sched,
		invSvc:   invSvc,
		remSvc:   remSvc,
		node:     node,
		clk:      clk,
		provider: provider,
		audit:    audit,
	}
	f.coID = node.Generate()
	now := clk.Now()
	db.Exec(`INSERT INTO companies (id, name, contact_email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		f.coID, "Acme Ltd", "billing@acme.test", now, now)

	return f
}

func (f *fixture) addTemplate(t *testing.T, tier reminderdomain.Tier) {
	t.Helper()
	_, err := f.remSvc.UpsertTemplate(context.Background(), f.coID, reminderdomain.UpsertTemplateInput{
		Tier:    tier,
		Subject: string(tier) + " notice for {{invoice_number}}",
		Body:    "{{currency}} {{amount_due}} outstanding.",
		Active:  true,
	})
	require.NoError(t, err)
}

func (f *fixture) addInvoice(t *testing.T, number string, dueIn time.Duration) *invoicedomain.Invoice {
	t.Helper()
	now := f.clk.Now()
	inv, err := f.invSvc.CreateInvoice(context.Background(), invoicedomain.CreateInvoiceInput{
		CompanyID:   f.coID,
		Number:      number,
		Currency:    "USD",
		AmountTotal: 1000_00,
		IssueDate:   now,
		DueDate:     now.Add(dueIn),
	})
	require.NoError(t, err)
	return inv
}

func attemptStatuses(t *testing.T, db *gorm.DB, invoiceID snowflake.ID) []string {
	t.Helper()
	var statuses []string
	require.NoError(t, db.Raw(
		`SELECT status FROM dispatch_attempts WHERE invoice_id = ? ORDER BY opened_at ASC, id ASC`,
		invoiceID,
	).Scan(&statuses).Error)
	return statuses
}

func TestRunOnce_SweepsAndDispatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)

	inv := f.addInvoice(t, "INV-1", 48*time.Hour)

	// Not yet due: nothing to do.
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 0, f.provider.count())

	// Three days later the sweep flags the invoice and the dispatch job
	// sends the first reminder in the same cycle.
	f.clk.Advance(72 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	detail, err := f.invSvc.GetInvoice(ctx, f.coID, inv.ID)
	require.NoError(t, err)
	assert.True(t, detail.Invoice.Overdue)
	assert.Equal(t, 1, detail.Invoice.DaysOverdue)

	require.Equal(t, 1, f.provider.count())
	assert.Equal(t, "billing@acme.test", f.provider.sent[0].To)
	assert.Equal(t, "FIRST notice for INV-1", f.provider.sent[0].Subject)
	assert.Equal(t, []string{"SENT"}, attemptStatuses(t, f.db, inv.ID))

	// Immediately rerunning hits the cooldown; nothing new goes out.
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.provider.count())
}

func TestRunOnce_EscalatesTiersOverTime(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)
	f.addTemplate(t, reminderdomain.TierSecond)

	inv := f.addInvoice(t, "INV-2", 24*time.Hour)

	// Day 3 overdue: first tier.
	f.clk.Advance(4 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Equal(t, 1, f.provider.count())
	assert.Equal(t, "FIRST notice for INV-2", f.provider.sent[0].Subject)

	// Day 10 overdue: past the first threshold, second tier opens fresh.
	f.clk.Advance(7 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Equal(t, 2, f.provider.count())
	assert.Equal(t, "SECOND notice for INV-2", f.provider.sent[1].Subject)

	assert.Equal(t, []string{"SENT", "SENT"}, attemptStatuses(t, f.db, inv.ID))
}

func TestRunOnce_SettledInvoiceStopsDispatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)

	inv := f.addInvoice(t, "INV-3", 24*time.Hour)

	f.clk.Advance(3 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Equal(t, 1, f.provider.count())

	// Settling the invoice clears overdue; later cycles stay quiet even
	// after the cooldown has expired.
	_, err := f.invSvc.ApplyPayment(ctx, f.coID, inv.ID, invoicedomain.PaymentInput{Amount: 1000_00})
	require.NoError(t, err)

	f.clk.Advance(10 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 1, f.provider.count())

	detail, err := f.invSvc.GetInvoice(ctx, f.coID, inv.ID)
	require.NoError(t, err)
	assert.False(t, detail.Invoice.Overdue)
	assert.Equal(t, invoicedomain.StatusSettled, detail.Invoice.Status)
}

func TestRunOnce_TerminalFailureIsNotRetried(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)

	inv := f.addInvoice(t, "INV-4", 24*time.Hour)
	f.clk.Advance(3 * 24 * time.Hour)

	f.provider.failWith = &email.TerminalError{Err: errors.New("mailbox does not exist")}
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, []string{"FAILED_TERMINAL"}, attemptStatuses(t, f.db, inv.ID))

	// The sender recovers, but the terminal failure pins the tier shut.
	f.provider.failWith = nil
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 0, f.provider.count())
	assert.Equal(t, []string{"FAILED_TERMINAL"}, attemptStatuses(t, f.db, inv.ID))
}

func TestRunOnce_RetryableFailureRetries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)

	inv := f.addInvoice(t, "INV-5", 24*time.Hour)
	f.clk.Advance(3 * 24 * time.Hour)

	f.provider.failWith = errors.New("smtp timeout")
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, []string{"FAILED_RETRYABLE"}, attemptStatuses(t, f.db, inv.ID))

	f.provider.failWith = nil
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Equal(t, 1, f.provider.count())
	assert.Equal(t, []string{"FAILED_RETRYABLE", "SENT"}, attemptStatuses(t, f.db, inv.ID))
}

func TestRunOnce_AuditsJobWritesAsSystemActor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addTemplate(t, reminderdomain.TierFirst)

	inv := f.addInvoice(t, "INV-6", 24*time.Hour)

	f.clk.Advance(3 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.Equal(t, 1, f.provider.count())

	// Attempts opened and closed by the job carry the system actor.
	assert.Equal(t, []string{"system"}, f.audit.actorsFor("reminder.attempt_opened"))
	assert.Equal(t, []string{"system"}, f.audit.actorsFor("reminder.attempt_closed"))

	// The same services called off a plain request context stay api.
	_, err := f.invSvc.ApplyPayment(ctx, f.coID, inv.ID, invoicedomain.PaymentInput{Amount: 1000_00})
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, f.audit.actorsFor("payment.applied"))
}
