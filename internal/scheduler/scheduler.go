// Package scheduler drives the periodic overdue sweep and reminder
// dispatch pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/clock"
	invoicedomain "github.com/duetrack/duetrack/internal/invoice/domain"
	obsmetrics "github.com/duetrack/duetrack/internal/observability/metrics"
	"github.com/duetrack/duetrack/internal/providers/email"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const leaderLockKey = "duetrack:scheduler:leader"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	InvoiceSvc   invoicedomain.Service
	InvoiceRepo  invoicedomain.Repository
	ReminderSvc  reminderdomain.Service
	ReminderRepo reminderdomain.Repository
	Email        email.Provider
	Locker       *Locker             `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	Config       Config              `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	invoiceSvc   invoicedomain.Service
	invoiceRepo  invoicedomain.Repository
	reminderSvc  reminderdomain.Service
	reminderRepo reminderdomain.Repository
	email        email.Provider
	locker       *Locker
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil || p.InvoiceRepo == nil || p.ReminderSvc == nil || p.ReminderRepo == nil || p.Email == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler"),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		invoiceSvc:   p.InvoiceSvc,
		invoiceRepo:  p.InvoiceRepo,
		reminderSvc:  p.ReminderSvc,
		reminderRepo: p.ReminderRepo,
		email:        p.Email,
		locker:       p.Locker,
		obsMetrics:   p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	// Audit entries written from a job belong to the system actor, not
	// the api default.
	ctx = auditdomain.WithActor(ctx, auditdomain.ActorTypeSystem)

	s.obsMetrics.IncJobRun(name)

	err := fn(ctx)
	s.obsMetrics.ObserveJobDuration(name, time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	s.obsMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one sweep-then-dispatch cycle. With a locker
// configured, only the lease holder runs; everyone else skips quietly.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, leaderLockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("leader lock unavailable", zap.Error(err))
			return nil
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, leaderLockKey, token); err != nil {
				s.log.Warn("leader lock release failed", zap.Error(err))
			}
		}()
	}

	return errors.Join(
		s.runJob(ctx, "overdue_sweep", s.OverdueSweepJob),
		s.runJob(ctx, "reminder_dispatch", s.ReminderDispatchJob),
	)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// OverdueSweepJob refreshes the cached overdue flag of every invoice
// with an open balance. Each invoice is refreshed under its own short
// row lock so the sweep never blocks payment writes for long.
func (s *Scheduler) OverdueSweepJob(ctx context.Context) error {
	candidates, err := s.invoiceRepo.ListSweepCandidates(ctx, s.db, s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}

	var refreshed int
	var errs error
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.invoiceSvc.RefreshOverdue(ctx, candidate.CompanyID, candidate.ID)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if changed {
			refreshed++
		}
	}

	s.obsMetrics.AddSweepRefreshed(refreshed)
	if refreshed > 0 {
		s.log.Info("overdue sweep refreshed invoices", zap.Int("count", refreshed))
	}
	return errs
}

// ReminderDispatchJob delivers pending attempts left over from earlier
// runs, then opens and delivers new attempts for overdue invoices the
// gate lets through.
func (s *Scheduler) ReminderDispatchJob(ctx context.Context) error {
	pending, err := s.reminderRepo.ListPendingAttempts(ctx, s.db, s.cfg.DispatchBatchSize)
	if err != nil {
		return err
	}

	var errs error
	for _, attempt := range pending {
		if ctx.Err() != nil {
			break
		}
		errs = errors.Join(errs, s.deliver(ctx, &attempt))
	}

	refs, err := s.reminderRepo.ListOverdueInvoiceRefs(ctx, s.db, s.cfg.DispatchBatchSize)
	if err != nil {
		return errors.Join(errs, err)
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		attempt, err := s.reminderSvc.OpenAttempt(ctx, ref.CompanyID, ref.InvoiceID)
		if err != nil {
			// Ineligible invoices are the normal case, not failures.
			if errors.Is(err, reminderdomain.ErrNotEligible) ||
				errors.Is(err, reminderdomain.ErrNoTemplateAvailable) ||
				errors.Is(err, reminderdomain.ErrDuplicateDispatchAttempt) {
				continue
			}
			errs = errors.Join(errs, err)
			continue
		}
		errs = errors.Join(errs, s.deliver(ctx, attempt))
	}
	return errs
}

// deliver hands one pending attempt to the email provider and closes it
// with the observed outcome.
func (s *Scheduler) deliver(ctx context.Context, attempt *reminderdomain.DispatchAttempt) error {
	outcome := reminderdomain.CloseOutcome{Status: reminderdomain.AttemptSent}

	if err := s.email.Send(ctx, []string{attempt.Recipient}, attempt.Subject, attempt.Body); err != nil {
		outcome.Reason = err.Error()
		if email.IsTerminal(err) {
			outcome.Status = reminderdomain.AttemptFailedTerminal
		} else {
			outcome.Status = reminderdomain.AttemptFailedRetryable
		}
		s.log.Warn("reminder delivery failed",
			zap.String("attempt_id", attempt.ID.String()),
			zap.String("status", string(outcome.Status)),
			zap.Error(err),
		)
	}

	if _, err := s.reminderSvc.CloseAttempt(ctx, attempt.CompanyID, attempt.ID, outcome); err != nil {
		// A lost close race means someone else already settled it.
		if errors.Is(err, reminderdomain.ErrAttemptNotPending) {
			return nil
		}
		return err
	}
	return nil
}
