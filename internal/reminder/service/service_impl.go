package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/clock"
	"github.com/duetrack/duetrack/internal/config"
	obsmetrics "github.com/duetrack/duetrack/internal/observability/metrics"
	"github.com/duetrack/duetrack/internal/reminder/domain"
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
	Cfg        config.Config
	Repo       domain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       domain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reminder.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) UpsertTemplate(ctx context.Context, companyID snowflake.ID, input domain.UpsertTemplateInput) (*domain.ReminderTemplate, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidTemplate
	}
	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Body)
	if subject == "" || body == "" {
		return nil, domain.ErrInvalidTemplate
	}
	switch input.Tier {
	case domain.TierFirst, domain.TierSecond, domain.TierFinal:
	default:
		return nil, domain.ErrInvalidTemplate
	}

	now := s.clock.Now()
	template := domain.ReminderTemplate{
		ID:           s.genID.Generate(),
		CompanyID:    companyID,
		Tier:         input.Tier,
		Subject:      subject,
		Body:         body,
		DaysAfterDue: input.DaysAfterDue,
		Active:       input.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertTemplate(ctx, s.db, &template); err != nil {
		return nil, err
	}

	s.audit(ctx, companyID, "reminder.template_saved", template.ID.String(), map[string]any{
		"tier":   string(template.Tier),
		"active": template.Active,
	})
	return &template, nil
}

func (s *Service) ListTemplates(ctx context.Context, companyID snowflake.ID) ([]domain.ReminderTemplate, error) {
	return s.repo.ListTemplates(ctx, s.db, companyID)
}

func (s *Service) DeleteTemplate(ctx context.Context, companyID, templateID snowflake.ID) error {
	deleted, err := s.repo.DeleteTemplate(ctx, s.db, companyID, templateID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrInvalidTemplate
	}
	s.audit(ctx, companyID, "reminder.template_deleted", templateID.String(), nil)
	return nil
}

// GetAutomationConfig returns the company's saved settings, falling
// back to environment defaults when the company never saved any.
func (s *Service) GetAutomationConfig(ctx context.Context, companyID snowflake.ID) (*domain.AutomationConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	return &domain.AutomationConfig{
		CompanyID:          companyID,
		Enabled:            s.cfg.Automation.Enabled,
		FirstReminderDays:  s.cfg.Automation.FirstReminderDays,
		SecondReminderDays: s.cfg.Automation.SecondReminderDays,
		FinalNoticeDays:    s.cfg.Automation.FinalNoticeDays,
		CooldownDays:       s.cfg.Automation.CooldownDays,
	}, nil
}

func (s *Service) UpdateAutomationConfig(ctx context.Context, companyID snowflake.ID, input domain.UpdateAutomationConfigInput) (*domain.AutomationConfig, error) {
	cfg := domain.AutomationConfig{
		CompanyID:          companyID,
		Enabled:            input.Enabled,
		FirstReminderDays:  input.FirstReminderDays,
		SecondReminderDays: input.SecondReminderDays,
		FinalNoticeDays:    input.FinalNoticeDays,
		CooldownDays:       input.CooldownDays,
		UpdatedAt:          s.clock.Now(),
	}
	if err := domain.ValidateThresholds(cfg); err != nil {
		return nil, err
	}

	if err := s.repo.SaveConfig(ctx, s.db, &cfg); err != nil {
		return nil, err
	}

	s.audit(ctx, companyID, "reminder.config_saved", companyID.String(), map[string]any{
		"enabled":  cfg.Enabled,
		"first":    cfg.FirstReminderDays,
		"second":   cfg.SecondReminderDays,
		"final":    cfg.FinalNoticeDays,
		"cooldown": cfg.CooldownDays,
	})
	return &cfg, nil
}

// Evaluate runs the gate checks in order and stops at the first failing
// one. The checks are ordered cheapest first; template resolution and
// attempt history only run for invoices that are actually overdue.
func (s *Service) Evaluate(ctx context.Context, companyID, invoiceID snowflake.ID) (domain.Evaluation, error) {
	return s.evaluate(ctx, s.db, companyID, invoiceID)
}

func (s *Service) evaluate(ctx context.Context, db *gorm.DB, companyID, invoiceID snowflake.ID) (domain.Evaluation, error) {
	cfg, err := s.GetAutomationConfig(ctx, companyID)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if !cfg.Enabled {
		return domain.Evaluation{Reason: domain.ReasonAutomationDisabled}, nil
	}

	invctx, err := s.repo.LoadInvoiceContext(ctx, db, companyID, invoiceID)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if invctx == nil {
		return domain.Evaluation{}, domain.ErrNotEligible
	}
	if !invctx.Overdue || invctx.Balance <= 0 {
		return domain.Evaluation{Reason: domain.ReasonNotOverdue}, nil
	}

	recipient := strings.TrimSpace(invctx.ContactEmail)
	if recipient == "" {
		recipient = strings.TrimSpace(invctx.CompanyEmail)
	}
	if recipient == "" {
		return domain.Evaluation{Reason: domain.ReasonNoContact, DaysOverdue: invctx.DaysOverdue}, nil
	}

	tier := domain.TierFor(invctx.DaysOverdue, *cfg)

	template, err := s.repo.FindActiveTemplate(ctx, db, companyID, tier)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if template == nil {
		return domain.Evaluation{Reason: domain.ReasonNoTemplate, Tier: tier, DaysOverdue: invctx.DaysOverdue}, nil
	}

	pending, err := s.repo.FindPendingAttempt(ctx, db, invoiceID, tier)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if pending != nil {
		return domain.Evaluation{Reason: domain.ReasonAttemptInFlight, Tier: tier, DaysOverdue: invctx.DaysOverdue}, nil
	}

	terminal, err := s.repo.LastTerminalFailure(ctx, db, invoiceID, tier)
	if err != nil {
		return domain.Evaluation{}, err
	}
	if terminal {
		return domain.Evaluation{Reason: domain.ReasonTerminalFailure, Tier: tier, DaysOverdue: invctx.DaysOverdue}, nil
	}

	if cfg.CooldownDays > 0 {
		lastSent, err := s.repo.LastSentAt(ctx, db, invoiceID, tier)
		if err != nil {
			return domain.Evaluation{}, err
		}
		if lastSent != nil {
			cooldownEnds := lastSent.Add(time.Duration(cfg.CooldownDays) * 24 * time.Hour)
			if s.clock.Now().Before(cooldownEnds) {
				return domain.Evaluation{Reason: domain.ReasonCooldownActive, Tier: tier, DaysOverdue: invctx.DaysOverdue}, nil
			}
		}
	}

	rc := domain.RenderContext{
		CompanyName:   invctx.CompanyName,
		InvoiceNumber: invctx.Number,
		Currency:      invctx.Currency,
		AmountDue:     invctx.Balance,
		DueDate:       invctx.DueDate.UTC().Format("2006-01-02"),
		DaysOverdue:   invctx.DaysOverdue,
	}
	return domain.Evaluation{
		Eligible:    true,
		Tier:        tier,
		Recipient:   recipient,
		DaysOverdue: invctx.DaysOverdue,
		Subject:     domain.Render(template.Subject, rc),
		Body:        domain.Render(template.Body, rc),
	}, nil
}

func (s *Service) OpenAttempt(ctx context.Context, companyID, invoiceID snowflake.ID) (*domain.DispatchAttempt, error) {
	var attempt *domain.DispatchAttempt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eval, err := s.evaluate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if !eval.Eligible {
			s.obsMetrics.RecordReminderSkipped(eval.Reason)
			switch eval.Reason {
			case domain.ReasonNoTemplate:
				return domain.ErrNoTemplateAvailable
			case domain.ReasonAttemptInFlight, domain.ReasonCooldownActive:
				return domain.ErrDuplicateDispatchAttempt
			default:
				return domain.ErrNotEligible
			}
		}

		candidate := &domain.DispatchAttempt{
			ID:        s.genID.Generate(),
			CompanyID: companyID,
			InvoiceID: invoiceID,
			Tier:      eval.Tier,
			Status:    domain.AttemptPending,
			Recipient: eval.Recipient,
			Subject:   eval.Subject,
			Body:      eval.Body,
			OpenedAt:  s.clock.Now(),
		}
		inserted, err := s.repo.InsertAttemptIfAbsent(ctx, tx, candidate)
		if err != nil {
			return err
		}
		if !inserted {
			s.obsMetrics.RecordReminderSkipped(domain.ReasonAttemptInFlight)
			return domain.ErrDuplicateDispatchAttempt
		}
		attempt = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordReminderDispatched(string(attempt.Tier))
	s.audit(ctx, companyID, "reminder.attempt_opened", attempt.ID.String(), map[string]any{
		"invoice_id": invoiceID.String(),
		"tier":       string(attempt.Tier),
		"recipient":  attempt.Recipient,
	})
	return attempt, nil
}

func (s *Service) CloseAttempt(ctx context.Context, companyID, attemptID snowflake.ID, outcome domain.CloseOutcome) (*domain.DispatchAttempt, error) {
	switch outcome.Status {
	case domain.AttemptSent, domain.AttemptFailedRetryable, domain.AttemptFailedTerminal:
	default:
		return nil, domain.ErrInvalidOutcome
	}

	attempt, err := s.repo.FindAttempt(ctx, s.db, companyID, attemptID)
	if err != nil {
		return nil, err
	}

	closedAt := s.clock.Now()
	closed, err := s.repo.CloseAttempt(ctx, s.db, attemptID, outcome.Status, strings.TrimSpace(outcome.Reason), closedAt)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, domain.ErrAttemptNotPending
	}

	attempt.Status = outcome.Status
	attempt.FailureReason = strings.TrimSpace(outcome.Reason)
	attempt.ClosedAt = &closedAt

	s.obsMetrics.RecordAttemptClosed(string(outcome.Status))
	s.audit(ctx, companyID, "reminder.attempt_closed", attemptID.String(), map[string]any{
		"status": string(outcome.Status),
		"reason": attempt.FailureReason,
	})
	return attempt, nil
}

func (s *Service) ListAttempts(ctx context.Context, req domain.ListAttemptsRequest) (domain.ListAttemptsResponse, error) {
	attempts, total, err := s.repo.ListAttempts(ctx, s.db, domain.AttemptFilter{
		CompanyID: req.CompanyID,
		InvoiceID: req.InvoiceID,
		Status:    req.Status,
		Limit:     req.Limit(),
		Offset:    req.Offset(),
	})
	if err != nil {
		return domain.ListAttemptsResponse{}, err
	}
	return domain.ListAttemptsResponse{
		PageInfo: pagination.BuildPageInfo(req.Pagination, total),
		Attempts: attempts,
	}, nil
}

func (s *Service) audit(ctx context.Context, companyID snowflake.ID, action string, targetID string, metadata map[string]any) {
	if err := s.auditSvc.AuditLog(ctx, &companyID, auditdomain.ActorFromContext(ctx), action, "reminder", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
