package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/duetrack/duetrack/internal/audit"
	auditdomain "github.com/duetrack/duetrack/internal/audit/domain"
	"github.com/duetrack/duetrack/internal/company"
	companydomain "github.com/duetrack/duetrack/internal/company/domain"
	"github.com/duetrack/duetrack/internal/config"
	"github.com/duetrack/duetrack/internal/invoice"
	invoicedomain "github.com/duetrack/duetrack/internal/invoice/domain"
	"github.com/duetrack/duetrack/internal/observability"
	obsmiddleware "github.com/duetrack/duetrack/internal/observability/logger"
	obsmetrics "github.com/duetrack/duetrack/internal/observability/metrics"
	"github.com/duetrack/duetrack/internal/providers/email"
	"github.com/duetrack/duetrack/internal/reminder"
	reminderdomain "github.com/duetrack/duetrack/internal/reminder/domain"
	"github.com/duetrack/duetrack/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	company.Module,
	invoice.Module,
	reminder.Module,
	email.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	companySvc  companydomain.Service
	invoiceSvc  invoicedomain.Service
	reminderSvc reminderdomain.Service
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	CompanySvc  companydomain.Service
	InvoiceSvc  invoicedomain.Service
	ReminderSvc reminderdomain.Service
	AuditSvc    auditdomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		companySvc:  p.CompanySvc,
		invoiceSvc:  p.InvoiceSvc,
		reminderSvc: p.ReminderSvc,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Companies --------
	api.GET("/companies", s.ListCompanies)
	api.POST("/companies", s.CreateCompany)
	api.GET("/companies/:companyId", s.GetCompany)
	api.PATCH("/companies/:companyId", s.UpdateCompany)

	co := api.Group("/companies/:companyId")

	// -------- Invoices --------
	co.GET("/invoices", s.ListInvoices)
	co.POST("/invoices", s.CreateInvoice)
	co.GET("/invoices/:invoiceId", s.GetInvoice)
	co.DELETE("/invoices/:invoiceId", s.DeleteInvoice)

	// -------- Payments --------
	co.POST("/invoices/:invoiceId/payments", s.ApplyPayment)
	co.DELETE("/invoices/:invoiceId/payments/:paymentId", s.RemovePayment)

	// -------- Reminders --------
	co.GET("/invoices/:invoiceId/reminder-eligibility", s.PreviewReminderEligibility)
	co.GET("/reminder-templates", s.ListReminderTemplates)
	co.POST("/reminder-templates", s.UpsertReminderTemplate)
	co.DELETE("/reminder-templates/:templateId", s.DeleteReminderTemplate)
	co.GET("/automation-config", s.GetAutomationConfig)
	co.PUT("/automation-config", s.UpdateAutomationConfig)
	co.GET("/dispatch-attempts", s.ListDispatchAttempts)
	co.POST("/dispatch-attempts/:attemptId/outcome", s.CloseDispatchAttempt)

	// -------- Audit trail --------
	co.GET("/audit-logs", s.ListAuditLogs)
}

func parseID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
