package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the settlement ledger
// and the follow-up pipeline.
type Metrics struct {
	paymentsApplied    *prometheus.CounterVec
	paymentsRejected   *prometheus.CounterVec
	paymentsRemoved    prometheus.Counter
	remindersDispatch  *prometheus.CounterVec
	remindersSkipped   *prometheus.CounterVec
	attemptsClosed     *prometheus.CounterVec
	sweepRefreshed     prometheus.Counter
	schedulerJobRuns   *prometheus.CounterVec
	schedulerJobErrors *prometheus.CounterVec
	schedulerDuration  *prometheus.HistogramVec
}

// New registers the instruments on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the instruments on the given registerer.
// Tests pass a private registry to avoid duplicate registration.
func NewWithRegisterer(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		paymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_payments_applied_total",
			Help: "Payments committed to the ledger by settlement outcome.",
		}, []string{"status"}),
		paymentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_payments_rejected_total",
			Help: "Payment mutations rejected before commit by reason.",
		}, []string{"reason"}),
		paymentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duetrack_payments_removed_total",
			Help: "Payments removed from the ledger.",
		}),
		remindersDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_reminders_dispatched_total",
			Help: "Reminder attempts opened by escalation tier.",
		}, []string{"tier"}),
		remindersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_reminders_skipped_total",
			Help: "Reminder evaluations that did not dispatch, by reason code.",
		}, []string{"reason"}),
		attemptsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_dispatch_attempts_closed_total",
			Help: "Dispatch attempts closed by terminal status.",
		}, []string{"status"}),
		sweepRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duetrack_overdue_sweep_refreshed_total",
			Help: "Invoices whose cached overdue flag was refreshed by the sweep.",
		}),
		schedulerJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_scheduler_job_runs_total",
			Help: "Scheduler job runs by name.",
		}, []string{"job"}),
		schedulerJobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duetrack_scheduler_job_errors_total",
			Help: "Scheduler job failures by name.",
		}, []string{"job"}),
		schedulerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "duetrack_scheduler_job_duration_seconds",
			Help:    "Scheduler job latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
	}

	registerer.MustRegister(
		m.paymentsApplied,
		m.paymentsRejected,
		m.paymentsRemoved,
		m.remindersDispatch,
		m.remindersSkipped,
		m.attemptsClosed,
		m.sweepRefreshed,
		m.schedulerJobRuns,
		m.schedulerJobErrors,
		m.schedulerDuration,
	)

	return m
}

func (m *Metrics) RecordPaymentApplied(status string) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) RecordPaymentRejected(reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) RecordPaymentRemoved() {
	if m == nil {
		return
	}
	m.paymentsRemoved.Inc()
}

func (m *Metrics) RecordReminderDispatched(tier string) {
	if m == nil {
		return
	}
	m.remindersDispatch.WithLabelValues(normalizeLabel(tier)).Inc()
}

func (m *Metrics) RecordReminderSkipped(reason string) {
	if m == nil {
		return
	}
	m.remindersSkipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) RecordAttemptClosed(status string) {
	if m == nil {
		return
	}
	m.attemptsClosed.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) AddSweepRefreshed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepRefreshed.Add(float64(count))
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.schedulerJobRuns.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *Metrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.schedulerJobErrors.WithLabelValues(normalizeLabel(job)).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.schedulerDuration.WithLabelValues(normalizeLabel(job)).Observe(seconds)
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
