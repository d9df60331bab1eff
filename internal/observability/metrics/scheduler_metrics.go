package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Error types for scheduler log lines.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Reasons on meetini_scheduler_job_errors_total.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"
)

// Reminder dispatch outcomes.
const (
	ReminderOutcomeSent    = "sent"
	ReminderOutcomeSkipped = "skipped"
	ReminderOutcomeFailed  = "failed"
	ReminderOutcomeRaced   = "raced"
)

// Reminder cleanup reasons.
const (
	CleanupReasonExpired   = "expired"
	CleanupReasonCancelled = "cancelled"
	CleanupReasonOrphaned  = "orphaned"
)

// postgres SQLSTATE codes that get their own job error reason.
var pgJobReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// SchedulerMetrics are the Prometheus collectors for reminder runs. All
// methods are safe on a nil receiver.
type SchedulerMetrics struct {
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobTimeouts        *prometheus.CounterVec
	jobErrors          *prometheus.CounterVec
	jobSkipped         *prometheus.CounterVec
	batchProcessed     *prometheus.CounterVec
	reminderOutcomes   *prometheus.CounterVec
	recipientsSkipped  *prometheus.CounterVec
	remindersCleaned   *prometheus.CounterVec
	reminderDispatchAt *prometheus.HistogramVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide collectors, registering them on the
// default registry on first use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with service and env const labels taken
// from cfg. Only the first call's cfg is used.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// NewSchedulerMetricsForTest registers a fresh set of collectors on registerer.
func NewSchedulerMetricsForTest(registerer prometheus.Registerer) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, Config{ServiceName: "meetini", Environment: "test"})
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	labels := prometheus.Labels{"service": cfg.meterName(""), "env": env}

	counter := func(name, help string, keys ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: labels}, keys)
		registerer.MustRegister(c)
		return c
	}
	histogram := func(name, help string, buckets []float64, keys ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets, ConstLabels: labels}, keys)
		registerer.MustRegister(h)
		return h
	}

	return &SchedulerMetrics{
		jobRuns: counter("meetini_scheduler_job_runs_total",
			"Scheduler job runs by name.", "job"),
		jobDuration: histogram("meetini_scheduler_job_duration_seconds",
			"Scheduler job latency.",
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}, "job"),
		jobTimeouts: counter("meetini_scheduler_job_timeouts_total",
			"Scheduler jobs that hit their soft deadline.", "job"),
		jobErrors: counter("meetini_scheduler_job_errors_total",
			"Scheduler job errors by reason.", "job", "reason"),
		jobSkipped: counter("meetini_scheduler_run_skipped_total",
			"Runs that did not start because another run held the lock.", "reason"),
		batchProcessed: counter("meetini_scheduler_batch_processed_total",
			"Rows handed to a job, by resource.", "job", "resource"),
		reminderOutcomes: counter("meetini_reminders_dispatched_total",
			"Due reminders handled by the dispatcher, by type and outcome.", "type", "outcome"),
		recipientsSkipped: counter("meetini_reminder_recipients_skipped_total",
			"Participants left out because they have no usable channel.", "type"),
		remindersCleaned: counter("meetini_reminders_cleaned_total",
			"Reminder rows removed by the sweeper.", "reason"),
		reminderDispatchAt: histogram("meetini_reminder_dispatch_delay_seconds",
			"Lag between a reminder's scheduled instant and its delivery.",
			[]float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200}, "type"),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts err under its ClassifySchedulerJobReason label.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) IncRunSkipped(reason string) {
	if m != nil {
		m.jobSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncReminderOutcome(reminderType, outcome string) {
	if m != nil {
		m.reminderOutcomes.WithLabelValues(reminderType, outcome).Inc()
	}
}

func (m *SchedulerMetrics) AddRecipientsSkipped(reminderType string, count int) {
	if m != nil && count > 0 {
		m.recipientsSkipped.WithLabelValues(reminderType).Add(float64(count))
	}
}

func (m *SchedulerMetrics) AddRemindersCleaned(reason string, count int64) {
	if m != nil && count > 0 {
		m.remindersCleaned.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveDispatchDelay records how late a reminder went out. Early sends
// count as zero.
func (m *SchedulerMetrics) ObserveDispatchDelay(reminderType string, delay time.Duration) {
	if m != nil {
		m.reminderDispatchAt.WithLabelValues(reminderType).Observe(max(delay, 0).Seconds())
	}
}

// ClassifySchedulerErrorType returns a low-cardinality error type for logging.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeUnknown
	case isCancellation(err):
		return SchedulerErrorTypeDeadlineExceeded
	case isDBError(err):
		return SchedulerErrorTypeDB
	}
	return SchedulerErrorTypeBusinessRule
}

// IsSchedulerErrorRetryable reports whether the next run may succeed where
// this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && (isCancellation(err) || isDBError(err))
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case isCancellation(err):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return SchedulerJobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgJobReasons[pgErr.Code]; ok {
			return reason
		}
	}
	return SchedulerJobReasonUnknown
}

func isCancellation(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

var gormStoreErrors = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidField,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrUnsupportedDriver,
	gorm.ErrInvalidValue,
	gorm.ErrNotImplemented,
	gorm.ErrDuplicatedKey,
}

// isDBError is true for store failures; a missing row is a business outcome.
func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	for _, target := range gormStoreErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
