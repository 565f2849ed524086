package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry (Raft) operation metrics
	RegistryApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crater_registry_apply_duration_seconds",
			Help:    "Time taken to apply a registry Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RegistryCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crater_registry_commit_duration_seconds",
			Help:    "Time taken to commit a registry Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crater_reconciliation_duration_seconds",
			Help:    "Time taken for a stale-agent sweep cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crater_reconciliation_cycles_total",
			Help: "Total number of stale-agent sweep cycles completed",
		},
	)

	// Worker pool metrics (C4)
	TasksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crater_tasks_executed_total",
			Help: "Total number of tasks executed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	TaskExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crater_task_execution_duration_seconds",
			Help:    "Time taken to execute a single task in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1200, 1800},
		},
		[]string{"kind"},
	)

	TaskPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crater_task_panics_total",
			Help: "Total number of tasks that panicked during execution",
		},
	)

	// Task graph metrics (C3)
	GraphTasksRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crater_graph_tasks_remaining",
			Help: "Number of tasks not yet in a terminal state in the active graph",
		},
	)

	GraphPendingCrates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crater_graph_pending_crates",
			Help: "Number of packages with at least one non-terminal task in the active graph",
		},
	)

	// Disk watch metrics (C5)
	DiskUsageRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crater_disk_usage_ratio",
			Help: "Fraction of watched disk capacity currently in use",
		},
	)

	DiskPurgesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crater_disk_purges_total",
			Help: "Total number of scratch-space purges triggered by the disk watcher",
		},
	)

	// Report trigger metrics (C8)
	ReportRenderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crater_report_render_attempts_total",
			Help: "Total number of report render attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(RegistryApplyDuration)
	prometheus.MustRegister(RegistryCommitDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(TasksExecutedTotal)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(TaskPanicsTotal)
	prometheus.MustRegister(GraphTasksRemaining)
	prometheus.MustRegister(GraphPendingCrates)
	prometheus.MustRegister(DiskUsageRatio)
	prometheus.MustRegister(DiskPurgesTotal)
	prometheus.MustRegister(ReportRenderAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
