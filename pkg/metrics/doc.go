/*
Package metrics defines and registers crater's Prometheus metrics and
exposes them over HTTP for scraping.

Metrics are grouped by the component that emits them:

	crater_registry_apply_duration_seconds     Raft log apply latency (registry)
	crater_registry_commit_duration_seconds    Raft commit latency (registry)

	crater_reconciliation_duration_seconds     stale-agent sweep cycle latency
	crater_reconciliation_cycles_total         sweep cycles completed

	crater_tasks_executed_total{kind,outcome}  tasks executed by kind/outcome
	crater_task_execution_duration_seconds{kind}  per-task execution latency
	crater_task_panics_total                   tasks that panicked mid-execution

	crater_graph_tasks_remaining                tasks not yet terminal in the active graph

	crater_disk_usage_ratio                     fraction of watched disk capacity in use
	crater_disk_purges_total                    scratch-space purges triggered

	crater_report_render_attempts_total{result}  report render attempts, result="success"|"failure"

All metrics are registered against the default Prometheus registry at
package init. Handler returns the promhttp handler mounted at /metrics
by the coordinator.

# Usage

	import "github.com/cuemby/crater/pkg/metrics"

	timer := metrics.NewTimer()
	err := doWork()
	timer.ObserveDurationVec(metrics.TaskExecutionDuration, string(kind))

# Alerting

	- No leader / registry stuck: no successful crater_registry_commit_duration_seconds
	  observations within a sweep window.
	- Elevated task failure rate: rate(crater_tasks_executed_total{outcome=~".*_failed"}[5m])
	- Scratch space under pressure: crater_disk_usage_ratio approaching 1.
	- Report pipeline broken: rate(crater_report_render_attempts_total{result="failure"}[15m]) > 0
*/
package metrics
