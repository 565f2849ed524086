/*
Package report implements C8: an event-driven background trigger that
renders a report once an experiment completes, retrying failures with
exponential backoff and recording permanent failure in the registry
without reverting the experiment's Completed status.

Grounded on the teacher's pkg/events.Broker feeding a dedicated consumer
goroutine, the same shape as the teacher's reconciler/scheduler tickers
but event-driven rather than polling, since "experiment completed" is a
discrete transition rather than something that needs periodic
re-sampling.
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/notify"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/types"
)

// Renderer produces a report artifact for an experiment's recorded
// results. Out of scope per spec.md §1; pkg/report/html.go supplies a
// minimal default so the repo runs end to end.
type Renderer interface {
	Render(ctx context.Context, experiment string, store *results.Store) ([]byte, error)
}

// RegistrySetter is the subset of pkg/registry.Registry the trigger needs:
// recording rendering outcome, and looking the experiment back up for its
// issue reference once rendering succeeds.
type RegistrySetter interface {
	SetReportStatus(name string, status types.ReportStatus) error
	Get(name string) (types.Experiment, bool, error)
}

// ArtifactStore persists a rendered report artifact, keyed by experiment
// name, and can report back a URL a human can open to view it.
type ArtifactStore interface {
	Put(experiment string, artifact []byte) error
	URL(experiment string) string
}

// MaxAttempts bounds the exponential-backoff retry loop per spec.md §4.8
// before a failure is considered permanent.
const MaxAttempts = 5

// baseBackoff and maxBackoff are vars, not consts, so tests can shrink
// them instead of waiting out a real multi-second backoff.
var (
	baseBackoff = time.Second
	maxBackoff  = time.Minute
)

// Trigger drains a buffered queue of experiment names fed by Enqueue and
// by a pkg/events subscription to ExperimentCompleted, rendering each
// exactly once (retried on failure).
type Trigger struct {
	Renderer Renderer
	Results  *results.Store
	Registry RegistrySetter
	Artifact ArtifactStore
	Broker   *events.Broker
	// Notifier posts the completion message once a report renders
	// successfully, carrying its URL. Optional; nil disables it.
	Notifier notify.Notifier

	queue chan string
}

// New returns a Trigger with an internal queue sized for burst
// completions; call Run in its own goroutine to start draining it.
func New(renderer Renderer, store *results.Store, registry RegistrySetter, artifact ArtifactStore, broker *events.Broker) *Trigger {
	return &Trigger{
		Renderer: renderer,
		Results:  store,
		Registry: registry,
		Artifact: artifact,
		Broker:   broker,
		queue:    make(chan string, 256),
	}
}

// Enqueue schedules experiment for rendering. Safe to call from any
// goroutine, including pkg/agentapi's complete-experiment handler.
func (t *Trigger) Enqueue(experiment string) {
	select {
	case t.queue <- experiment:
	default:
		log.WithComponent("report").Warn().Str("experiment", experiment).
			Msg("report queue full, dropping enqueue")
	}
}

// Run drains both the direct Enqueue channel and, if Broker is set, an
// events subscription for ExperimentCompleted, until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context) {
	var sub events.Subscriber
	if t.Broker != nil {
		sub = t.Broker.Subscribe()
		defer t.Broker.Unsubscribe(sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case experiment := <-t.queue:
			t.renderWithRetry(ctx, experiment)
		case evt := <-sub:
			if evt != nil && evt.Type == events.EventExperimentCompleted {
				t.renderWithRetry(ctx, evt.Message)
			}
		}
	}
}

func (t *Trigger) renderWithRetry(ctx context.Context, experiment string) {
	reportLog := log.WithComponent("report")
	backoff := baseBackoff

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		artifact, err := t.Renderer.Render(ctx, experiment, t.Results)
		if err == nil {
			if t.Artifact != nil {
				if putErr := t.Artifact.Put(experiment, artifact); putErr != nil {
					err = fmt.Errorf("persist artifact: %w", putErr)
				}
			}
		}
		if err == nil {
			metrics.ReportRenderAttemptsTotal.WithLabelValues("success").Inc()
			if setErr := t.Registry.SetReportStatus(experiment, types.ReportRendered); setErr != nil {
				reportLog.Error().Err(setErr).Str("experiment", experiment).Msg("record report status")
			}
			if t.Broker != nil {
				t.Broker.Publish(&events.Event{Type: events.EventReportRendered, Message: experiment})
			}
			t.notifyCompletion(ctx, experiment)
			return
		}

		metrics.ReportRenderAttemptsTotal.WithLabelValues("failure").Inc()
		reportLog.Warn().Err(err).Str("experiment", experiment).Int("attempt", attempt).Msg("render failed, retrying")

		if attempt == MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	reportLog.Error().Str("experiment", experiment).Msg("report rendering permanently failed")
	if err := t.Registry.SetReportStatus(experiment, types.ReportFailed); err != nil {
		reportLog.Error().Err(err).Str("experiment", experiment).Msg("record report failure")
	}
	if t.Broker != nil {
		t.Broker.Publish(&events.Event{Type: events.EventReportFailed, Message: experiment})
	}
}

// notifyCompletion posts the experiment's completion, including the
// rendered report's URL, to its issue reference. Best-effort: a failure
// here never reverts the report status already recorded.
func (t *Trigger) notifyCompletion(ctx context.Context, experiment string) {
	if t.Notifier == nil || t.Artifact == nil {
		return
	}
	reportLog := log.WithComponent("report")

	exp, found, err := t.Registry.Get(experiment)
	if err != nil || !found || exp.IssueRef == "" {
		if err != nil {
			reportLog.Warn().Err(err).Str("experiment", experiment).Msg("look up experiment for completion notice")
		}
		return
	}

	msg := fmt.Sprintf("experiment %s completed, report: %s", experiment, t.Artifact.URL(experiment))
	if err := t.Notifier.Notify(ctx, exp.IssueRef, msg); err != nil {
		reportLog.Warn().Err(err).Str("experiment", experiment).Msg("completion notification failed, best effort")
	}
}
