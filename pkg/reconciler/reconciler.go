/*
Package reconciler implements a coordinator-side sweep that releases
experiments back to Queued when their owning agent stops polling.

Adapted from the teacher's node-heartbeat reconciliation: the same
ticker-loop shape, swapping "node missed its heartbeat" for "agent hasn't
touched its Running experiment in StaleAfter", and "mark node down" for
"release the experiment". There is no node or container model in this
domain, so only the failure-detection half of the teacher's reconciler
survives; the placement/scheduling half has no counterpart here.
*/
package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = 30 * time.Second

// DefaultStaleAfter is how long an experiment may go untouched before its
// owning agent is considered gone.
const DefaultStaleAfter = 5 * time.Minute

// Registry is the subset of pkg/registry.Registry the sweep needs.
type Registry interface {
	ListRunning() ([]types.Experiment, error)
	Release(name string) error
}

// Reconciler periodically releases Running experiments whose agent has
// stopped polling back to Queued, so another agent can pick them up.
type Reconciler struct {
	registry   Registry
	interval   time.Duration
	staleAfter time.Duration
	logger     zerolog.Logger
	// Broker, if set, receives agent.lost whenever the sweep releases a
	// stale experiment. Optional.
	Broker *events.Broker

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Reconciler; interval and staleAfter fall back to their
// package defaults when zero.
func New(registry Registry, interval, staleAfter time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reconciler{
		registry:   registry,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     log.WithComponent("reconciler"),
	}
}

// Start begins the sweep loop in its own goroutine.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(r.stopCh, r.doneCh)
}

// Stop ends the sweep loop and waits for it to exit.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (r *Reconciler) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Dur("stale_after", r.staleAfter).Msg("stale-agent sweep started")

	for {
		select {
		case <-ticker.C:
			if err := r.sweep(); err != nil {
				r.logger.Error().Err(err).Msg("stale-agent sweep cycle failed")
			}
		case <-stopCh:
			r.logger.Info().Msg("stale-agent sweep stopped")
			return
		}
	}
}

func (r *Reconciler) sweep() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	running, err := r.registry.ListRunning()
	if err != nil {
		return fmt.Errorf("list running experiments: %w", err)
	}

	now := time.Now()
	for _, exp := range running {
		lastSeen := exp.LastSeenAt
		if lastSeen.IsZero() {
			lastSeen = exp.QueuedAt
		}
		if now.Sub(lastSeen) <= r.staleAfter {
			continue
		}

		r.logger.Warn().
			Str("experiment", exp.Name).
			Str("agent", exp.Agent).
			Dur("since_last_seen", now.Sub(lastSeen)).
			Msg("agent stopped polling, releasing experiment")

		if err := r.registry.Release(exp.Name); err != nil {
			r.logger.Error().Err(err).Str("experiment", exp.Name).Msg("failed to release stale experiment")
			continue
		}
		if r.Broker != nil {
			r.Broker.Publish(&events.Event{Type: events.EventAgentLost, Message: exp.Agent})
		}
	}

	return nil
}
