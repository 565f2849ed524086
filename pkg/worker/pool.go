package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cuemby/crater/pkg/graph"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/logcapture"
	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/sandbox"
	"github.com/cuemby/crater/pkg/types"
)

// DiskWatch is the subset of pkg/diskwatch.Watcher the pool needs, kept
// narrow so tests can supply a stub.
type DiskWatch interface {
	ShouldPurge() bool
	Pause()
}

// ResultSink records one task's terminal outcome. pkg/results.Store
// implements this directly for a coordinator-local pool; an agent
// process instead supplies an adapter that reports over
// pkg/agentclient, since an agent has no access to the coordinator's
// durable store.
type ResultSink interface {
	Put(exp string, pkg types.Package, tc types.Toolchain, outcome types.Outcome, log []byte) error
}

// Pool runs N workers against a single experiment's task graph until it
// reports Finished or the context is cancelled.
type Pool struct {
	N          int
	Experiment string
	Graph      *graph.Graph
	Results    ResultSink
	Sandbox    sandbox.Sandbox
	Capture    *logcapture.Capture
	DiskWatch  DiskWatch // optional; nil disables the purge check

	parkedMu sync.Mutex
	parkCond *sync.Cond
	parked   int

	notClean int64 // atomic count of tasks that failed via panic recovery
}

// Run blocks until every worker exits: either the graph finished, the
// context was cancelled, or a worker goroutine could not make progress.
// It returns a single joined error if any worker exited abnormally; a
// clean finish returns nil.
func (p *Pool) Run(ctx context.Context) error {
	p.parkCond = sync.NewCond(&p.parkedMu)

	var wg sync.WaitGroup
	errs := make([]error, p.N)
	for i := 0; i < p.N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("worker-%d", i)
			errs[i] = p.workerLoop(ctx, name)
		}(i)
	}
	wg.Wait()

	// A blocked worker pool never un-parks on its own once every other
	// worker has exited; wake any stragglers so Run doesn't hang forever
	// if the last few workers raced the context cancellation.
	p.unparkAll()

	return errors.Join(errs...)
}

// NotClean reports how many tasks were abandoned to a panic during this
// run.
func (p *Pool) NotClean() int64 {
	return atomic.LoadInt64(&p.notClean)
}

func (p *Pool) workerLoop(ctx context.Context, name string) error {
	workerLog := log.WithComponent("worker").With().Str("worker", name).Logger()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.DiskWatch != nil && p.DiskWatch.ShouldPurge() {
			p.DiskWatch.Pause()
		}

		decision := p.Graph.NextTask()
		switch decision.Kind {
		case graph.DecisionFinished:
			return nil
		case graph.DecisionBlocked:
			if !p.park(ctx) {
				return ctx.Err()
			}
		case graph.DecisionTask:
			workerLog.Debug().Int("task_id", int(decision.TaskID)).Msg("dispatching task")
			p.executeWithRecover(ctx, decision)
		}
	}
}

// park blocks until MarkComplete broadcasts progress or ctx is cancelled.
// It returns false if ctx was the reason it woke.
func (p *Pool) park(ctx context.Context) bool {
	p.parkedMu.Lock()
	p.parked++
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.parkedMu.Lock()
			p.parkCond.Broadcast()
			p.parkedMu.Unlock()
		case <-done:
		}
	}()
	p.parkCond.Wait()
	p.parked--
	close(done)
	p.parkedMu.Unlock()
	return ctx.Err() == nil
}

func (p *Pool) unparkAll() {
	p.parkedMu.Lock()
	p.parkCond.Broadcast()
	p.parkedMu.Unlock()
}

func (p *Pool) executeWithRecover(ctx context.Context, decision graph.Decision) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.notClean, 1)
			metrics.TaskPanicsTotal.Inc()
			log.WithComponent("worker").Error().
				Interface("panic", r).
				Int("task_id", int(decision.TaskID)).
				Msg("task execution panicked, recovering")
			p.Graph.MarkComplete(decision.TaskID, true)
			p.unparkAll()
		}
	}()

	p.execute(ctx, decision)
}

func (p *Pool) execute(ctx context.Context, decision graph.Decision) {
	taskKey := strconv.Itoa(int(decision.TaskID))

	guard, err := logcapture.Attach(p.Capture, taskKey)
	if err != nil {
		log.WithComponent("worker").Error().Err(err).Msg("attach log capture")
	}
	defer func() {
		if guard != nil {
			guard.Detach()
		}
	}()

	taskLogger := log.WithTaskID(taskKey)
	if guard != nil {
		taskLogger = guard.Logger()
	}
	taskLogger.Info().Str("kind", string(decision.Task.Kind)).Msg("task started")

	timer := metrics.NewTimer()
	outcome, execErr := p.Sandbox.Execute(ctx, decision.Task)
	timer.ObserveDurationVec(metrics.TaskExecutionDuration, string(decision.Task.Kind))

	var override *sandbox.OverrideError
	if errors.As(execErr, &override) {
		outcome = override.Outcome
		execErr = nil
	}
	if errors.Is(execErr, context.DeadlineExceeded) {
		outcome = types.OutcomeTimedOut
	}

	failed := execErr != nil || isFailureOutcome(outcome)
	if execErr != nil {
		taskLogger.Error().Err(execErr).Msg("task execution error")
	}

	metrics.TasksExecutedTotal.WithLabelValues(string(decision.Task.Kind), string(outcome)).Inc()

	logLines := renderLog(p.Capture.Snapshot(taskKey))
	if decision.Task.Kind != types.TaskRoot && decision.Task.Kind != types.TaskPrepare {
		if putErr := p.Results.Put(p.Experiment, decision.Task.Package, decision.Task.Toolchain, outcome, logLines); putErr != nil {
			taskLogger.Error().Err(putErr).Msg("recording result")
		}
	}
	// Cascaded descendants of a failed Prepare never ran the sandbox; the
	// prepare-log itself is what each one is attributed (spec.md §4.1/§4.3).
	cascaded := p.Graph.MarkComplete(decision.TaskID, failed)
	for _, c := range cascaded {
		if c.Task.Kind == types.TaskRoot {
			continue
		}
		if putErr := p.Results.Put(p.Experiment, c.Task.Package, c.Task.Toolchain, types.OutcomePrepareFailed, logLines); putErr != nil {
			taskLogger.Error().Err(putErr).Int("cascaded_task_id", int(c.TaskID)).Msg("recording cascaded result")
		}
	}
	p.Capture.Discard(taskKey)

	p.unparkAll()
}

func isFailureOutcome(o types.Outcome) bool {
	switch o {
	case types.OutcomeTestPassed, types.OutcomeTestSkipped, types.OutcomeOverriddenTo:
		return false
	default:
		return true
	}
}

func renderLog(records []logcapture.Record) []byte {
	var buf []byte
	for _, r := range records {
		buf = append(buf, []byte(r.Time.Format("15:04:05.000")+" "+r.Level.String()+" "+r.Message+"\n")...)
	}
	return buf
}
