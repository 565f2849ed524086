/*
Package report implements C8: rendering an experiment's results into a
durable artifact once the experiment completes, retried with exponential
backoff, without ever reverting the experiment's own Completed status on
permanent failure.

# Architecture

	┌───────────────────── REPORT TRIGGER ─────────────────────┐
	│                                                           │
	│  agentapi.handleCompleteExperiment ─> Enqueue(name) ──┐   │
	│                                                       │   │
	│  events.Broker (ExperimentCompleted) ─> Subscribe() ──┼─> Run(ctx)
	│                                                       │   │
	│                          render, retry w/ backoff <──┘   │
	│                          success -> Artifact.Put,        │
	│                                     registry.ReportRendered│
	│                          permanent failure (5 attempts) ->│
	│                                     registry.ReportFailed │
	└───────────────────────────────────────────────────────────┘

Grounded on the teacher's pkg/events.Broker fan-out paired with a
dedicated consumer goroutine; the exponential-backoff retry loop is new
(pkg/worker does not retry tasks). html.go
supplies the minimal default Renderer, since the report's own markup is
out of scope.
*/
package report
