/*
Package reconciler is documented in reconciler.go; this file only carries
the architecture sketch.

	┌────────────────── STALE-AGENT SWEEP ──────────────────┐
	│                                                        │
	│  every Interval: ListRunning()                        │
	│    for each Running experiment:                       │
	│      now - max(LastSeenAt, QueuedAt) > StaleAfter?     │
	│        -> Release(name)  (Running -> Queued, Agent="") │
	└─────────────────────────────────────────────────────────┘

LastSeenAt is bumped by pkg/registry.Registry.Touch; pkg/agentapi calls
Touch from record-result and from next-experiment when the agent already
has a Running experiment. complete-experiment does not call it.
*/
package reconciler
