/*
Package worker implements C4, the fixed-size task-executing pool: a
goroutine per worker slot, a park/unpark rendezvous for when the graph has
no ready task, panic recovery per task, and override-outcome handling.

# Architecture

	┌─────────────────────── WORKER POOL ────────────────────────┐
	│                                                              │
	│  worker-0 ─┐                                                │
	│  worker-1 ─┼─> graph.NextTask() ──> Task: execute, MarkComplete, unpark
	│  worker-N ─┘                   └──> Blocked: park on condvar
	│                                 └──> Finished: goroutine exits
	│                                                              │
	│  execute(): Attach log capture -> Sandbox.Execute ->         │
	│             Results.Put -> MarkComplete -> Discard capture   │
	│                                                              │
	│  panic inside execute() is recovered per task: that task is │
	│  marked Failed, the pool keeps running, NotClean increments  │
	└──────────────────────────────────────────────────────────┘

Grounded on the teacher's worker.go (goroutine-per-unit dispatch,
defer-based cleanup) and scheduler.go (mutex-guarded cycle), redesigned
from polling-on-a-ticker to blocking-on-a-condvar because the task graph
only changes at discrete MarkComplete events.
*/
package worker
