/*
Package graph implements C3, the per-experiment task graph: arena-allocated
nodes, a single-mutex FIFO ready queue, cascade-skip on failure, and a DOT
encoding round trip via gonum.

# Architecture

	┌───────────────────── TASK GRAPH ──────────────────────────┐
	│                                                             │
	│   Prepare(pkgA) ──┬──> BuildAndTest(pkgA, stable) ──┐      │
	│                   └──> BuildAndTest(pkgA, beta)  ───┤      │
	│                                                      ├──> Root
	│   Prepare(pkgB) ──┬──> BuildAndTest(pkgB, stable) ──┤      │
	│                   └──> BuildAndTest(pkgB, beta)  ───┘      │
	│                                                             │
	│  NextTask: pop FIFO ready queue under g.mu, or report      │
	│            Blocked/Finished                                │
	│  MarkComplete: decrement successors' pending-prereq count, │
	│            enqueue newly-ready nodes; a failed Prepare     │
	│            instead cascade-skips its own descendants only  │
	│            (Root always drains through the normal path)    │
	│  PendingCratesCount: count of packages with a non-terminal │
	│            task, for operator/test drain checks             │
	└─────────────────────────────────────────────────────────┘

Grounded on the teacher's scheduler.go mutex-guarded single-pass cycle,
generalized from "scan services/nodes" to "scan ready tasks". DOT
encode/decode is new, built on gonum.org/v1/gonum/graph/encoding/dot rather
than a hand-rolled format.
*/
package graph
