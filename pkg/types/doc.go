/*
Package types defines the core data structures shared across crater:
packages, toolchains, experiments, and the task graph's own Task/Outcome
vocabulary.

# Architecture

types is the foundation of crater's data model. It defines:

  - Package and Toolchain identity (value types, compared by field equality)
  - Experiment lifecycle state (Queued, Running, Completed) and its Report
    side channel
  - Task graph node shape (Kind, Package, Toolchain) and its monotonic
    TaskState progression
  - Outcome, the closed set of terminal results a task can record

All types are JSON-serializable and carry no behavior beyond small key/
validation helpers; the state machines that mutate them live in pkg/graph
and pkg/registry.
*/
package types
