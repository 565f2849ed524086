// Package sandbox defines the task-execution boundary the worker pool
// calls into, and a containerd-backed default implementation.
package sandbox

import (
	"context"
	"fmt"

	"github.com/cuemby/crater/pkg/types"
)

// Sandbox executes one task (a package build/test/lint invocation under a
// pinned toolchain) and reports its terminal Outcome. Implementations are
// responsible for any per-task timeout (ContainerdSandbox sets none and
// stops only when ctx is done); an Execute error wrapping
// context.DeadlineExceeded is recorded by the worker pool as
// OutcomeTimedOut.
type Sandbox interface {
	Execute(ctx context.Context, task types.Task) (types.Outcome, error)
}

// AvailabilityChecker is implemented by Sandboxes that can cheaply report
// whether their underlying runtime is reachable before an experiment's
// task graph is dispatched, mirroring rustwide's docker_running preflight
// ahead of run_ex: failing fast here means a coordinator outage or a dead
// containerd daemon surfaces as one clear log line instead of N confusing
// per-task failures.
type AvailabilityChecker interface {
	Available(ctx context.Context) error
}

// OverrideError lets a Sandbox implementation (or an operator-facing
// wrapper around one) report an outcome out of band from the normal
// success/failure inference. The
// worker pool unwraps this via errors.As and records Outcome instead of
// inferring one from err itself.
type OverrideError struct {
	Outcome types.Outcome
	Reason  string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("sandbox: outcome overridden to %s: %s", e.Outcome, e.Reason)
}
