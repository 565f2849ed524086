package sandbox

import (
	"context"
	"fmt"

	"github.com/cuemby/crater/pkg/types"
)

// Fetcher is the subset of pkg/fetcher.Fetcher a FetchingSandbox needs,
// kept narrow here so pkg/sandbox never imports pkg/fetcher's git/registry
// implementation details.
type Fetcher interface {
	Fetch(ctx context.Context, pkg types.Package) (sourceDir string, err error)
}

// FetchingSandbox resolves a package's source tree via Fetcher before
// every Prepare task, then delegates to Inner for the actual sandboxed
// invocation (toolchain-independent fetch/unpack happens outside the
// container, exactly once per package, per spec.md's Prepare semantics).
// Non-Prepare tasks pass straight through to Inner.
type FetchingSandbox struct {
	Inner   Sandbox
	Fetcher Fetcher
}

// Execute implements Sandbox.
func (s *FetchingSandbox) Execute(ctx context.Context, task types.Task) (types.Outcome, error) {
	if task.Kind == types.TaskPrepare {
		if _, err := s.Fetcher.Fetch(ctx, task.Package); err != nil {
			return types.OutcomePrepareFailed, fmt.Errorf("sandbox: fetch %s: %w", task.Package.Key(), err)
		}
	}
	return s.Inner.Execute(ctx, task)
}

// Available implements AvailabilityChecker by delegating to Inner when it
// supports the check; a Sandbox with no notion of availability is assumed
// always available.
func (s *FetchingSandbox) Available(ctx context.Context) error {
	if checker, ok := s.Inner.(AvailabilityChecker); ok {
		return checker.Available(ctx)
	}
	return nil
}
