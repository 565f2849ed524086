package fetcher

import (
	"context"
	"errors"

	"github.com/cuemby/crater/pkg/types"
)

// ErrUnsupportedSource is returned by a Fetcher that has no strategy for
// a Package's Source.
var ErrUnsupportedSource = errors.New("fetcher: unsupported package source")

// Fetcher produces a local source tree for pkg. Implementations must be
// safe for concurrent use: multiple Prepare tasks across different
// packages run concurrently in the worker pool.
type Fetcher interface {
	Fetch(ctx context.Context, pkg types.Package) (sourceDir string, err error)
}

// Multi dispatches to a registered Fetcher by Package.Source, the way a
// single experiment's packages may mix git and registry sources.
type Multi struct {
	strategies map[types.PackageSource]Fetcher
}

// NewMulti builds a dispatching Fetcher from per-source strategies.
// Sources with no registered strategy fail with ErrUnsupportedSource.
func NewMulti(strategies map[types.PackageSource]Fetcher) *Multi {
	return &Multi{strategies: strategies}
}

func (m *Multi) Fetch(ctx context.Context, pkg types.Package) (string, error) {
	f, ok := m.strategies[pkg.Source]
	if !ok {
		return "", ErrUnsupportedSource
	}
	return f.Fetch(ctx, pkg)
}

// registryFetcher is a documented stub: no package registry is named
// anywhere in spec.md or the retrieved corpus, so a real implementation
// would have to invent one. Left as an explicit unsupported strategy
// rather than fabricated (see DESIGN.md Open Question O4).
type registryFetcher struct{}

// NewRegistryFetcher returns the SourceRegistry strategy, which always
// fails with ErrUnsupportedSource.
func NewRegistryFetcher() Fetcher { return registryFetcher{} }

func (registryFetcher) Fetch(_ context.Context, pkg types.Package) (string, error) {
	return "", ErrUnsupportedSource
}
