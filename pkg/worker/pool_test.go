package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/graph"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/logcapture"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

type fakeSandbox struct {
	fail map[string]bool
}

func (f *fakeSandbox) Execute(ctx context.Context, task types.Task) (types.Outcome, error) {
	if f.fail[task.Package.Name] && task.Kind == types.TaskPrepare {
		return types.OutcomePrepareFailed, fmt.Errorf("prepare failed")
	}
	return types.OutcomeTestPassed, nil
}

func newTestPool(t *testing.T, g *graph.Graph, sb *fakeSandbox) (*Pool, *results.Store) {
	t.Helper()
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	rs := results.New(backend)
	p := &Pool{
		N:          3,
		Experiment: "exp1",
		Graph:      g,
		Results:    rs,
		Sandbox:    sb,
		Capture:    logcapture.New(),
	}
	return p, rs
}

func TestPoolRunsToCompletion(t *testing.T) {
	pkgA := types.Package{Name: "serde", Version: "1.0.0"}
	tcS := types.Toolchain{ID: "stable"}
	g := graph.NewFromMatrix([]types.Package{pkgA}, []types.Toolchain{tcS}, types.ModeBuildAndTest)

	p, rs := newTestPool(t, g, &fakeSandbox{})

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.NotClean())

	rec, found, err := rs.Get("exp1", pkgA, tcS)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomeTestPassed, rec.Outcome)
}

func TestPoolCascadeSkipsOnPrepareFailure(t *testing.T) {
	pkgA := types.Package{Name: "broken", Version: "1.0.0"}
	tcS := types.Toolchain{ID: "stable"}
	g := graph.NewFromMatrix([]types.Package{pkgA}, []types.Toolchain{tcS}, types.ModeBuildAndTest)

	p, rs := newTestPool(t, g, &fakeSandbox{fail: map[string]bool{"broken": true}})

	err := p.Run(context.Background())
	require.NoError(t, err)

	// Prepare and its cascaded descendant are Failed; Root still runs
	// through the ordinary path once its prerequisites are terminal.
	for id := graph.TaskID(0); id < graph.TaskID(g.Len()); id++ {
		if g.Task(id).Kind == types.TaskRoot {
			assert.Equal(t, types.TaskDone, g.State(id))
			continue
		}
		assert.Equal(t, types.TaskFailed, g.State(id))
	}

	// The cascaded descendant never reached the sandbox, but its outcome
	// is still persisted to the result store (spec.md §8 scenario 2).
	rec, found, err := rs.Get("exp1", pkgA, tcS)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomePrepareFailed, rec.Outcome)
}

// A failure on a non-Prepare task must not cascade to Root or to sibling
// packages: only that one task is marked Failed, and the rest of the
// graph (including Root) still drains through the ordinary ready/running
// path (spec.md §4.3).
func TestPoolNonPrepareFailureDoesNotCascade(t *testing.T) {
	pkgA := types.Package{Name: "flaky", Version: "1.0.0"}
	pkgB := types.Package{Name: "serde", Version: "1.0.0"}
	tcS := types.Toolchain{ID: "stable"}
	g := graph.NewFromMatrix([]types.Package{pkgA, pkgB}, []types.Toolchain{tcS}, types.ModeBuildAndTest)

	sb := &buildFailSandbox{failPackage: "flaky"}
	p, rs := newTestPool(t, g, nil)
	p.Sandbox = sb

	err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.NotClean())

	recA, found, err := rs.Get("exp1", pkgA, tcS)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomeBuildFailed, recA.Outcome)

	recB, found, err := rs.Get("exp1", pkgB, tcS)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomeTestPassed, recB.Outcome)

	// Root only reaches Done once every execution task (both packages)
	// has reached a terminal state, regardless of pass/fail.
	var root graph.TaskID
	for id := graph.TaskID(0); id < graph.TaskID(g.Len()); id++ {
		if g.Task(id).Kind == types.TaskRoot {
			root = id
		}
	}
	assert.Equal(t, types.TaskDone, g.State(root))
}

type buildFailSandbox struct {
	failPackage string
}

func (b *buildFailSandbox) Execute(ctx context.Context, task types.Task) (types.Outcome, error) {
	if task.Kind == types.TaskPrepare {
		return types.OutcomeTestPassed, nil
	}
	if task.Package.Name == b.failPackage {
		return types.OutcomeBuildFailed, nil
	}
	return types.OutcomeTestPassed, nil
}
