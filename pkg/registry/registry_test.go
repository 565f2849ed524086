package registry

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/types"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newBootstrappedRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(Config{
		NodeID:   "node-1",
		BindAddr: freeAddr(t),
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, reg.Bootstrap())
	t.Cleanup(func() { _ = reg.Shutdown() })

	require.Eventually(t, reg.IsLeader, 5*time.Second, 10*time.Millisecond)
	return reg
}

func TestNextAssignsOldestQueued(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp1 := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	time.Sleep(time.Millisecond)
	exp2 := types.NewExperiment("exp-2", tc, tc, types.ModeBuildAndTest, nil, "")

	require.NoError(t, reg.Create(exp1))
	require.NoError(t, reg.Create(exp2))

	isNew, got, found, err := reg.Next("agent-a")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, isNew)
	require.Equal(t, "exp-1", got.Name)
	require.Equal(t, types.StatusRunning, got.Status)
}

func TestNextReturnsExistingRunningForSameAgent(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	require.NoError(t, reg.Create(exp))

	_, first, found, err := reg.Next("agent-a")
	require.NoError(t, err)
	require.True(t, found)

	isNew, second, found, err := reg.Next("agent-a")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, isNew)
	require.Equal(t, first.Name, second.Name)
}

func TestCompleteRequiresOwningAgent(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	require.NoError(t, reg.Create(exp))

	_, _, _, err := reg.Next("agent-a")
	require.NoError(t, err)

	err = reg.Complete("agent-b")
	require.Error(t, err)

	require.NoError(t, reg.Complete("agent-a"))

	name, found, err := reg.RunByAgent("agent-a")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, name)

	got, found, err := reg.Get("exp-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusCompleted, got.Status)
}

func TestTouchBumpsLastSeenAt(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	require.NoError(t, reg.Create(exp))

	_, _, _, err := reg.Next("agent-a")
	require.NoError(t, err)

	require.NoError(t, reg.Touch("agent-a"))

	got, found, err := reg.Get("exp-1")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, got.LastSeenAt.IsZero())
}

func TestReleaseReturnsExperimentToQueued(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	require.NoError(t, reg.Create(exp))

	_, _, _, err := reg.Next("agent-a")
	require.NoError(t, err)

	require.NoError(t, reg.Release("exp-1"))

	got, found, err := reg.Get("exp-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusQueued, got.Status)
	require.Empty(t, got.Agent)

	isNew, reassigned, found, err := reg.Next("agent-b")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, isNew)
	require.Equal(t, "exp-1", reassigned.Name)
}

func TestListRunningReturnsOnlyRunningExperiments(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	require.NoError(t, reg.Create(types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")))
	require.NoError(t, reg.Create(types.NewExperiment("exp-2", tc, tc, types.ModeBuildAndTest, nil, "")))

	_, _, _, err := reg.Next("agent-a")
	require.NoError(t, err)

	running, err := reg.ListRunning()
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "exp-1", running[0].Name)
}

func TestSetReportStatus(t *testing.T) {
	reg := newBootstrappedRegistry(t)

	tc := types.Toolchain{ID: "stable"}
	exp := types.NewExperiment("exp-1", tc, tc, types.ModeBuildAndTest, nil, "")
	require.NoError(t, reg.Create(exp))

	require.NoError(t, reg.SetReportStatus("exp-1", types.ReportRendered))

	got, found, err := reg.Get("exp-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.ReportRendered, got.Report)
}
