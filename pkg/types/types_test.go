package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageKey(t *testing.T) {
	p := Package{Name: "serde", Version: "1.0.0", Source: SourceRegistry}
	assert.Equal(t, "serde@1.0.0", p.Key())
	assert.Equal(t, p.Key(), p.String())
}

func TestPackageEqualityIsByValue(t *testing.T) {
	a := Package{Name: "serde", Version: "1.0.0", Source: SourceRegistry, Ref: "abc"}
	b := Package{Name: "serde", Version: "1.0.0", Source: SourceRegistry, Ref: "abc"}
	assert.Equal(t, a, b)
	assert.Equal(t, a.Key(), b.Key())
}

func TestNewExperimentDefaults(t *testing.T) {
	exp := NewExperiment(
		"rustc-bump",
		Toolchain{ID: "stable-1.80"},
		Toolchain{ID: "beta-1.81"},
		ModeBuildAndTest,
		[]Package{{Name: "serde", Version: "1.0.0"}},
		"crater-org/issues#42",
	)

	assert.Equal(t, StatusQueued, exp.Status)
	assert.Equal(t, ReportPending, exp.Report)
	assert.False(t, exp.QueuedAt.IsZero())
	assert.Empty(t, exp.Agent)
}

func TestTaskStateString(t *testing.T) {
	assert.Equal(t, "waiting", TaskWaiting.String())
	assert.Equal(t, "ready", TaskReady.String())
	assert.Equal(t, "running", TaskRunning.String())
	assert.Equal(t, "done", TaskDone.String())
	assert.Equal(t, "failed", TaskFailed.String())
}

func TestNewIDIsUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
