package reconciler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/types"
)

type fakeRegistry struct {
	mu       sync.Mutex
	running  []types.Experiment
	released []string
}

func (f *fakeRegistry) ListRunning() ([]types.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Experiment, len(f.running))
	copy(out, f.running)
	return out, nil
}

func (f *fakeRegistry) Release(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, name)
	return nil
}

func (f *fakeRegistry) releasedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.released))
	copy(out, f.released)
	return out
}

func TestSweepReleasesOnlyStaleExperiments(t *testing.T) {
	now := time.Now()
	reg := &fakeRegistry{
		running: []types.Experiment{
			{Name: "fresh", Agent: "agent-1", LastSeenAt: now},
			{Name: "stale", Agent: "agent-2", LastSeenAt: now.Add(-time.Hour)},
		},
	}
	r := New(reg, time.Hour, time.Minute)

	require.NoError(t, r.sweep())

	assert.Equal(t, []string{"stale"}, reg.releasedNames())
}

func TestSweepFallsBackToQueuedAtWhenNeverTouched(t *testing.T) {
	reg := &fakeRegistry{
		running: []types.Experiment{
			{Name: "never-touched", Agent: "agent-1", QueuedAt: time.Now().Add(-time.Hour)},
		},
	}
	r := New(reg, time.Hour, time.Minute)

	require.NoError(t, r.sweep())

	assert.Equal(t, []string{"never-touched"}, reg.releasedNames())
}

func TestSweepPublishesAgentLostForReleasedExperiments(t *testing.T) {
	reg := &fakeRegistry{
		running: []types.Experiment{
			{Name: "stale", Agent: "agent-2", LastSeenAt: time.Now().Add(-time.Hour)},
		},
	}
	r := New(reg, time.Hour, time.Minute)
	broker := events.NewBroker()
	r.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	require.NoError(t, r.sweep())

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventAgentLost, evt.Type)
		assert.Equal(t, "agent-2", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event not published")
	}
}

func TestStartStopRunsSweepLoop(t *testing.T) {
	reg := &fakeRegistry{
		running: []types.Experiment{
			{Name: "stale", Agent: "agent-1", LastSeenAt: time.Now().Add(-time.Hour)},
		},
	}
	r := New(reg, 10*time.Millisecond, time.Minute)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return len(reg.releasedNames()) > 0
	}, time.Second, 10*time.Millisecond)
}
