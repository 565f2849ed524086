package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

type fakeRenderer struct {
	mu        sync.Mutex
	failTimes int
	calls     int
}

func (f *fakeRenderer) Render(ctx context.Context, experiment string, store *results.Store) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failTimes {
		return nil, errors.New("render failed")
	}
	return []byte("report for " + experiment), nil
}

type fakeRegistry struct {
	mu       sync.Mutex
	status   map[string]types.ReportStatus
	issueRef string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{status: make(map[string]types.ReportStatus)}
}

func (f *fakeRegistry) SetReportStatus(name string, status types.ReportStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[name] = status
	return nil
}

func (f *fakeRegistry) Get(name string) (types.Experiment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.status[name]; !ok {
		return types.Experiment{}, false, nil
	}
	return types.Experiment{Name: name, IssueRef: f.issueRef}, true, nil
}

func (f *fakeRegistry) get(name string) types.ReportStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[name]
}

type fakeArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{data: make(map[string][]byte)}
}

func (f *fakeArtifacts) Put(experiment string, artifact []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[experiment] = artifact
	return nil
}

func (f *fakeArtifacts) URL(experiment string) string {
	return "https://reports.example/" + experiment + ".html"
}

type fakeNotifier struct {
	mu       sync.Mutex
	issueRef string
	message  string
}

func (f *fakeNotifier) Notify(ctx context.Context, issueRef, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueRef = issueRef
	f.message = message
	return nil
}

func newTestResults(t *testing.T) *results.Store {
	t.Helper()
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return results.New(backend)
}

func shrinkBackoff(t *testing.T) {
	t.Helper()
	origBase, origMax := baseBackoff, maxBackoff
	baseBackoff = time.Millisecond
	maxBackoff = 10 * time.Millisecond
	t.Cleanup(func() {
		baseBackoff, maxBackoff = origBase, origMax
	})
}

func TestRenderWithRetrySucceedsImmediately(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := newFakeRegistry()
	artifacts := newFakeArtifacts()
	trig := New(renderer, newTestResults(t), registry, artifacts, nil)

	trig.renderWithRetry(context.Background(), "exp-1")

	assert.Equal(t, types.ReportRendered, registry.get("exp-1"))
	assert.Equal(t, []byte("report for exp-1"), artifacts.data["exp-1"])
}

func TestRenderWithRetryNotifiesCompletionWithReportURL(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := newFakeRegistry()
	registry.issueRef = "rust-lang/crater#1234"
	artifacts := newFakeArtifacts()
	notifier := &fakeNotifier{}
	trig := New(renderer, newTestResults(t), registry, artifacts, nil)
	trig.Notifier = notifier

	trig.renderWithRetry(context.Background(), "exp-1")

	assert.Equal(t, "rust-lang/crater#1234", notifier.issueRef)
	assert.Contains(t, notifier.message, "https://reports.example/exp-1.html")
}

func TestRenderWithRetryRecoversAfterTransientFailures(t *testing.T) {
	shrinkBackoff(t)
	renderer := &fakeRenderer{failTimes: 2}
	registry := newFakeRegistry()
	trig := New(renderer, newTestResults(t), registry, nil, nil)

	done := make(chan struct{})
	go func() {
		trig.renderWithRetry(context.Background(), "exp-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("renderWithRetry did not return in time")
	}

	assert.Equal(t, types.ReportRendered, registry.get("exp-1"))
	assert.Equal(t, 3, renderer.calls)
}

func TestRenderWithRetryPermanentFailureRecordsReportFailed(t *testing.T) {
	shrinkBackoff(t)
	renderer := &fakeRenderer{failTimes: MaxAttempts}
	registry := newFakeRegistry()
	trig := New(renderer, newTestResults(t), registry, nil, nil)

	done := make(chan struct{})
	go func() {
		trig.renderWithRetry(context.Background(), "exp-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("renderWithRetry did not return in time")
	}

	assert.Equal(t, types.ReportFailed, registry.get("exp-1"))
	assert.Equal(t, MaxAttempts, renderer.calls)
}

func TestRenderWithRetryPublishesReportRenderedOnSuccess(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := newFakeRegistry()
	trig := New(renderer, newTestResults(t), registry, newFakeArtifacts(), nil)
	broker := events.NewBroker()
	trig.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	trig.renderWithRetry(context.Background(), "exp-1")

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventReportRendered, evt.Type)
		assert.Equal(t, "exp-1", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event not published")
	}
}

func TestRenderWithRetryPublishesReportFailedOnPermanentFailure(t *testing.T) {
	shrinkBackoff(t)
	renderer := &fakeRenderer{failTimes: MaxAttempts}
	registry := newFakeRegistry()
	trig := New(renderer, newTestResults(t), registry, nil, nil)
	broker := events.NewBroker()
	trig.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	trig.renderWithRetry(context.Background(), "exp-1")

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventReportFailed, evt.Type)
		assert.Equal(t, "exp-1", evt.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("expected event not published")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	trig := New(&fakeRenderer{}, newTestResults(t), newFakeRegistry(), nil, nil)
	trig.queue = make(chan string, 1)

	trig.Enqueue("exp-1")
	trig.Enqueue("exp-2")

	require.Len(t, trig.queue, 1)
	assert.Equal(t, "exp-1", <-trig.queue)
}

func TestRunDrainsEnqueuedExperiment(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := newFakeRegistry()
	trig := New(renderer, newTestResults(t), registry, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trig.Run(ctx)

	trig.Enqueue("exp-1")

	require.Eventually(t, func() bool {
		return registry.get("exp-1") == types.ReportRendered
	}, time.Second, 10*time.Millisecond)
}
