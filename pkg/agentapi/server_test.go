package agentapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/storage"
	"github.com/cuemby/crater/pkg/types"
)

type fakeRegistry struct {
	nextNew   bool
	nextExp   types.Experiment
	nextFound bool
	nextErr   error

	runByAgent string
	runFound   bool

	completeErr error
}

func (f *fakeRegistry) Next(agent string) (bool, types.Experiment, bool, error) {
	return f.nextNew, f.nextExp, f.nextFound, f.nextErr
}

func (f *fakeRegistry) RunByAgent(agent string) (string, bool, error) {
	return f.runByAgent, f.runFound, nil
}

func (f *fakeRegistry) Complete(agent string) error {
	return f.completeErr
}

func (f *fakeRegistry) Touch(agent string) error { return nil }

func (f *fakeRegistry) Get(name string) (types.Experiment, bool, error) {
	return types.Experiment{}, false, nil
}

type fakeReport struct {
	enqueued []string
}

func (f *fakeReport) Enqueue(experiment string) {
	f.enqueued = append(f.enqueued, experiment)
}

func newTestServer(t *testing.T, reg *fakeRegistry, rep *fakeReport) (*Server, string) {
	t.Helper()
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	tokens := NewTokenManager()
	tok, err := tokens.Issue("agent-1", time.Hour)
	require.NoError(t, err)

	s := NewServer(reg, results.New(backend), tokens, nil, rep, Config{WorkDir: "/work"})
	return s, tok.Token
}

func doRequest(t *testing.T, s *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestConfigRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, &fakeRegistry{}, &fakeReport{})
	rec := doRequest(t, s, http.MethodGet, "/agent-api/config", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfigReturnsAgentName(t *testing.T) {
	s, token := newTestServer(t, &fakeRegistry{}, &fakeReport{})
	rec := doRequest(t, s, http.MethodGet, "/agent-api/config", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "agent-1", resp.AgentName)
	assert.Equal(t, "/work", resp.CraterConfig.WorkDir)
}

func TestNextExperimentReturnsNullWhenNoneFound(t *testing.T) {
	s, token := newTestServer(t, &fakeRegistry{nextFound: false}, &fakeReport{})
	rec := doRequest(t, s, http.MethodGet, "/agent-api/next-experiment", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestRecordResultRejectsAgentWithoutRunningExperiment(t *testing.T) {
	s, token := newTestServer(t, &fakeRegistry{runFound: false}, &fakeReport{})
	body, _ := json.Marshal(taskResultPayload{
		Krate:     types.Package{Name: "serde", Version: "1.0.0"},
		Toolchain: types.Toolchain{ID: "stable"},
		Result:    types.OutcomeTestPassed,
	})
	rec := doRequest(t, s, http.MethodPost, "/agent-api/record-result", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordResultPersistsOutcome(t *testing.T) {
	reg := &fakeRegistry{runByAgent: "exp-1", runFound: true}
	s, token := newTestServer(t, reg, &fakeReport{})

	body, _ := json.Marshal(taskResultPayload{
		Krate:     types.Package{Name: "serde", Version: "1.0.0"},
		Toolchain: types.Toolchain{ID: "stable"},
		Result:    types.OutcomeTestPassed,
	})
	rec := doRequest(t, s, http.MethodPost, "/agent-api/record-result", token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	got, found, err := s.Results.Get("exp-1", types.Package{Name: "serde", Version: "1.0.0"}, types.Toolchain{ID: "stable"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomeTestPassed, got.Outcome)
}

func TestCompleteExperimentEnqueuesReport(t *testing.T) {
	reg := &fakeRegistry{runByAgent: "exp-1", runFound: true}
	rep := &fakeReport{}
	s, token := newTestServer(t, reg, rep)

	rec := doRequest(t, s, http.MethodPost, "/agent-api/complete-experiment", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"exp-1"}, rep.enqueued)
}

func TestNextExperimentPublishesAssignedOnlyWhenNew(t *testing.T) {
	reg := &fakeRegistry{nextNew: true, nextFound: true, nextExp: types.Experiment{Name: "exp-1"}}
	s, token := newTestServer(t, reg, &fakeReport{})
	broker := events.NewBroker()
	s.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	rec := doRequest(t, s, http.MethodGet, "/agent-api/next-experiment", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventExperimentAssigned, evt.Type)
		assert.Equal(t, "exp-1", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event not published")
	}
}

func TestRecordResultPublishesTaskFailedOnFailingOutcome(t *testing.T) {
	reg := &fakeRegistry{runByAgent: "exp-1", runFound: true}
	s, token := newTestServer(t, reg, &fakeReport{})
	broker := events.NewBroker()
	s.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	body, _ := json.Marshal(taskResultPayload{
		Krate:     types.Package{Name: "serde", Version: "1.0.0"},
		Toolchain: types.Toolchain{ID: "stable"},
		Result:    types.OutcomeBuildFailed,
	})
	rec := doRequest(t, s, http.MethodPost, "/agent-api/record-result", token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventTaskFailed, evt.Type)
		assert.Equal(t, "exp-1/serde", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event not published")
	}
}
