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
	"github.com/cuemby/crater/pkg/types"
)

type fakeAdminRegistry struct {
	created []types.Experiment
	createErr error
	list    []types.Experiment
}

func (f *fakeAdminRegistry) Create(exp types.Experiment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, exp)
	return nil
}

func (f *fakeAdminRegistry) List() ([]types.Experiment, error) {
	return f.list, nil
}

func doAdminRequest(t *testing.T, s *AdminServer, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestAdminExperimentsRejectsMissingToken(t *testing.T) {
	s := NewAdminServer(&fakeAdminRegistry{}, "secret")
	rec := doAdminRequest(t, s, http.MethodGet, "/admin/experiments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminExperimentsCreateRequiresName(t *testing.T) {
	s := NewAdminServer(&fakeAdminRegistry{}, "secret")
	body, _ := json.Marshal(types.Experiment{})
	rec := doAdminRequest(t, s, http.MethodPost, "/admin/experiments", "secret", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminExperimentsCreatePublishesQueued(t *testing.T) {
	reg := &fakeAdminRegistry{}
	s := NewAdminServer(reg, "secret")
	broker := events.NewBroker()
	s.Broker = broker
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	body, _ := json.Marshal(types.Experiment{Name: "exp-1"})
	rec := doAdminRequest(t, s, http.MethodPost, "/admin/experiments", "secret", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reg.created, 1)

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventExperimentQueued, evt.Type)
		assert.Equal(t, "exp-1", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event not published")
	}
}
