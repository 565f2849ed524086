package agentapi

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/types"
)

// AdminRegistry is the subset of pkg/registry.Registry the operator-facing
// admin surface needs. Separate from Registry (the agent-facing subset)
// because an operator and an agent authenticate differently and can never
// be confused for one another.
type AdminRegistry interface {
	Create(exp types.Experiment) error
	List() ([]types.Experiment, error)
}

// AdminServer exposes the two operations cmd/crater's `experiment
// apply`/`experiment list` commands need against a running coordinator.
// This surface is deliberately out of spec.md's scope (§1 names "CLI
// entry points" as an unspecified external collaborator); it exists only
// so the repository is operable end to end, authenticated with a single
// static token rather than pkg/agentapi's per-agent bearer tokens.
type AdminServer struct {
	Registry  AdminRegistry
	AdminToken string
	// Broker, if set, receives experiment.queued once a new experiment
	// is accepted. Optional.
	Broker *events.Broker

	mux *http.ServeMux
}

// NewAdminServer wires the admin handlers into a ServeMux.
func NewAdminServer(registry AdminRegistry, adminToken string) *AdminServer {
	s := &AdminServer{Registry: registry, AdminToken: adminToken}

	mux := http.NewServeMux()
	mux.HandleFunc("/admin/experiments", s.withAdminAuth(s.handleExperiments))
	s.mux = mux
	return s
}

func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *AdminServer) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.AdminToken {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func (s *AdminServer) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		exps, err := s.Registry.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, exps)
	case http.MethodPost:
		var exp types.Experiment
		if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if exp.Name == "" {
			writeError(w, http.StatusBadRequest, "experiment name is required")
			return
		}
		if exp.Status == "" {
			exp.Status = types.StatusQueued
		}
		if err := s.Registry.Create(exp); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.Broker != nil {
			s.Broker.Publish(&events.Event{Type: events.EventExperimentQueued, Message: exp.Name})
		}
		writeOK(w)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
