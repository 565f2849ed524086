package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/notify"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/types"
)

// Registry is the subset of pkg/registry.Registry the agent protocol
// needs, kept narrow so tests can supply a stub.
type Registry interface {
	Next(agent string) (newAssignment bool, exp types.Experiment, found bool, err error)
	RunByAgent(agent string) (string, bool, error)
	Complete(agent string) error
	Get(name string) (types.Experiment, bool, error)
	Touch(agent string) error
}

// Config is the read-only snapshot served from /agent-api/config,
// independent of any one agent's identity.
type Config struct {
	WorkDir string `json:"work_dir"`
}

// ReportTrigger is the subset of pkg/report.Trigger needed to kick off
// rendering once an experiment completes.
type ReportTrigger interface {
	Enqueue(experiment string)
}

// Server implements the four agent-facing HTTP endpoints spec.md §6
// describes: config, next-experiment, record-result, complete-experiment.
// Every handler is wrapped by bearer-token auth that resolves the
// authenticated identity to an agent name.
type Server struct {
	Registry Registry
	Results  *results.Store
	Tokens   *TokenManager
	Notifier notify.Notifier
	Report   ReportTrigger
	Config   Config
	// Broker, if set, receives experiment.assigned and task.* events as
	// handlers observe them. Optional: a nil Broker just means nobody
	// is listening.
	Broker *events.Broker

	mux *http.ServeMux
}

// NewServer wires the four handlers into a ServeMux and returns a Server
// ready to be wrapped in an http.Server.
func NewServer(registry Registry, store *results.Store, tokens *TokenManager, notifier notify.Notifier, report ReportTrigger, cfg Config) *Server {
	s := &Server{
		Registry: registry,
		Results:  store,
		Tokens:   tokens,
		Notifier: notifier,
		Report:   report,
		Config:   cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/agent-api/config", s.withAuth(s.handleConfig))
	mux.HandleFunc("/agent-api/next-experiment", s.withAuth(s.handleNextExperiment))
	mux.HandleFunc("/agent-api/record-result", s.withAuth(s.handleRecordResult))
	mux.HandleFunc("/agent-api/complete-experiment", s.withAuth(s.handleCompleteExperiment))
	s.mux = mux

	return s
}

// ListenAndServe starts the HTTP server on addr. It blocks until the
// server stops.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// ServeHTTP lets Server be used directly as an http.Handler, e.g. wrapped
// in httptest.NewServer or mounted under another mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.serverHeader(s.mux).ServeHTTP(w, r)
}

// serverHeader stamps every response with Server: crater/<revision>, per
// spec.md §6.
func (s *Server) serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "crater/"+revision())
		next.ServeHTTP(w, r)
	})
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return "unknown"
}

type configResponse struct {
	AgentName    string `json:"agent-name"`
	CraterConfig Config `json:"crater-config"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, configResponse{
		AgentName:    agentFromContext(r.Context()),
		CraterConfig: s.Config,
	})
}

func (s *Server) handleNextExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	agent := agentFromContext(r.Context())
	isNew, exp, found, err := s.Registry.Next(agent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if !isNew {
		if err := s.Registry.Touch(agent); err != nil {
			log.WithComponent("agentapi").Warn().Err(err).Str("agent", agent).Msg("touch failed, best effort")
		}
	}

	if isNew && s.Broker != nil {
		s.Broker.Publish(&events.Event{Type: events.EventExperimentAssigned, Message: exp.Name})
	}

	if isNew && exp.IssueRef != "" && s.Notifier != nil {
		go func() {
			// Runs after the handler returns, so it cannot use the
			// request's context: that context is cancelled once the
			// response is written.
			msg := fmt.Sprintf("crater assigned experiment %s to agent %s", exp.Name, agent)
			if err := s.Notifier.Notify(context.Background(), exp.IssueRef, msg); err != nil {
				log.WithComponent("agentapi").Warn().Err(err).
					Str("experiment", exp.Name).Msg("notification failed, best effort")
			}
		}()
	}

	writeJSON(w, http.StatusOK, exp)
}

// taskResultPayload mirrors spec.md §6's TaskResult wire shape.
type taskResultPayload struct {
	Krate     types.Package   `json:"krate"`
	Toolchain types.Toolchain `json:"toolchain"`
	Result    types.Outcome   `json:"result"`
	Log       []byte          `json:"log"`
}

func (s *Server) handleRecordResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	agent := agentFromContext(r.Context())
	expName, found, err := s.Registry.RunByAgent(agent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, "agent has no running experiment")
		return
	}
	if err := s.Registry.Touch(agent); err != nil {
		log.WithComponent("agentapi").Warn().Err(err).Str("agent", agent).Msg("touch failed, best effort")
	}

	var payload taskResultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.Results.Put(expName, payload.Krate, payload.Toolchain, payload.Result, payload.Log); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.Broker != nil {
		evtType := events.EventTaskCompleted
		switch payload.Result {
		case types.OutcomeBuildFailed, types.OutcomeTestFailed, types.OutcomeCompileError, types.OutcomePrepareFailed, types.OutcomeTimedOut:
			evtType = events.EventTaskFailed
		}
		s.Broker.Publish(&events.Event{Type: evtType, Message: fmt.Sprintf("%s/%s", expName, payload.Krate.Name)})
	}

	writeOK(w)
}

func (s *Server) handleCompleteExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	agent := agentFromContext(r.Context())
	expName, found, err := s.Registry.RunByAgent(agent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusBadRequest, "agent has no running experiment")
		return
	}

	if err := s.Registry.Complete(agent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.Report != nil {
		s.Report.Enqueue(expName)
	}

	writeOK(w)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}
