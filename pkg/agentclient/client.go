/*
Package agentclient implements the agent side of the HTTP protocol
pkg/agentapi exposes: config, next-experiment, record-result,
complete-experiment.

Generalized from the teacher's pkg/client/client.go (connection setup,
one method per RPC, per-call timeout), swapping gRPC+mTLS for a plain
net/http.Client with a bearer token, since spec.md §6 specifies a
JSON-over-HTTP wire shape rather than gRPC.
*/
package agentclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/crater/pkg/security"
	"github.com/cuemby/crater/pkg/types"
)

// Client talks to a coordinator's agent-facing HTTP surface on behalf of
// a single agent identity.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client for baseURL (e.g. "https://coordinator:8443"),
// authenticating every request with token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithCACert builds a Client that trusts only the certificate at
// caCertPath, for agents pointed at a coordinator's self-signed listener
// (see pkg/security.CacheCA) rather than one fronted by a public CA.
func NewWithCACert(baseURL, token, caCertPath string) (*Client, error) {
	caCert, err := security.LoadCAFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("agentclient: load CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}},
		},
	}, nil
}

type configResponse struct {
	AgentName    string `json:"agent-name"`
	CraterConfig struct {
		WorkDir string `json:"work_dir"`
	} `json:"crater-config"`
}

// Config fetches the read-only global configuration snapshot.
func (c *Client) Config(ctx context.Context) (workDir, agentName string, err error) {
	var resp configResponse
	if err := c.do(ctx, http.MethodGet, "/agent-api/config", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.CraterConfig.WorkDir, resp.AgentName, nil
}

// NextExperiment calls next-experiment. A nil *types.Experiment with a nil
// error means no candidate was available.
func (c *Client) NextExperiment(ctx context.Context) (*types.Experiment, error) {
	var exp *types.Experiment
	if err := c.do(ctx, http.MethodGet, "/agent-api/next-experiment", nil, &exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// TaskResult mirrors spec.md §6's wire shape for record-result.
type TaskResult struct {
	Krate     types.Package   `json:"krate"`
	Toolchain types.Toolchain `json:"toolchain"`
	Result    types.Outcome   `json:"result"`
	Log       []byte          `json:"log"`
}

// RecordResult reports a single task outcome for the agent's current
// experiment.
func (c *Client) RecordResult(ctx context.Context, result TaskResult) error {
	return c.do(ctx, http.MethodPost, "/agent-api/record-result", result, nil)
}

// CompleteExperiment transitions the agent's running experiment to
// Completed.
func (c *Client) CompleteExperiment(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/agent-api/complete-experiment", nil, nil)
}

// ResultSink adapts Client to pkg/worker.Pool's ResultSink interface:
// every Put becomes a record-result call against the coordinator instead
// of a local write. Put ignores its experiment argument; the coordinator
// attributes the result to the calling agent's running experiment.
type ResultSink struct {
	Client *Client
}

func (r ResultSink) Put(_ string, pkg types.Package, tc types.Toolchain, outcome types.Outcome, log []byte) error {
	return r.Client.RecordResult(context.Background(), TaskResult{
		Krate:     pkg,
		Toolchain: tc,
		Result:    outcome,
		Log:       log,
	})
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agentclient: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("agentclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agentclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return fmt.Errorf("agentclient: %s %s: status %d: %s", method, path, resp.StatusCode, envelope.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agentclient: decode response: %w", err)
	}
	return nil
}
