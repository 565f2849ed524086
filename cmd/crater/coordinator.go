package main

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/crater/pkg/agentapi"
	"github.com/cuemby/crater/pkg/config"
	"github.com/cuemby/crater/pkg/events"
	"github.com/cuemby/crater/pkg/log"
	"github.com/cuemby/crater/pkg/metrics"
	"github.com/cuemby/crater/pkg/notify"
	"github.com/cuemby/crater/pkg/reconciler"
	"github.com/cuemby/crater/pkg/registry"
	"github.com/cuemby/crater/pkg/report"
	"github.com/cuemby/crater/pkg/results"
	"github.com/cuemby/crater/pkg/security"
	"github.com/cuemby/crater/pkg/storage"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run coordinator-side components (C6, C7, C8)",
}

var coordinatorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordinator: registry, agent API, and report trigger",
	RunE:  runCoordinatorServe,
}

func init() {
	coordinatorServeCmd.Flags().String("join", "", "Address of an existing coordinator to join as a Raft follower")
	coordinatorServeCmd.Flags().String("admin-token", "", "Static bearer token for the operator admin API (generated if empty)")
	coordinatorServeCmd.Flags().Bool("tls-autogen", false, "Generate a self-signed coordinator certificate instead of requiring --tls-cert/--tls-key")
	coordinatorCmd.AddCommand(coordinatorServeCmd)
}

func runCoordinatorServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	layout := cfg.ScratchLayout()
	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	coordLog := log.WithComponent("coordinator")

	reg, err := registry.New(registry.Config{
		NodeID:   cfg.RaftNodeID,
		BindAddr: cfg.RaftBindAddr,
		DataDir:  cfg.RaftDataDir,
	})
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	join, _ := cmd.Flags().GetString("join")
	if join == "" {
		if err := reg.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap registry: %w", err)
		}
		coordLog.Info().Msg("bootstrapped single-node registry cluster")
	} else {
		if err := reg.Join(); err != nil {
			return fmt.Errorf("join registry cluster: %w", err)
		}
		coordLog.Info().Str("leader", join).Msg("joined registry cluster as follower; an operator must AddVoter this node")
	}

	resultStore, err := storage.NewBoltStore(layout.Experiments)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	store := results.New(resultStore)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var notifier notify.Notifier
	if cfg.GitHubToken != "" {
		notifier = notify.NewGitHubNotifier(cfg.GitHubToken)
	}

	renderer, err := report.NewHTMLRenderer()
	if err != nil {
		return err
	}
	artifacts := report.NewDirArtifactStore(layout.Experiments)
	artifacts.BaseURL = cfg.ReportBaseURL
	trigger := report.New(renderer, store, reg, artifacts, broker)
	trigger.Notifier = notifier
	go trigger.Run(cmd.Context())

	recon := reconciler.New(reg, 0, 0)
	recon.Broker = broker
	recon.Start()
	defer recon.Stop()

	tokens := agentapi.NewTokenManager()

	adminToken, _ := cmd.Flags().GetString("admin-token")
	if adminToken == "" {
		adminToken, err = randomToken()
		if err != nil {
			return err
		}
		coordLog.Info().Str("admin_token", adminToken).Msg("generated admin token; pass --admin-token to reuse it")
	}

	agentServer := agentapi.NewServer(reg, store, tokens, notifier, trigger, agentapi.Config{WorkDir: cfg.WorkDir})
	agentServer.Broker = broker
	adminServer := agentapi.NewAdminServer(reg, adminToken)
	adminServer.Broker = broker

	mux := http.NewServeMux()
	mux.Handle("/agent-api/", agentServer)
	mux.Handle("/admin/", adminServer)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:         cfg.CoordinatorAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tlsAutogen, _ := cmd.Flags().GetBool("tls-autogen")
	if tlsAutogen && cfg.TLSCert == "" {
		cert, err := autogenCert(cfg.WorkDir, cfg.RaftNodeID)
		if err != nil {
			return fmt.Errorf("generate self-signed certificate: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cert}}
	}

	errCh := make(chan error, 1)
	go func() {
		var serveErr error
		switch {
		case httpServer.TLSConfig != nil:
			serveErr = httpServer.ListenAndServeTLS("", "")
		case cfg.TLSCert != "" && cfg.TLSKey != "":
			serveErr = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		default:
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()
	coordLog.Info().Str("addr", cfg.CoordinatorAddr).Msg("coordinator listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		coordLog.Info().Msg("shutting down")
	case err := <-errCh:
		coordLog.Error().Err(err).Msg("http server error")
	}

	_ = httpServer.Close()
	return reg.Shutdown()
}

// autogenCert stands up a CertAuthority rooted at <workDir>/ca (reusing
// an existing root across restarts), reuses a cached leaf certificate if
// one is on disk and not close to expiry, and otherwise issues and caches
// a fresh one for nodeID. Used when the operator has not supplied
// --tls-cert/--tls-key. Also drops the CA's own certificate under the
// same cert dir so an operator can copy it out to agents that need to
// trust this coordinator's self-signed listener.
func autogenCert(workDir, nodeID string) (*tls.Certificate, error) {
	caDir := filepath.Join(workDir, "ca")
	store, err := storage.NewBoltStore(caDir)
	if err != nil {
		return nil, fmt.Errorf("open CA store: %w", err)
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(nodeID)); err != nil {
		return nil, fmt.Errorf("set CA encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return nil, fmt.Errorf("persist CA: %w", err)
		}
	}

	certDir := security.CertDir(workDir, nodeID)
	if err := security.CacheCA(certDir, ca.RootCertDER()); err != nil {
		return nil, fmt.Errorf("cache CA certificate: %w", err)
	}

	if security.LeafExists(certDir) {
		if cached, err := security.LoadLeaf(certDir); err == nil && !security.NeedsRotation(cached.Leaf) {
			return cached, nil
		}
	}

	cert, err := ca.IssueNodeCertificate(nodeID, "coordinator", []string{"localhost", nodeID}, nil)
	if err != nil {
		return nil, fmt.Errorf("issue coordinator certificate: %w", err)
	}
	if err := security.CacheLeaf(certDir, cert); err != nil {
		return nil, fmt.Errorf("cache coordinator certificate: %w", err)
	}
	return cert, nil
}

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
