package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/cuemby/crater/pkg/diskwatch"
)

// Default values, overridable via config file or CRATER_* env vars
// (command-line flags are not bound into Config). Mirrored into viper.SetDefault by Load so a bare `crater
// coordinator serve` with no flags at all still runs.
const (
	DefaultWorkDir        = "./work"
	DefaultCoordinatorAddr = "127.0.0.1:8080"
	DefaultRaftBindAddr   = "127.0.0.1:8081"
	DefaultWorkers        = 4
	DefaultAgentTokenTTL  = 24 * time.Hour
)

// Config is the read-only snapshot every component is constructed from.
// The subset served to agents via GET /agent-api/config is narrower (see
// pkg/agentapi.Config); this is the coordinator/agent process's own view.
type Config struct {
	WorkDir string `mapstructure:"work_dir"`

	CoordinatorAddr string `mapstructure:"coordinator_addr"`
	TLSCert         string `mapstructure:"tls_cert"`
	TLSKey          string `mapstructure:"tls_key"`

	RaftNodeID   string `mapstructure:"raft_node_id"`
	RaftBindAddr string `mapstructure:"raft_bind_addr"`
	RaftDataDir  string `mapstructure:"raft_data_dir"`

	Workers int `mapstructure:"workers"`

	DiskWatchInterval  time.Duration `mapstructure:"disk_watch_interval"`
	DiskWatchThreshold float64       `mapstructure:"disk_watch_threshold"`

	SandboxSocket      string `mapstructure:"sandbox_socket"`
	GitHubToken        string `mapstructure:"github_token"`
	AgentTokenTTL      time.Duration `mapstructure:"agent_token_ttl"`

	// ReportBaseURL, if set, prefixes rendered report artifact paths so
	// the completion notification links somewhere externally reachable
	// instead of a coordinator-local filesystem path.
	ReportBaseURL string `mapstructure:"report_base_url"`
}

// Load reads configPath (if non-empty), layers CRATER_-prefixed
// environment variables on top, and returns a validated Config. Passing
// an empty configPath is not an error: viper's own defaults apply, per
// spec.md §6's CRATER_WORK_DIR-defaults-to-./work contract.
func Load(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("work_dir", DefaultWorkDir)
	v.SetDefault("coordinator_addr", DefaultCoordinatorAddr)
	v.SetDefault("raft_bind_addr", DefaultRaftBindAddr)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("disk_watch_interval", diskwatch.DefaultInterval)
	v.SetDefault("disk_watch_threshold", diskwatch.DefaultThreshold)
	v.SetDefault("agent_token_ttl", DefaultAgentTokenTTL)

	v.SetEnvPrefix("crater")
	v.AutomaticEnv()
	// CRATER_WORK_DIR overrides work_dir even though viper's default key
	// replacer doesn't touch underscores; bind it explicitly per spec.md §6.
	_ = v.BindEnv("work_dir", "CRATER_WORK_DIR")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.RaftDataDir == "" {
		cfg.RaftDataDir = filepath.Join(cfg.WorkDir, "registry")
	}
	if cfg.RaftNodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "node-0"
		}
		cfg.RaftNodeID = hostname
	}

	return cfg, nil
}

// ScratchLayout returns the fixed subdirectory names under WorkDir, per
// spec.md §6's filesystem layout.
func (c Config) ScratchLayout() ScratchLayout {
	return ScratchLayout{
		CargoHome:    filepath.Join(c.WorkDir, "local", "cargo-home"),
		RustupHome:   filepath.Join(c.WorkDir, "local", "rustup-home"),
		Experiments:  filepath.Join(c.WorkDir, "ex"),
		Logs:         filepath.Join(c.WorkDir, "logs"),
		LocalCrates:  filepath.Join(c.WorkDir, "local-crates"),
	}
}

// ScratchLayout names the fixed directories spec.md §6 lists under
// <work-dir>, resolved against one Config's WorkDir.
type ScratchLayout struct {
	CargoHome   string
	RustupHome  string
	Experiments string
	Logs        string
	LocalCrates string
}

// EnsureDirs creates every directory in the layout, idempotently.
func (l ScratchLayout) EnsureDirs() error {
	for _, dir := range []string{l.CargoHome, l.RustupHome, l.Experiments, l.Logs, l.LocalCrates} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
