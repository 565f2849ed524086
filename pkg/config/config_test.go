package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkDir, cfg.WorkDir)
	assert.Equal(t, DefaultCoordinatorAddr, cfg.CoordinatorAddr)
	assert.Equal(t, DefaultRaftBindAddr, cfg.RaftBindAddr)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultAgentTokenTTL, cfg.AgentTokenTTL)
	assert.NotEmpty(t, cfg.RaftNodeID)
	assert.Equal(t, filepath.Join(DefaultWorkDir, "registry"), cfg.RaftDataDir)
}

func TestLoadEnvOverridesWorkDir(t *testing.T) {
	t.Setenv("CRATER_WORK_DIR", "/tmp/crater-env-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/crater-env-test", cfg.WorkDir)
	assert.Equal(t, filepath.Join("/tmp/crater-env-test", "registry"), cfg.RaftDataDir)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "crater.yaml")
	contents := "work_dir: " + filepath.Join(dir, "scratch") + "\nworkers: 8\nraft_node_id: node-test\n"
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "scratch"), cfg.WorkDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "node-test", cfg.RaftNodeID)
}

func TestLoadRejectsUnreadableConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestScratchLayoutPaths(t *testing.T) {
	cfg := Config{WorkDir: "/srv/crater"}
	layout := cfg.ScratchLayout()

	assert.Equal(t, "/srv/crater/local/cargo-home", layout.CargoHome)
	assert.Equal(t, "/srv/crater/local/rustup-home", layout.RustupHome)
	assert.Equal(t, "/srv/crater/ex", layout.Experiments)
	assert.Equal(t, "/srv/crater/logs", layout.Logs)
	assert.Equal(t, "/srv/crater/local-crates", layout.LocalCrates)
}

func TestEnsureDirsCreatesLayout(t *testing.T) {
	root := t.TempDir()
	cfg := Config{WorkDir: filepath.Join(root, "work")}
	layout := cfg.ScratchLayout()

	require.NoError(t, layout.EnsureDirs())

	for _, dir := range []string{layout.CargoHome, layout.RustupHome, layout.Experiments, layout.Logs, layout.LocalCrates} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
