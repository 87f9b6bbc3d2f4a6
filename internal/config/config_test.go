package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApplied(t *testing.T) {
	t.Setenv("RELAY_AGENT_BASE_URL", "http://agent.local")
	t.Setenv("RELAY_NOTIFY_BASE_URL", "http://notify.local")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, "file", cfg.StoreBackend)
	assert.Equal(t, 20*time.Minute, cfg.StreamTimeout)
	assert.Equal(t, 10, cfg.EventBatchSize)
	assert.Equal(t, 7*24*time.Hour, cfg.CleanupRetention)
}

func TestFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
listen_addr: ":9090"
store_backend: sqlite
sqlite_dsn: /tmp/relay-test.db
agent_base_url: http://agent.local
notify_base_url: http://notify.local
stream_timeout: 5m
event_batch_size: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "/tmp/relay-test.db", cfg.SQLiteDSN)
	assert.Equal(t, 5*time.Minute, cfg.StreamTimeout)
	assert.Equal(t, 3, cfg.EventBatchSize)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
listen_addr: ":9090"
agent_base_url: http://agent.local
notify_base_url: http://notify.local
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("RELAY_LISTEN_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Default()
	base.AgentBaseURL = "http://agent.local"
	base.NotifyBaseURL = "http://notify.local"
	require.NoError(t, base.Validate())

	bad := base
	bad.StoreBackend = "redis"
	assert.Error(t, bad.Validate())

	bad = base
	bad.AgentBaseURL = ""
	assert.Error(t, bad.Validate())

	bad = base
	bad.NotifyBaseURL = ""
	assert.Error(t, bad.Validate())

	bad = base
	bad.StreamTimeout = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.EventBatchSize = -1
	assert.Error(t, bad.Validate())
}
