package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/falmar/swarmman/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 2375, cfg.Engine.Port)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "1.43", cfg.Engine.APIVersion)
	assert.False(t, cfg.Engine.ForceLeave)
	assert.True(t, cfg.Utilization.SubtractCache)
	assert.Empty(t, cfg.Utilization.MemoryUnsupportedArchitectures)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 20*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, "169.254.169.254", cfg.EC2.Host)
	assert.Equal(t, 21600, cfg.EC2.TokenTTL)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
engine:
  default_manager_address: 10.0.0.1:2375
  timeout: 3s
utilization:
  subtract_cache: false
  memory_unsupported_architectures: [armv7l, armv6l]
storage:
  type: memory
slack:
  channel: "#ops"
`)
	t.Setenv("SWARMMAN_ENGINE_PORT", "2376")
	t.Setenv("SWARMMAN_SLACK_TOKEN", "xoxb-env")
	t.Setenv("SWARMMAN_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:2375", cfg.Engine.DefaultManagerAddress)
	assert.Equal(t, 3*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 2376, cfg.Engine.Port)
	assert.False(t, cfg.Utilization.SubtractCache)
	assert.Equal(t, []string{"armv7l", "armv6l"}, cfg.Utilization.MemoryUnsupportedArchitectures)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "#ops", cfg.Slack.Channel)
	assert.Equal(t, "xoxb-env", cfg.Slack.Token)

	level, err := config.ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		desc string
		body string
	}{
		{desc: "storage type", body: "storage:\n  type: badger\n"},
		{desc: "engine port", body: "engine:\n  port: 70000\n"},
		{desc: "log level", body: "log:\n  level: loud\n"},
		{desc: "sqs poll interval", body: "queue:\n  sqs_url: https://sqs/q.fifo\n  poll_interval: 30s\n"},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, c.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
