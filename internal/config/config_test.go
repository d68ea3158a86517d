package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "device.commands", cfg.Kafka.CommandTopic)
	assert.Equal(t, "device.telemetry", cfg.Kafka.TelemetryTopic)
	assert.Equal(t, 5*time.Second, cfg.Publisher.Interval)
	assert.Equal(t, 3, cfg.Publisher.MaxRetries)
	assert.Equal(t, 0.05, cfg.Correlator.Tolerance)
	assert.Equal(t, 5*time.Minute, cfg.Correlator.ConfirmWindow)
	assert.Equal(t, 10, cfg.RateLimit.RPS)
}

func TestLoadMergesUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
publisher:
  batch_size: 200
correlator:
  tolerance: 0.1
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 200, cfg.Publisher.BatchSize)
	assert.Equal(t, 0.1, cfg.Correlator.Tolerance)

	// untouched keys keep their defaults
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Publisher.MaxRetries)
}

func TestLoadMissingUserFileFallsBack(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}
