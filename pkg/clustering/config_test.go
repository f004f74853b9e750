package clustering

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "louvain", cfg.Partitioner())
	assert.Equal(t, "cluster", cfg.Method())
	assert.Equal(t, 10, cfg.MaxLevels())
	assert.Equal(t, 1.0, cfg.Resolution())
	assert.Equal(t, int64(42), cfg.RandomSeed())
	assert.False(t, cfg.Parallel())
	assert.Positive(t, cfg.NumWorkers())
	assert.False(t, cfg.StrictSizes())
	assert.Equal(t, int64(4<<30), cfg.MaxDecodedBytes())
	assert.Equal(t, ":8080", cfg.ServerAddress())
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout())
	assert.Equal(t, time.Hour, cfg.JobTTL())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())

	opts := cfg.LouvainOptions(zerolog.Nop())
	assert.Equal(t, cfg.MaxIterations(), opts.MaxIterations)
	assert.Equal(t, cfg.MinModularityGain(), opts.MinModularityGain)
}

func TestConfigLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hsne.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
algorithm:
  partitioner: gonum
  method: label
  random_seed: 7
performance:
  parallel: true
  num_workers: 3
server:
  address: 127.0.0.1:9000
  write_timeout: 90s
  allowed_origins: [http://localhost:3000]
`), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, "gonum", cfg.Partitioner())
	assert.Equal(t, "label", cfg.Method())
	assert.Equal(t, int64(7), cfg.RandomSeed())
	assert.True(t, cfg.Parallel())
	assert.Equal(t, 3, cfg.NumWorkers())
	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddress())
	assert.Equal(t, 90*time.Second, cfg.WriteTimeout())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins())

	assert.Error(t, NewConfig().LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("HSNE_ALGORITHM_METHOD", "label")
	t.Setenv("HSNE_LOGGING_LEVEL", "debug")

	cfg := NewConfig()
	assert.Equal(t, "label", cfg.Method())
	assert.Equal(t, zerolog.DebugLevel, cfg.CreateLogger().GetLevel())
}

func TestCreateLoggerFallsBackToInfo(t *testing.T) {
	cfg := NewConfig()
	cfg.Set("logging.level", "chatty")
	assert.Equal(t, zerolog.InfoLevel, cfg.CreateLogger().GetLevel())
}
