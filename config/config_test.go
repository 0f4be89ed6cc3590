package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/ledger", cfg.Ledger.Path)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Embedding.BaseDelay)
	assert.Equal(t, 0.65, cfg.Quality.AcceptThreshold)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.False(t, cfg.Graph.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
ledger:
  path: /var/lib/normpipe/ledger
embedding:
  model: custom-embed
  batchSize: 16
quality:
  acceptThreshold: 0.7
  rejectThreshold: 0.2
pipeline:
  workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/normpipe/ledger", cfg.Ledger.Path)
	assert.Equal(t, "custom-embed", cfg.Embedding.Model)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.7, cfg.Quality.AcceptThreshold)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 3, cfg.Embedding.MaxAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("postgres:\n  host: filehost\n"), 0o644))

	t.Setenv("NP_POSTGRES_HOST", "envhost")
	t.Setenv("NP_POSTGRES_PORT", "5433")
	t.Setenv("NP_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Graph.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger: ["), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate_Thresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quality:\n  acceptThreshold: 0.3\n  rejectThreshold: 0.5\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejectThreshold")
}

func TestValidate_ChunkSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  maxChunkSize: 100\n  minChunkSize: 200\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate_LogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: verbose\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := config.PostgresConfig{
		Host: "db", Port: 5432, Database: "normpipe",
		User: "svc", Password: "secret", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db port=5432 user=svc password=secret dbname=normpipe sslmode=require",
		p.DSN())
}
