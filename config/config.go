// Copyright 2025 Vectral Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads and validates pipeline configuration from a YAML
// file with environment-variable overrides. Every subsystem gets a typed
// section; omitted sections fall back to local-development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Vectors   VectorsConfig   `yaml:"vectors"`
	Graph     GraphConfig     `yaml:"graph"`
	Quality   QualityConfig   `yaml:"quality"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LedgerConfig locates the durable progress database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig controls filesystem discovery.
type DiscoveryConfig struct {
	Roots       []string `yaml:"roots"`
	MaxFileSize int64    `yaml:"maxFileSize"`
}

// EmbeddingConfig holds the embedding provider and batching parameters.
type EmbeddingConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	Token       string        `yaml:"token"`
	BatchSize   int           `yaml:"batchSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
}

// PostgresConfig holds connection parameters for the pgvector store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
}

// DSN returns a pgx-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// VectorsConfig holds the embedded vector store parameters.
type VectorsConfig struct {
	Path       string `yaml:"path"`
	Dimensions int    `yaml:"dimensions"`
}

// GraphConfig holds the provenance event sink parameters. With Enabled
// false, edges are dropped instead of published.
type GraphConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// QualityConfig tunes the confidence gate.
type QualityConfig struct {
	AcceptThreshold float64 `yaml:"acceptThreshold"`
	RejectThreshold float64 `yaml:"rejectThreshold"`
}

// ChunkingConfig tunes chunk boundaries, in runes.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"maxChunkSize"`
	MinChunkSize int `yaml:"minChunkSize"`
}

// PipelineConfig tunes run-level parallelism.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the config file at path, applies environment overrides and
// validates the result. An empty path loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns local-development defaults.
func defaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Path: "data/ledger",
		},
		Discovery: DiscoveryConfig{
			MaxFileSize: 64 << 20,
		},
		Embedding: EmbeddingConfig{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "nomic-embed-text",
			BatchSize:   32,
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "normpipe",
			User:     "normpipe",
			Password: "localdev",
			SSLMode:  "disable",
		},
		Vectors: VectorsConfig{
			Path:       "data/vectors",
			Dimensions: 768,
		},
		Graph: GraphConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "normpipe.graph.edges",
		},
		Quality: QualityConfig{
			AcceptThreshold: 0.65,
			RejectThreshold: 0.30,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 1600,
			MinChunkSize: 200,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NP_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("NP_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("NP_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("NP_EMBEDDING_TOKEN"); v != "" {
		cfg.Embedding.Token = v
	}
	if v := os.Getenv("NP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("NP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("NP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("NP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("NP_VECTORS_PATH"); v != "" {
		cfg.Vectors.Path = v
	}
	if v := os.Getenv("NP_KAFKA_BROKERS"); v != "" {
		cfg.Graph.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks cross-field constraints after defaults, file values and
// environment overrides have been merged.
func (c *Config) Validate() error {
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}
	if c.Discovery.MaxFileSize <= 0 {
		return fmt.Errorf("discovery.maxFileSize must be positive")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batchSize must be positive")
	}
	if c.Embedding.MaxAttempts <= 0 {
		return fmt.Errorf("embedding.maxAttempts must be positive")
	}
	if c.Vectors.Dimensions <= 0 {
		return fmt.Errorf("vectors.dimensions must be positive")
	}
	if c.Quality.RejectThreshold >= c.Quality.AcceptThreshold {
		return fmt.Errorf("quality.rejectThreshold must be below quality.acceptThreshold")
	}
	if c.Chunking.MinChunkSize <= 0 || c.Chunking.MaxChunkSize <= c.Chunking.MinChunkSize {
		return fmt.Errorf("chunking sizes must satisfy 0 < minChunkSize < maxChunkSize")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Graph.Enabled && len(c.Graph.Brokers) == 0 {
		return fmt.Errorf("graph.brokers required when graph is enabled")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
