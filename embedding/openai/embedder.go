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


// Package openai implements embedding.Embedder against OpenAI-compatible
// embedding APIs, including local services that speak the same protocol.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/vectral/normpipe/embedding"
)

// Config holds the connection settings for the embedding service.
type Config struct {
	// BaseURL of the OpenAI-compatible endpoint.
	BaseURL string
	// Model is the embedding model name.
	Model string
	// Token authenticates the request. Local services that skip
	// authentication still need a placeholder value.
	Token string
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("embedding base URL required")
	}
	if c.Model == "" {
		return fmt.Errorf("embedding model required")
	}
	return nil
}

// Embedder implements embedding.Embedder over langchaingo's OpenAI client.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewEmbedder creates an embedder from the configuration.
//
// Returns the embedding.Embedder interface to enforce abstraction.
func NewEmbedder(config *Config) (embedding.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	token := config.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	wrapped, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: wrapped,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// EmbedTexts generates vector embeddings for a batch of texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	return vectors, nil
}
