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


// Package search provides hybrid retrieval over indexed chunks: semantic
// similarity from the embedded vector store, boosted by exact normative
// identifier matches in the query.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/vectral/normpipe/embedding"
	"github.com/vectral/normpipe/quality"
	vectorbadger "github.com/vectral/normpipe/vectorstore/badger"
)

// Default search tuning.
const (
	// DefaultMinSimilarity is the similarity floor below which matches are
	// not worth returning.
	DefaultMinSimilarity = 0.60

	// identifierBoost is added to the score of chunks whose document
	// identifier appears verbatim in the query. Asking for "ГОСТ 12345"
	// should rank that standard's chunks above merely similar prose.
	identifierBoost = 0.15
)

// Result is one search hit.
type Result struct {
	ChunkKey   string
	Text       string
	Path       string
	Identifier string
	DocType    string
	Score      float32
}

// Searcher queries the embedded vector store.
type Searcher struct {
	store         *vectorbadger.Store
	embedder      embedding.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithMinSimilarity sets the similarity floor.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < 0 || min > 1 {
			return ErrInvalidSimilarity
		}
		s.minSimilarity = min
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a searcher over the store and embedder.
func NewSearcher(store *vectorbadger.Store, embedder embedding.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:         store,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindSimilar returns up to maxHits chunks relevant to the query, ranked by
// boosted similarity score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*Result, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor is FindSimilar with per-phase observation
// callbacks, used by the CLI to explain rankings.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor Monitor) ([]*Result, error) {
	if maxHits <= 0 {
		return nil, ErrInvalidMaxHits
	}
	if monitor == nil {
		monitor = noopMonitor{}
	}
	monitor.Start(query)

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		s.logger.Error("error embedding query", "err", err)
		return nil, err
	}

	// Over-fetch so identifier boosting can promote hits from below the
	// raw-similarity cutoff.
	matches, err := s.store.FindSimilar(ctx, vectors[0], s.minSimilarity, maxHits*2)
	if err != nil {
		s.logger.Error("error querying vector store", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(len(matches))

	queryID := quality.ExtractMetadata(query).Identifier
	if queryID != "" {
		monitor.FoundIdentifier(queryID)
	}

	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		res := &Result{
			ChunkKey:   match.Record.ChunkKey,
			Text:       match.Record.Metadata["text"],
			Path:       match.Record.Metadata["path"],
			Identifier: match.Record.Metadata["identifier"],
			DocType:    match.Record.Metadata["doc_type"],
			Score:      match.Score,
		}
		if queryID != "" && strings.EqualFold(res.Identifier, queryID) {
			res.Score += identifierBoost
		}
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(len(results))
	return results, nil
}
