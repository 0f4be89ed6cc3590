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


// Package normpipe assembles the document indexing pipeline from its
// configured parts: discovery, extraction, structural analysis, quality
// gating, chunking, embedding, dual vector-store indexing and graph
// provenance, all tracked through a crash-resumable ledger.
package normpipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vectral/normpipe/chunker"
	"github.com/vectral/normpipe/config"
	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/discover"
	"github.com/vectral/normpipe/embedding"
	"github.com/vectral/normpipe/embedding/openai"
	"github.com/vectral/normpipe/extract"
	"github.com/vectral/normpipe/graph"
	graphkafka "github.com/vectral/normpipe/graph/kafka"
	ledgerbadger "github.com/vectral/normpipe/ledger/badger"
	"github.com/vectral/normpipe/markup"
	"github.com/vectral/normpipe/pipeline"
	"github.com/vectral/normpipe/quality"
	"github.com/vectral/normpipe/repair"
	"github.com/vectral/normpipe/search"
	"github.com/vectral/normpipe/vectorstore"
	vectorbadger "github.com/vectral/normpipe/vectorstore/badger"
	"github.com/vectral/normpipe/vectorstore/pgvector"
)

// Indexer owns the pipeline's long-lived resources: the ledger database,
// the vector stores, the embedding client and the graph sink. One Indexer
// serves any number of runs.
type Indexer struct {
	cfg         *config.Config
	led         *ledgerbadger.Ledger
	embedder    embedding.Embedder
	batcher     *embedding.Batcher
	stores      *vectorstore.DualWriter
	vectorStore *vectorbadger.Store
	sink        graph.Sink
	graphLogger *graph.Logger
	logger      *slog.Logger
}

// IndexerOption overrides a constructed component, mainly for tests and
// alternate deployments.
type IndexerOption func(*indexerOptions)

type indexerOptions struct {
	embedder embedding.Embedder
	storeA   vectorstore.Store
	storeB   vectorstore.Store
	sink     graph.Sink
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(embedder embedding.Embedder) IndexerOption {
	return func(o *indexerOptions) { o.embedder = embedder }
}

// WithStores replaces both configured vector stores.
func WithStores(a, b vectorstore.Store) IndexerOption {
	return func(o *indexerOptions) {
		o.storeA = a
		o.storeB = b
	}
}

// WithGraphSink replaces the configured provenance sink.
func WithGraphSink(sink graph.Sink) IndexerOption {
	return func(o *indexerOptions) { o.sink = sink }
}

// NewIndexer opens every configured backend. The context bounds backend
// bootstrap, not the indexer's lifetime.
func NewIndexer(ctx context.Context, cfg *config.Config, opts ...IndexerOption) (*Indexer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	options := &indexerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := ledgerbadger.OpenBackend(cfg.Ledger.Path, false)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	led, err := ledgerbadger.NewLedger(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	idx := &Indexer{
		cfg:    cfg,
		led:    led,
		logger: slog.Default().With("component", "indexer"),
	}

	if err := idx.setupEmbedding(options); err != nil {
		led.Close()
		return nil, err
	}
	if err := idx.setupStores(ctx, options); err != nil {
		idx.batcher.Close()
		led.Close()
		return nil, err
	}
	if err := idx.setupGraph(options); err != nil {
		idx.stores.Close()
		idx.batcher.Close()
		led.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Indexer) setupEmbedding(options *indexerOptions) error {
	idx.embedder = options.embedder
	if idx.embedder == nil {
		embedder, err := openai.NewEmbedder(&openai.Config{
			BaseURL: idx.cfg.Embedding.BaseURL,
			Model:   idx.cfg.Embedding.Model,
			Token:   idx.cfg.Embedding.Token,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		idx.embedder = embedder
	}

	batcher, err := embedding.NewBatcher(idx.embedder,
		embedding.WithBatchSize(idx.cfg.Embedding.BatchSize),
		embedding.WithRetry(idx.cfg.Embedding.MaxAttempts, idx.cfg.Embedding.BaseDelay))
	if err != nil {
		return err
	}
	idx.batcher = batcher
	return nil
}

func (idx *Indexer) setupStores(ctx context.Context, options *indexerOptions) error {
	storeA, storeB := options.storeA, options.storeB
	if storeA == nil || storeB == nil {
		pg, err := pgvector.NewStore(ctx, idx.cfg.Postgres.DSN(), idx.cfg.Vectors.Dimensions)
		if err != nil {
			return fmt.Errorf("opening pgvector store: %w", err)
		}
		vec, err := vectorbadger.NewStore(idx.cfg.Vectors.Path, false)
		if err != nil {
			pg.Close()
			return fmt.Errorf("opening badger vector store: %w", err)
		}
		storeA, storeB = pg, vec
		idx.vectorStore = vec
	} else if vec, ok := storeB.(*vectorbadger.Store); ok {
		idx.vectorStore = vec
	}

	dual, err := vectorstore.NewDualWriter(storeA, storeB)
	if err != nil {
		storeA.Close()
		storeB.Close()
		return err
	}
	idx.stores = dual
	return nil
}

func (idx *Indexer) setupGraph(options *indexerOptions) error {
	idx.sink = options.sink
	if idx.sink == nil {
		if idx.cfg.Graph.Enabled {
			sink, err := graphkafka.NewSink(idx.cfg.Graph.Brokers, idx.cfg.Graph.Topic)
			if err != nil {
				return fmt.Errorf("creating graph sink: %w", err)
			}
			idx.sink = sink
		} else {
			idx.sink = graph.NopSink{}
		}
	}

	glog, err := graph.NewLogger(idx.sink)
	if err != nil {
		return err
	}
	idx.graphLogger = glog
	return nil
}

// newOrchestrator assembles the per-run stage components over the indexer's
// long-lived resources.
func (idx *Indexer) newOrchestrator() (*pipeline.Orchestrator, error) {
	disc, err := discover.NewDiscoverer(idx.led,
		discover.WithMaxFileSize(idx.cfg.Discovery.MaxFileSize))
	if err != nil {
		return nil, err
	}
	registry, err := extract.NewDefaultRegistry()
	if err != nil {
		return nil, err
	}
	analyzer, err := markup.NewAnalyzer()
	if err != nil {
		return nil, err
	}
	qc, err := quality.NewController(
		quality.WithThresholds(idx.cfg.Quality.AcceptThreshold, idx.cfg.Quality.RejectThreshold))
	if err != nil {
		return nil, err
	}
	chk, err := chunker.NewChunker(
		chunker.WithChunkSizes(idx.cfg.Chunking.MaxChunkSize, idx.cfg.Chunking.MinChunkSize))
	if err != nil {
		return nil, err
	}

	return pipeline.NewOrchestrator(pipeline.Config{
		Ledger:     idx.led,
		Snapshots:  idx.led,
		Discoverer: disc,
		Extractor:  registry,
		Analyzer:   analyzer,
		Quality:    qc,
		Chunker:    chk,
		Embedder:   idx.batcher,
		Stores:     idx.stores,
		Graph:      idx.graphLogger,
	}, pipeline.WithWorkers(idx.cfg.Pipeline.Workers))
}

// Run indexes every document under the roots and records the run so it can
// be resumed by ID after an interruption.
func (idx *Indexer) Run(ctx context.Context, roots []string) (*core.RunRecord, error) {
	record := &core.RunRecord{
		ID:        uuid.NewString(),
		Roots:     append([]string(nil), roots...),
		StartedAt: time.Now().UTC(),
	}
	if err := idx.led.SaveRun(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrLedgerWrite, err)
	}
	return idx.execute(ctx, record)
}

// Resume re-executes a recorded run. Settled documents are skipped by the
// ledger, so only unfinished ones do work.
func (idx *Indexer) Resume(ctx context.Context, runID string) (*core.RunRecord, error) {
	record, err := idx.led.LoadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return idx.execute(ctx, record)
}

func (idx *Indexer) execute(ctx context.Context, record *core.RunRecord) (*core.RunRecord, error) {
	orch, err := idx.newOrchestrator()
	if err != nil {
		return nil, err
	}

	idx.logger.Info("starting run", "run_id", record.ID, "roots", record.Roots)
	summary, execErr := orch.Execute(ctx, record.Roots)
	if summary != nil {
		summary.RunID = record.ID
		record.Summary = *summary
	}
	record.FinishedAt = time.Now().UTC()

	// Persist the outcome even for interrupted runs: that is what Resume
	// picks up.
	if err := idx.led.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		idx.logger.Error("failed to save run record", "run_id", record.ID, "err", err)
	}
	if execErr != nil {
		return record, execErr
	}
	return record, nil
}

// Repair replays retained snapshot vectors into stores that missed them.
// progress receives human-readable progress and may be nil.
func (idx *Indexer) Repair(ctx context.Context, progress io.Writer) (*repair.Summary, error) {
	if progress == nil {
		progress = io.Discard
	}
	rep, err := repair.NewRepairer(idx.led, idx.led, idx.stores, progress)
	if err != nil {
		return nil, err
	}
	return rep.Run(ctx)
}

// Reset removes a document's ledger entry, duplicates and snapshot so the
// next run reprocesses it from scratch. Store records are left in place and
// overwritten by the rerun's idempotent upserts.
func (idx *Indexer) Reset(ctx context.Context, fp core.Fingerprint) error {
	return idx.led.Reset(ctx, fp)
}

// RunRecord returns the persisted record of a run.
func (idx *Indexer) RunRecord(ctx context.Context, runID string) (*core.RunRecord, error) {
	return idx.led.LoadRun(ctx, runID)
}

// Ledger exposes the underlying ledger for reporting.
func (idx *Indexer) Ledger() *ledgerbadger.Ledger {
	return idx.led
}

// NewSearcher creates a searcher over the embedded vector store.
func (idx *Indexer) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	if idx.vectorStore == nil {
		return nil, fmt.Errorf("no embedded vector store configured")
	}
	return search.NewSearcher(idx.vectorStore, idx.embedder, opts...)
}

// Close releases every backend. Safe to call once.
func (idx *Indexer) Close() error {
	idx.batcher.Close()
	if err := idx.sink.Close(); err != nil {
		idx.logger.Error("error closing graph sink", "err", err)
	}
	if err := idx.stores.Close(); err != nil {
		idx.logger.Error("error closing vector stores", "err", err)
	}
	if err := idx.led.Close(); err != nil {
		idx.logger.Error("error closing ledger", "err", err)
		return err
	}
	return nil
}
