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


// Package pipeline drives documents through the processing state machine.
// Distinct documents run in parallel on a bounded worker pool; each
// document's stage sequence is strictly sequential, and every completed
// stage is durably recorded in the ledger before the next one starts. A
// crash therefore resumes each document at the stage after its last
// recorded one, never reprocessing earlier stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
	"github.com/vectral/normpipe/quality"
)

// DefaultWorkers is the document worker pool size.
const DefaultWorkers = 4

// Config bundles the components the orchestrator drives. All fields are
// required.
type Config struct {
	Ledger     ledger.Ledger
	Snapshots  ledger.SnapshotRepository
	Discoverer Discoverer
	Extractor  Extractor
	Analyzer   Analyzer
	Quality    *quality.Controller
	Chunker    Chunker
	Embedder   EmbeddingBatcher
	Stores     StoreWriter
	Graph      GraphRecorder
}

func (c *Config) validate() error {
	switch {
	case c.Ledger == nil:
		return fmt.Errorf("ledger required")
	case c.Snapshots == nil:
		return fmt.Errorf("snapshot repository required")
	case c.Discoverer == nil:
		return fmt.Errorf("discoverer required")
	case c.Extractor == nil:
		return fmt.Errorf("extractor required")
	case c.Analyzer == nil:
		return fmt.Errorf("analyzer required")
	case c.Quality == nil:
		return fmt.Errorf("quality controller required")
	case c.Chunker == nil:
		return fmt.Errorf("chunker required")
	case c.Embedder == nil:
		return fmt.Errorf("embedder required")
	case c.Stores == nil:
		return fmt.Errorf("store writer required")
	case c.Graph == nil:
		return fmt.Errorf("graph recorder required")
	}
	return nil
}

// StageHook observes every durable stage transition. Hooks run on worker
// goroutines and must be fast and thread-safe.
type StageHook func(fp core.Fingerprint, stage core.Stage)

// Orchestrator runs the per-document state machine over a worker pool.
type Orchestrator struct {
	cfg       Config
	workers   int
	stageHook StageHook
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithWorkers sets the document worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return fmt.Errorf("worker count must be positive")
		}
		o.workers = n
		return nil
	}
}

// WithStageHook installs a stage transition observer.
func WithStageHook(hook StageHook) Option {
	return func(o *Orchestrator) error {
		o.stageHook = hook
		return nil
	}
}

// NewOrchestrator creates an orchestrator over the configured components.
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		workers: DefaultWorkers,
		logger:  slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// runState is the shared bookkeeping of one Execute call.
type runState struct {
	mu      sync.Mutex
	claimed map[core.Fingerprint]string // fingerprint -> first claiming path
	summary core.RunSummary
	fatal   error
	cancel  context.CancelFunc
}

// claim reserves a fingerprint for a path. The first claimer wins; later
// claimers with a different path are duplicates.
func (r *runState) claim(fp core.Fingerprint, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, ok := r.claimed[fp]; ok {
		return holder == path
	}
	r.claimed[fp] = path
	return true
}

// setFatal records a run-level failure and cancels the run. Only the first
// fatal error is kept.
func (r *runState) setFatal(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *runState) addProcessed(entry *core.LedgerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Processed++
	if len(entry.PartialStores) > 0 {
		r.summary.PartialStoreFailures = append(r.summary.PartialStoreFailures, core.PartialStoreFailure{
			Fingerprint: entry.Fingerprint,
			Path:        entry.Path,
			Stores:      append([]string(nil), entry.PartialStores...),
		})
	}
}

func (r *runState) addSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.SkippedDuplicate++
}

func (r *runState) addFailed(entry *core.LedgerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Failed = append(r.summary.Failed, core.FailedDocument{
		Fingerprint: entry.Fingerprint,
		Path:        entry.Path,
		Stage:       entry.FailStage,
		Reason:      entry.Reason,
	})
}

// Execute discovers candidates under the roots and drives each through the
// state machine. The returned summary covers this run only; a ledger
// durability failure aborts the whole run with an error.
func (o *Orchestrator) Execute(ctx context.Context, roots []string) (*core.RunSummary, error) {
	docs, err := o.cfg.Discoverer.Discover(ctx, roots)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &runState{
		claimed: make(map[core.Fingerprint]string, len(docs)),
		cancel:  cancel,
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, doc := range docs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			o.processDocument(runCtx, run, doc)
		}
		if err := pool.Submit(task); err != nil {
			// Pool refused the task; run it on this goroutine.
			task()
		}
	}
	wg.Wait()

	if run.fatal != nil {
		return nil, run.fatal
	}
	// The caller's cancellation is not an error for already-persisted
	// progress, but the run is incomplete.
	if err := ctx.Err(); err != nil {
		return &run.summary, err
	}

	o.logger.Info("run complete",
		"candidates", len(docs),
		"processed", run.summary.Processed,
		"skipped_duplicate", run.summary.SkippedDuplicate,
		"failed", len(run.summary.Failed),
		"partial_store_failures", len(run.summary.PartialStoreFailures))
	return &run.summary, nil
}

// docState carries one document through its stages.
type docState struct {
	doc   core.SourceDocument
	entry *core.LedgerEntry
	snap  *core.DocumentSnapshot
}

func (o *Orchestrator) processDocument(ctx context.Context, run *runState, doc core.SourceDocument) {
	log := o.logger.With("path", doc.Path, "fingerprint", doc.Fingerprint.String())

	if !run.claim(doc.Fingerprint, doc.Path) {
		o.recordDuplicate(ctx, run, doc)
		return
	}

	entry, err := o.cfg.Ledger.Lookup(ctx, doc.Fingerprint)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		entry = &core.LedgerEntry{
			Fingerprint:  doc.Fingerprint,
			Path:         doc.Path,
			Format:       doc.Format,
			Size:         doc.Size,
			Stage:        core.StageDiscovered,
			Outcome:      core.OutcomePending,
			DiscoveredAt: doc.DiscoveredAt,
		}
		if !o.record(ctx, run, entry) {
			return
		}
	case err != nil:
		run.setFatal(fmt.Errorf("%w: %w", core.ErrLedgerWrite, err))
		return
	default:
		if entry.Path != doc.Path {
			// Same content already tracked under another path.
			o.recordDuplicate(ctx, run, doc)
			return
		}
		if entry.Outcome != core.OutcomePending {
			return
		}
		log.Info("resuming document", "stage", entry.Stage.String())
	}

	state := &docState{doc: doc, entry: entry}
	if !o.loadSnapshot(ctx, run, state, log) {
		return
	}

	for state.entry.Stage < core.StageDone {
		if ctx.Err() != nil {
			log.Info("run cancelled, leaving document pending",
				"stage", state.entry.Stage.String())
			return
		}

		next := state.entry.Stage.Next()
		if err := o.runStage(ctx, next, state); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Interrupted mid-stage: the stage did not commit, so the
				// document stays pending and retries the stage on resume.
				return
			}
			o.failDocument(ctx, run, state, next, err)
			return
		}

		state.entry.Stage = next
		if next == core.StageDone {
			state.entry.Outcome = core.OutcomeDone
		}
		if snapshotStage(next) {
			if err := o.cfg.Snapshots.SaveSnapshot(ctx, state.snap); err != nil {
				run.setFatal(fmt.Errorf("%w: saving snapshot: %w", core.ErrLedgerWrite, err))
				return
			}
		}
		if !o.record(ctx, run, state.entry) {
			return
		}
		if o.stageHook != nil {
			o.stageHook(doc.Fingerprint, next)
		}
	}

	if len(state.entry.PartialStores) == 0 {
		// Terminal outcome with nothing left to repair: the derived
		// artifacts have served their purpose.
		if err := o.cfg.Snapshots.DeleteSnapshot(ctx, doc.Fingerprint); err != nil {
			log.Warn("failed to delete snapshot", "err", err)
		}
	}
	run.addProcessed(state.entry)
}

// loadSnapshot restores the persisted derived state for a resumed
// document. A pending entry past extraction with no snapshot is rewound to
// re-derive everything rather than fail.
func (o *Orchestrator) loadSnapshot(ctx context.Context, run *runState, state *docState, log *slog.Logger) bool {
	if state.entry.Stage >= core.StageExtracted {
		snap, err := o.cfg.Snapshots.LoadSnapshot(ctx, state.doc.Fingerprint)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			log.Warn("snapshot missing for pending document, reprocessing from extraction")
			state.entry.Stage = core.StageDuplicateChecked
		case err != nil:
			run.setFatal(fmt.Errorf("%w: loading snapshot: %w", core.ErrLedgerWrite, err))
			return false
		default:
			state.snap = snap
		}
	}
	if state.snap == nil {
		state.snap = &core.DocumentSnapshot{Fingerprint: state.doc.Fingerprint}
	}
	return true
}

// snapshotStage reports whether the stage mutates the snapshot and must
// persist it before the ledger records the stage as complete.
func snapshotStage(stage core.Stage) bool {
	return stage >= core.StageExtracted && stage <= core.StageEmbedded
}

// record durably writes the entry, halting the whole run on failure:
// proceeding with unrecorded progress would break resume guarantees.
func (o *Orchestrator) record(ctx context.Context, run *runState, entry *core.LedgerEntry) bool {
	if err := o.cfg.Ledger.Record(ctx, entry); err != nil {
		run.setFatal(fmt.Errorf("%w: %w", core.ErrLedgerWrite, err))
		return false
	}
	return true
}

func (o *Orchestrator) recordDuplicate(ctx context.Context, run *runState, doc core.SourceDocument) {
	entry := &core.LedgerEntry{
		Fingerprint:  doc.Fingerprint,
		Path:         doc.Path,
		Format:       doc.Format,
		Size:         doc.Size,
		Stage:        core.StageDuplicateChecked,
		Outcome:      core.OutcomeSkippedDuplicate,
		DiscoveredAt: doc.DiscoveredAt,
	}
	if err := o.cfg.Ledger.RecordDuplicate(ctx, entry); err != nil {
		run.setFatal(fmt.Errorf("%w: %w", core.ErrLedgerWrite, err))
		return
	}
	o.logger.Info("skipping duplicate content",
		"path", doc.Path,
		"fingerprint", doc.Fingerprint.String())
	run.addSkipped()
}

func (o *Orchestrator) failDocument(ctx context.Context, run *runState, state *docState, stage core.Stage, cause error) {
	state.entry.Outcome = core.OutcomeFailed
	state.entry.FailStage = stage
	state.entry.Reason = cause.Error()

	o.logger.Error("document failed",
		"path", state.doc.Path,
		"fingerprint", state.doc.Fingerprint.String(),
		"stage", stage.String(),
		"err", cause)

	if !o.record(ctx, run, state.entry) {
		return
	}
	if err := o.cfg.Snapshots.DeleteSnapshot(ctx, state.doc.Fingerprint); err != nil {
		o.logger.Warn("failed to delete snapshot", "err", err)
	}
	run.addFailed(state.entry)
}
