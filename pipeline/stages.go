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


package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/quality"
)

// runStage executes one stage against the document state. The orchestrator
// commits the stage to the ledger only after this returns nil, so every
// stage must be safe to re-run after a crash.
func (o *Orchestrator) runStage(ctx context.Context, stage core.Stage, state *docState) error {
	switch stage {
	case core.StageValidated:
		return o.stageValidate(state)
	case core.StageDuplicateChecked:
		// Dedup happens before the document enters the stage loop, via the
		// run claim map and the ledger lookup. This stage only marks it.
		return nil
	case core.StageExtracted:
		return o.stageExtract(ctx, state)
	case core.StageClassified:
		state.snap.DocType = quality.Classify(state.snap.Text)
		return nil
	case core.StageStructurallyAnalyzed:
		state.snap.Tree = o.cfg.Analyzer.Analyze(state.snap.Text, state.snap.Hints)
		return nil
	case core.StageMetadataExtracted:
		md := quality.ExtractMetadata(state.snap.Text)
		state.snap.Identifier = md.Identifier
		state.snap.Version = md.Version
		return nil
	case core.StageQualityChecked:
		return o.stageQualityCheck(state)
	case core.StageTypeProcessed:
		return o.stageTypeProcess(state)
	case core.StageWorkSequenced:
		if state.snap.DocType == core.DocTypeProcess {
			state.snap.WorkSequence = extractWorkSequence(state.snap.Tree)
		}
		return nil
	case core.StageChunked:
		return o.stageChunk(state)
	case core.StageEmbedded:
		return o.stageEmbed(ctx, state)
	case core.StageIndexedStoreA:
		return o.stageIndexStoreA(ctx, state)
	case core.StageIndexedStoreB:
		return o.stageIndexStoreB(ctx, state)
	case core.StageDone:
		o.cfg.Graph.RecordDocument(ctx, state.doc.Fingerprint, state.snap.Chunks)
		return nil
	default:
		return fmt.Errorf("%w: %d", core.ErrInvalidStage, stage)
	}
}

// stageValidate re-checks the file on disk against what discovery recorded.
// A size mismatch means the content changed after fingerprinting, which
// would index the wrong bytes under a stale fingerprint.
func (o *Orchestrator) stageValidate(state *docState) error {
	if err := core.ValidateSourceDocument(&state.doc); err != nil {
		return err
	}
	info, err := os.Stat(state.doc.Path)
	if err != nil {
		return fmt.Errorf("source file unreadable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("source path is a directory")
	}
	if info.Size() != state.doc.Size {
		return fmt.Errorf("source file changed since discovery: size %d, expected %d",
			info.Size(), state.doc.Size)
	}
	return nil
}

func (o *Orchestrator) stageExtract(ctx context.Context, state *docState) error {
	res, err := o.cfg.Extractor.Extract(ctx, state.doc)
	if err != nil {
		return err
	}
	state.snap.Text = res.Text
	state.snap.Coverage = res.Coverage
	state.snap.Hints = res.Hints
	return nil
}

func (o *Orchestrator) stageQualityCheck(state *docState) error {
	md := quality.ExtractMetadata(state.snap.Text)
	density := state.snap.Tree.Node(state.snap.Tree.Root()).Density

	score := o.cfg.Quality.Score(state.snap.Coverage, state.snap.Tree.Len(), density, md.Signals)
	state.snap.Confidence = score

	switch o.cfg.Quality.Evaluate(score) {
	case quality.VerdictReject:
		return fmt.Errorf("%w: confidence %.2f below floor", core.ErrQualityRejection, score)
	case quality.VerdictFlag:
		state.snap.Flagged = true
		o.logger.Warn("document flagged for review",
			"path", state.doc.Path,
			"fingerprint", state.doc.Fingerprint.String(),
			"confidence", score)
	}
	return nil
}

// stageTypeProcess applies the type-specific rules. Normative documents are
// expected to carry an identifier; one without is kept but flagged.
func (o *Orchestrator) stageTypeProcess(state *docState) error {
	if state.snap.DocType != core.DocTypeNorm {
		return nil
	}
	if state.snap.Identifier == "" {
		state.snap.Flagged = true
		o.logger.Warn("normative document without identifier",
			"path", state.doc.Path,
			"fingerprint", state.doc.Fingerprint.String())
		return nil
	}
	state.snap.Identifier = normalizeIdentifier(state.snap.Identifier)
	return nil
}

func (o *Orchestrator) stageChunk(state *docState) error {
	chunks := o.cfg.Chunker.Chunk(state.snap.Tree)
	if len(chunks) == 0 {
		return fmt.Errorf("document produced no chunks")
	}
	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			return err
		}
	}
	state.snap.Chunks = chunks
	return nil
}

func (o *Orchestrator) stageEmbed(ctx context.Context, state *docState) error {
	texts := make([]string, len(state.snap.Chunks))
	for i, c := range state.snap.Chunks {
		texts[i] = c.Text
	}
	vectors, err := o.cfg.Embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	state.snap.Vectors = vectors
	return nil
}

// stageIndexStoreA writes every chunk vector to all stores in parallel.
// Stores that fail are recorded on the entry for the retry stage; the stage
// itself fails only when no store accepted the write.
func (o *Orchestrator) stageIndexStoreA(ctx context.Context, state *docState) error {
	records := state.snap.VectorRecords(state.doc.Path)
	failed, err := o.cfg.Stores.Write(ctx, records)
	if err != nil {
		return err
	}
	state.entry.PartialStores = failed
	return nil
}

// stageIndexStoreB retries each store that missed the parallel write, once.
// Stores still failing stay on the entry as repairable partial failures;
// the document completes because it is queryable from the healthy store.
func (o *Orchestrator) stageIndexStoreB(ctx context.Context, state *docState) error {
	if len(state.entry.PartialStores) == 0 {
		return nil
	}

	records := state.snap.VectorRecords(state.doc.Path)
	var remaining []string
	for _, name := range state.entry.PartialStores {
		store, ok := o.cfg.Stores.Store(name)
		if !ok {
			remaining = append(remaining, name)
			continue
		}
		if err := store.Upsert(ctx, records); err != nil {
			o.logger.Warn("store retry failed, queued for repair",
				"store", name,
				"fingerprint", state.doc.Fingerprint.String(),
				"err", err)
			remaining = append(remaining, name)
			continue
		}
		o.logger.Info("store retry succeeded",
			"store", name,
			"fingerprint", state.doc.Fingerprint.String())
	}
	state.entry.PartialStores = remaining
	return nil
}

// normalizeIdentifier collapses whitespace and uppercases the designation so
// "gost  12345-2020" and "GOST 12345-2020" index identically.
func normalizeIdentifier(id string) string {
	return strings.ToUpper(strings.Join(strings.Fields(id), " "))
}
