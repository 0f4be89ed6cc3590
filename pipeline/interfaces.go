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

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/extract"
	"github.com/vectral/normpipe/vectorstore"
)

// Discoverer yields candidate documents for a run.
type Discoverer interface {
	Discover(ctx context.Context, roots []string) ([]core.SourceDocument, error)
}

// Extractor turns a document into text plus layout hints.
type Extractor interface {
	Extract(ctx context.Context, doc core.SourceDocument) (*extract.Result, error)
}

// Analyzer converts text into a markup tree. It degrades, never fails.
type Analyzer interface {
	Analyze(text string, hints []core.LayoutHint) *core.MarkupTree
}

// Chunker cuts a markup tree into ordered chunks.
type Chunker interface {
	Chunk(tree *core.MarkupTree) []core.Chunk
}

// EmbeddingBatcher embeds chunk texts, one vector per text in input order.
type EmbeddingBatcher interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StoreWriter is the dual vector store surface the indexing stages drive.
type StoreWriter interface {
	// Write upserts into every store, returning names of stores that
	// failed. Error is non-nil only when no store accepted the write.
	Write(ctx context.Context, records []core.VectorRecord) ([]string, error)
	// StoreNames lists the configured stores in write order.
	StoreNames() []string
	// Store returns the named store for targeted retries.
	Store(name string) (vectorstore.Store, bool)
}

// GraphRecorder records provenance edges, best-effort.
type GraphRecorder interface {
	RecordDocument(ctx context.Context, fp core.Fingerprint, chunks []core.Chunk)
}
