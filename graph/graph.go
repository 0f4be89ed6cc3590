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


// Package graph records provenance edges between documents and their
// chunks. The sink is best-effort: an edge that fails to record is logged
// and dropped, never failing the indexing of the document.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vectral/normpipe/core"
)

// EdgeKind labels the relationship an edge records.
type EdgeKind string

const (
	// EdgeDocumentChunk links a document to one of its chunks.
	EdgeDocumentChunk EdgeKind = "document_chunk"
	// EdgeChunkParent links a chunk to its structural parent chunk.
	EdgeChunkParent EdgeKind = "chunk_parent"
)

// Edge is one provenance relationship.
type Edge struct {
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	To   string   `json:"to"`
}

// Sink consumes edges. Implementations decide durability; callers treat
// every sink as best-effort.
type Sink interface {
	InsertEdges(ctx context.Context, edges []Edge) error
	Close() error
}

// NopSink discards all edges, for deployments without a provenance broker.
type NopSink struct{}

func (NopSink) InsertEdges(ctx context.Context, edges []Edge) error { return nil }

func (NopSink) Close() error { return nil }

// Logger derives the provenance edges of a chunked document and hands them
// to the sink, swallowing sink failures.
type Logger struct {
	sink   Sink
	logger *slog.Logger
}

// NewLogger creates a graph logger over the sink.
func NewLogger(sink Sink) (*Logger, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	return &Logger{
		sink:   sink,
		logger: slog.Default().With("component", "graph-logger"),
	}, nil
}

// RecordDocument emits document-to-chunk edges for every chunk and
// chunk-to-parent edges where the chunk has a parent. Failure is logged,
// never returned: provenance must not block indexing.
func (l *Logger) RecordDocument(ctx context.Context, fp core.Fingerprint, chunks []core.Chunk) {
	if len(chunks) == 0 {
		return
	}

	edges := make([]Edge, 0, 2*len(chunks))
	for _, chunk := range chunks {
		key := chunk.Key(fp)
		edges = append(edges, Edge{
			Kind: EdgeDocumentChunk,
			From: fp.String(),
			To:   key,
		})
		if chunk.ParentSeq >= 0 {
			edges = append(edges, Edge{
				Kind: EdgeChunkParent,
				From: key,
				To:   core.Chunk{Seq: chunk.ParentSeq}.Key(fp),
			})
		}
	}

	if err := l.sink.InsertEdges(ctx, edges); err != nil {
		l.logger.Warn("failed to record provenance edges",
			"fingerprint", fp.String(),
			"edges", len(edges),
			"err", err)
		return
	}
	l.logger.Debug("recorded provenance edges",
		"fingerprint", fp.String(),
		"edges", len(edges))
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	return l.sink.Close()
}
