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


// Package memory provides an in-memory graph.Sink for tests and for runs
// without a configured broker.
package memory

import (
	"context"
	"sync"

	"github.com/vectral/normpipe/graph"
)

// Sink accumulates edges in memory.
type Sink struct {
	// FailWith, when set, makes every InsertEdges return this error.
	FailWith error

	mu    sync.Mutex
	edges []graph.Edge
}

var _ graph.Sink = (*Sink)(nil)

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) InsertEdges(ctx context.Context, edges []graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.edges = append(s.edges, edges...)
	return nil
}

func (s *Sink) Close() error {
	return nil
}

// Edges returns a copy of all recorded edges.
func (s *Sink) Edges() []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]graph.Edge(nil), s.edges...)
}
