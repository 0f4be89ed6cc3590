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


// Package memory provides an in-memory vectorstore.Store for tests, with
// injectable write failures.
package memory

import (
	"context"
	"sync"

	"github.com/vectral/normpipe/core"
)

// Store keeps records in a map keyed by chunk key. Upserts overwrite, so it
// honors the idempotence contract.
type Store struct {
	name string

	// FailWith, when set, makes every Upsert return this error.
	FailWith error
	// FailNext makes the next Upsert fail once, then clears itself.
	FailNext error

	mu      sync.Mutex
	records map[string]core.VectorRecord
	upserts int
	closed  bool
}

// NewStore creates an empty in-memory store with the given name.
func NewStore(name string) *Store {
	return &Store{
		name:    name,
		records: make(map[string]core.VectorRecord),
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Upsert(ctx context.Context, records []core.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserts++
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}
	if s.FailWith != nil {
		return s.FailWith
	}

	for _, r := range records {
		s.records[r.ChunkKey] = r
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record with the given chunk key.
func (s *Store) Get(chunkKey string) (core.VectorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[chunkKey]
	return r, ok
}

// UpsertCalls returns how many times Upsert was invoked, including failed
// calls.
func (s *Store) UpsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
