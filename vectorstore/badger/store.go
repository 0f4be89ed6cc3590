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


// Package badger implements vectorstore.Store on an embedded BadgerDB.
// This is the secondary store of the pair and the one similarity search
// queries, since it needs no external service.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
	"github.com/vectral/normpipe/vectorstore"
)

// StoreName is how this store appears in ledger entries.
const StoreName = "badger"

const recordPrefix = "vecrec:"

// Store keeps vector records in their own badger database, separate from
// the ledger's.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// Match is one similarity search hit.
type Match struct {
	Record core.VectorRecord
	Score  float32
}

// NewStore opens the vector database at path, creating it if needed.
func NewStore(path string, inMemory bool) (*Store, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "badger-store"),
	}, nil
}

func (s *Store) Name() string {
	return StoreName
}

// Upsert writes the records in one transaction, keyed by chunk key.
func (s *Store) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.db.IsClosed() {
		return fmt.Errorf("vector store closed")
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	for i := range records {
		value := ledger.MarshalVectorRecord(&records[i])
		if err := tx.Set(recordKey(records[i].ChunkKey), value); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Debug("upserted vector records", "records", len(records))
	return nil
}

// Get returns the stored record with the given chunk key, or false if none
// exists.
func (s *Store) Get(ctx context.Context, chunkKey string) (*core.VectorRecord, bool, error) {
	var record *core.VectorRecord

	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get(recordKey(chunkKey))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = ledger.UnmarshalVectorRecord(val)
		return unmarshalErr
	})
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// FindSimilar scans all records and returns the top matches by cosine
// similarity, best first. Vectors are assumed normalized, so similarity is
// the dot product.
func (s *Store) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]Match, error) {
	var matches []Match

	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(recordPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var record *core.VectorRecord
		err := iter.Item().Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = ledger.UnmarshalVectorRecord(val)
			return unmarshalErr
		})
		if err != nil {
			return nil, err
		}
		if len(record.Vector) == 0 {
			continue
		}

		similarity := dotProduct(vector, record.Vector)
		if similarity >= minSimilarity {
			matches = append(matches, Match{Record: *record, Score: similarity})
		}
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(chunkKey string) []byte {
	return []byte(recordPrefix + chunkKey)
}

// dotProduct of two vectors; mismatched lengths score zero.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
