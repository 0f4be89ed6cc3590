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


// Package pgvector implements vectorstore.Store on PostgreSQL with the
// pgvector extension. This is the primary (external) store of the pair.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/vectorstore"
)

// StoreName is how this store appears in ledger entries.
const StoreName = "pgvector"

const bootstrapSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS chunk_vectors (
	chunk_key  text PRIMARY KEY,
	embedding  vector(%d) NOT NULL,
	metadata   jsonb NOT NULL DEFAULT '{}'::jsonb,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Store writes chunk vectors into a chunk_vectors table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore connects to PostgreSQL, verifies the connection and bootstraps
// the schema for the given vector dimensionality.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(bootstrapSchema, dimensions)); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "pgvector-store"),
	}, nil
}

func (s *Store) Name() string {
	return StoreName
}

// Upsert writes the records in one transaction, replacing rows that share a
// chunk key.
func (s *Store) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunk_vectors (chunk_key, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chunk_key)
		DO UPDATE SET embedding = EXCLUDED.embedding,
		              metadata = EXCLUDED.metadata,
		              updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ChunkKey, pgvector.NewVector(r.Vector), metadata); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Debug("upserted vector records", "records", len(records))
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
