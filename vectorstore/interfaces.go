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


// Package vectorstore defines the vector sink contract and the dual writer
// that indexes every document into two independent stores. The stores are
// append-mostly external services with no transactional coupling between
// them; a write that lands in one but not the other is a partial failure
// recorded for repair, not a rollback.
package vectorstore

import (
	"context"

	"github.com/vectral/normpipe/core"
)

// Store is one vector sink. Upserts are idempotent on the chunk key, so
// replays after a crash or during repair are safe.
type Store interface {
	// Name identifies the store in ledger entries and repair runs.
	Name() string
	// Upsert writes the records, replacing any existing record with the
	// same chunk key.
	Upsert(ctx context.Context, records []core.VectorRecord) error
	// Close releases the store's resources.
	Close() error
}
