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


package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vectral/normpipe/core"
)

// DualWriter writes records to both configured stores independently and in
// parallel. One store failing does not stop the other.
type DualWriter struct {
	stores []Store
	logger *slog.Logger
}

// NewDualWriter creates a writer over the two stores.
func NewDualWriter(a, b Store) (*DualWriter, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("both stores required")
	}
	if a.Name() == b.Name() {
		return nil, fmt.Errorf("stores must have distinct names, both are %q", a.Name())
	}
	return &DualWriter{
		stores: []Store{a, b},
		logger: slog.Default().With("component", "dual-writer"),
	}, nil
}

// StoreNames returns the configured store names in write order.
func (w *DualWriter) StoreNames() []string {
	names := make([]string, len(w.stores))
	for i, s := range w.stores {
		names[i] = s.Name()
	}
	return names
}

// Store returns the configured store with the given name, for repair runs
// that retry a single store.
func (w *DualWriter) Store(name string) (Store, bool) {
	for _, s := range w.stores {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Write upserts the records into every store and returns the names of the
// stores whose write failed. The error is non-nil only when no store
// accepted the records; a partial failure returns the failed names with a
// nil error so the caller can record them for repair.
func (w *DualWriter) Write(ctx context.Context, records []core.VectorRecord) ([]string, error) {
	errs := make([]error, len(w.stores))

	var wg sync.WaitGroup
	for i, store := range w.stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = store.Upsert(ctx, records)
		}()
	}
	wg.Wait()

	var failed []string
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := w.stores[i].Name()
		failed = append(failed, name)
		w.logger.Error("store write failed", "store", name, "records", len(records), "err", err)
	}

	if len(failed) == len(w.stores) {
		return failed, fmt.Errorf("%w: all stores rejected the write: %w", core.ErrStoreWrite, errs[0])
	}
	return failed, nil
}

// Close closes every store, returning the first error.
func (w *DualWriter) Close() error {
	var first error
	for _, s := range w.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
