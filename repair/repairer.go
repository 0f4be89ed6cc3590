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


// Package repair replays partially indexed documents into the vector store
// that missed them. It works entirely from the ledger and the retained
// snapshots: vectors are never recomputed, so repair needs no embedding
// backend and costs no provider calls.
package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
	"github.com/vectral/normpipe/vectorstore"
)

// StoreLookup resolves store names recorded on ledger entries.
type StoreLookup interface {
	Store(name string) (vectorstore.Store, bool)
}

// Summary reports the outcome of one repair pass.
type Summary struct {
	// Scanned is how many documents carried partial store failures.
	Scanned int
	// Repaired is how many documents now exist in every store.
	Repaired int
	// Remaining is how many documents still carry partial failures.
	Remaining int
	// Orphaned is how many documents could not be repaired because their
	// snapshot is gone; they need a full reset and reprocessing.
	Orphaned int
}

// Repairer replays snapshot vectors into stores that missed them.
type Repairer struct {
	ledger    ledger.Ledger
	snapshots ledger.SnapshotRepository
	stores    StoreLookup
	progress  io.Writer
	logger    *slog.Logger
}

// NewRepairer creates a repairer. progress receives human-readable progress
// output and may be io.Discard.
func NewRepairer(led ledger.Ledger, snaps ledger.SnapshotRepository, stores StoreLookup, progress io.Writer) (*Repairer, error) {
	switch {
	case led == nil:
		return nil, fmt.Errorf("ledger required")
	case snaps == nil:
		return nil, fmt.Errorf("snapshot repository required")
	case stores == nil:
		return nil, fmt.Errorf("store lookup required")
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Repairer{
		ledger:    led,
		snapshots: snaps,
		stores:    stores,
		progress:  progress,
		logger:    slog.Default().With("component", "repairer"),
	}, nil
}

// Run scans the ledger for documents with partial store failures and retries
// each failed store. Documents whose stores all succeed have their partial
// list cleared and their snapshot released.
func (r *Repairer) Run(ctx context.Context) (*Summary, error) {
	candidates, err := r.collect(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Scanned: len(candidates)}
	if len(candidates) == 0 {
		return summary, nil
	}

	tracker := NewProgressTracker(r.progress, len(candidates), 1)
	tracker.Start()
	defer tracker.Finish()

	for _, entry := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.repairDocument(ctx, entry, summary); err != nil {
			return summary, err
		}
		tracker.Increment(1)
	}

	r.logger.Info("repair pass complete",
		"scanned", summary.Scanned,
		"repaired", summary.Repaired,
		"remaining", summary.Remaining,
		"orphaned", summary.Orphaned)
	return summary, nil
}

func (r *Repairer) collect(ctx context.Context) ([]*core.LedgerEntry, error) {
	var candidates []*core.LedgerEntry
	err := r.ledger.Scan(ctx, func(entry *core.LedgerEntry) error {
		if entry.Outcome == core.OutcomeDone && len(entry.PartialStores) > 0 {
			candidates = append(candidates, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning ledger: %w", err)
	}
	return candidates, nil
}

// repairDocument retries every failed store for one document. Per-store
// failures are not errors: they stay recorded for the next pass. Only a
// ledger durability failure aborts the run.
func (r *Repairer) repairDocument(ctx context.Context, entry *core.LedgerEntry, summary *Summary) error {
	log := r.logger.With("path", entry.Path, "fingerprint", entry.Fingerprint.String())

	snap, err := r.snapshots.LoadSnapshot(ctx, entry.Fingerprint)
	if errors.Is(err, ledger.ErrNotFound) {
		log.Error("snapshot missing, document needs reset and reprocessing",
			"stores", entry.PartialStores)
		summary.Orphaned++
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	records := snap.VectorRecords(entry.Path)
	var remaining []string
	for _, name := range entry.PartialStores {
		store, ok := r.stores.Store(name)
		if !ok {
			log.Warn("store not configured, skipping", "store", name)
			remaining = append(remaining, name)
			continue
		}
		if err := store.Upsert(ctx, records); err != nil {
			log.Warn("store still failing", "store", name, "err", err)
			remaining = append(remaining, name)
			continue
		}
		log.Info("store backfilled", "store", name, "records", len(records))
	}

	if len(remaining) == len(entry.PartialStores) && len(remaining) > 0 {
		summary.Remaining++
		return nil
	}

	entry.PartialStores = remaining
	if err := r.ledger.Record(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", core.ErrLedgerWrite, err)
	}

	if len(remaining) > 0 {
		summary.Remaining++
		return nil
	}
	if err := r.snapshots.DeleteSnapshot(ctx, entry.Fingerprint); err != nil {
		log.Warn("failed to delete snapshot", "err", err)
	}
	summary.Repaired++
	return nil
}
