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


package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
)

// Ledger implements ledger.Ledger, ledger.SnapshotRepository and
// ledger.RunRepository on a shared BadgerDB backend.
type Ledger struct {
	backend *Backend
}

var (
	_ ledger.Ledger             = (*Ledger)(nil)
	_ ledger.SnapshotRepository = (*Ledger)(nil)
	_ ledger.RunRepository      = (*Ledger)(nil)
)

// NewLedger creates a ledger on the given backend.
func NewLedger(backend *Backend) (*Ledger, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	return &Ledger{backend: backend}, nil
}

// Lookup returns the primary entry for a fingerprint.
func (l *Ledger) Lookup(ctx context.Context, fp core.Fingerprint) (*core.LedgerEntry, error) {
	if l.backend.IsClosed() {
		return nil, ledger.ErrStorageClosed
	}

	var entry *core.LedgerEntry
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeEntryKey(fp))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ledger.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			entry, unmarshalErr = ledger.UnmarshalLedgerEntry(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Record durably upserts the primary entry for a fingerprint.
func (l *Ledger) Record(ctx context.Context, entry *core.LedgerEntry) error {
	return l.record(makeEntryKey(entry.Fingerprint), entry)
}

// RecordDuplicate durably records a skipped-duplicate entry keyed by
// fingerprint and path, leaving the primary entry untouched.
func (l *Ledger) RecordDuplicate(ctx context.Context, entry *core.LedgerEntry) error {
	if entry != nil && entry.Outcome != core.OutcomeSkippedDuplicate {
		return fmt.Errorf("%w: duplicate entry must carry skipped_duplicate outcome", core.ErrInvalidLedgerEntry)
	}
	return l.record(makeDupEntryKey(entry.Fingerprint, entry.Path), entry)
}

func (l *Ledger) record(key []byte, entry *core.LedgerEntry) error {
	if err := core.ValidateLedgerEntry(entry); err != nil {
		return err
	}
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}

	entry.UpdatedAt = time.Now().UTC()
	value := ledger.MarshalLedgerEntry(entry)

	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Seen reports whether a primary entry exists for the fingerprint.
func (l *Ledger) Seen(ctx context.Context, fp core.Fingerprint) (bool, error) {
	_, err := l.Lookup(ctx, fp)
	if err == ledger.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Reset removes the primary entry, its duplicate entries and its snapshot
// so the document can be reprocessed from scratch.
func (l *Ledger) Reset(ctx context.Context, fp core.Fingerprint) error {
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}

	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeEntryKey(fp)); err != nil {
			return err
		}
		if err := tx.Delete(makeSnapshotKey(fp)); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDupEntryPrefix(fp)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			if err := tx.Delete(key); err != nil {
				iter.Close()
				return err
			}
		}
		iter.Close()

		return tx.Commit()
	}, true)
}

// Scan visits every entry, primary and duplicate, in key order.
func (l *Ledger) Scan(ctx context.Context, fn func(*core.LedgerEntry) error) error {
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}

	scanPrefix := func(prefix string) error {
		return l.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix + ":")
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var entry *core.LedgerEntry
				err := iter.Item().Value(func(val []byte) error {
					var unmarshalErr error
					entry, unmarshalErr = ledger.UnmarshalLedgerEntry(val)
					return unmarshalErr
				})
				if err != nil {
					return err
				}
				if err := fn(entry); err != nil {
					return err
				}
			}
			return nil
		}, false)
	}

	if err := scanPrefix(entryPrefix); err != nil {
		return err
	}
	return scanPrefix(dupEntryPrefix)
}

// SaveSnapshot durably upserts the snapshot for a fingerprint.
func (l *Ledger) SaveSnapshot(ctx context.Context, snap *core.DocumentSnapshot) error {
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}

	value := ledger.MarshalSnapshot(snap)
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeSnapshotKey(snap.Fingerprint), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadSnapshot returns the snapshot for a fingerprint.
func (l *Ledger) LoadSnapshot(ctx context.Context, fp core.Fingerprint) (*core.DocumentSnapshot, error) {
	if l.backend.IsClosed() {
		return nil, ledger.ErrStorageClosed
	}

	var snap *core.DocumentSnapshot
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeSnapshotKey(fp))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ledger.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			snap, unmarshalErr = ledger.UnmarshalSnapshot(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// DeleteSnapshot removes the snapshot for a fingerprint.
func (l *Ledger) DeleteSnapshot(ctx context.Context, fp core.Fingerprint) error {
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}

	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeSnapshotKey(fp)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// SaveRun durably upserts a run record.
func (l *Ledger) SaveRun(ctx context.Context, run *core.RunRecord) error {
	if l.backend.IsClosed() {
		return ledger.ErrStorageClosed
	}
	if run.ID == "" {
		return fmt.Errorf("run ID required")
	}

	value := ledger.MarshalRunRecord(run)
	return l.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRunKey(run.ID), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadRun returns the run record with the given ID.
func (l *Ledger) LoadRun(ctx context.Context, id string) (*core.RunRecord, error) {
	if l.backend.IsClosed() {
		return nil, ledger.ErrStorageClosed
	}

	var run *core.RunRecord
	err := l.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRunKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ledger.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			run, unmarshalErr = ledger.UnmarshalRunRecord(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Close closes the underlying backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}
