package ledger

import (
	"context"

	"github.com/vectral/normpipe/core"
)

// Repository provides operations common to all ledger-backed repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// Ledger is the durable progress record of the pipeline: one entry per
// content fingerprint, mapping it to the last completed stage and outcome.
// It is the single source of truth for resume and deduplication.
//
// Writes for one fingerprint are serialized by the backend; reads may be
// stale by at most one in-flight write.
type Ledger interface {
	Repository

	// Lookup returns the entry for a fingerprint.
	// Returns ErrNotFound if no entry exists.
	Lookup(ctx context.Context, fp core.Fingerprint) (*core.LedgerEntry, error)

	// Record durably upserts an entry. The write must be synced to stable
	// storage before Record returns: the orchestrator relies on this for
	// crash-consistent stage progression.
	Record(ctx context.Context, entry *core.LedgerEntry) error

	// RecordDuplicate durably records a skipped-duplicate entry for a path
	// whose content fingerprint already belongs to another document. The
	// primary entry for the fingerprint is left untouched.
	RecordDuplicate(ctx context.Context, entry *core.LedgerEntry) error

	// Seen reports whether the fingerprint has an entry.
	Seen(ctx context.Context, fp core.Fingerprint) (bool, error)

	// Reset removes the entry (and duplicates) for a fingerprint so the
	// document can be reprocessed from scratch.
	Reset(ctx context.Context, fp core.Fingerprint) error

	// Scan visits every entry, including duplicate entries, in key order.
	// Iteration stops on the first error from fn.
	Scan(ctx context.Context, fn func(*core.LedgerEntry) error) error
}

// SnapshotRepository persists per-document derived artifacts between stages.
// Snapshots exist only while a document is in flight: they are written
// incrementally after producing stages and deleted once the ledger entry
// reaches a terminal outcome with no pending store repairs.
type SnapshotRepository interface {
	Repository

	// SaveSnapshot durably upserts the snapshot for a fingerprint.
	SaveSnapshot(ctx context.Context, snap *core.DocumentSnapshot) error

	// LoadSnapshot returns the snapshot for a fingerprint.
	// Returns ErrNotFound if no snapshot exists.
	LoadSnapshot(ctx context.Context, fp core.Fingerprint) (*core.DocumentSnapshot, error)

	// DeleteSnapshot removes the snapshot for a fingerprint.
	// Deleting a missing snapshot is not an error.
	DeleteSnapshot(ctx context.Context, fp core.Fingerprint) error
}

// RunRepository persists run records so interrupted runs can be resumed.
type RunRepository interface {
	Repository

	// SaveRun durably upserts a run record.
	SaveRun(ctx context.Context, run *core.RunRecord) error

	// LoadRun returns the run record with the given ID.
	// Returns ErrNotFound if no record exists.
	LoadRun(ctx context.Context, id string) (*core.RunRecord, error)
}
