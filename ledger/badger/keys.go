package badger

import (
	"fmt"

	"github.com/vectral/normpipe/core"
)

// Key prefixes for different data types
const (
	entryPrefix    = "docent"
	dupEntryPrefix = "docdup"
	snapshotPrefix = "docsnap"
	runPrefix      = "runrec"
)

// makeEntryKey generates the primary ledger key for a fingerprint.
func makeEntryKey(fp core.Fingerprint) []byte {
	return []byte(fmt.Sprintf("%s:%s", entryPrefix, fp))
}

// makeDupEntryKey generates a key for a skipped-duplicate entry.
// Format: prefix:fingerprint:pathHash, so all duplicates of one fingerprint
// share a scannable prefix while the primary entry stays untouched.
func makeDupEntryKey(fp core.Fingerprint, path string) []byte {
	pathHash := core.FingerprintBytes([]byte(path))
	return []byte(fmt.Sprintf("%s:%s:%s", dupEntryPrefix, fp, pathHash))
}

// makeDupEntryPrefix generates the scan prefix for all duplicate entries of
// one fingerprint.
func makeDupEntryPrefix(fp core.Fingerprint) []byte {
	return []byte(fmt.Sprintf("%s:%s:", dupEntryPrefix, fp))
}

// makeSnapshotKey generates the key for a document snapshot.
func makeSnapshotKey(fp core.Fingerprint) []byte {
	return []byte(fmt.Sprintf("%s:%s", snapshotPrefix, fp))
}

// makeRunKey generates the key for a run record.
func makeRunKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", runPrefix, id))
}
