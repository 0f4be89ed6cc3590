package repair_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
	ledgerbadger "github.com/vectral/normpipe/ledger/badger"
	"github.com/vectral/normpipe/repair"
	"github.com/vectral/normpipe/vectorstore"
	memstore "github.com/vectral/normpipe/vectorstore/memory"
)

func seedPartialDocument(t *testing.T, led *ledgerbadger.Ledger, fp core.Fingerprint, stores []string) *core.DocumentSnapshot {
	t.Helper()

	entry := &core.LedgerEntry{
		Fingerprint:   fp,
		Path:          "/docs/gost.txt",
		Format:        "txt",
		Size:          128,
		Stage:         core.StageDone,
		Outcome:       core.OutcomeDone,
		PartialStores: stores,
		DiscoveredAt:  time.Now().UTC(),
	}
	require.NoError(t, led.Record(context.Background(), entry))

	snap := &core.DocumentSnapshot{
		Fingerprint: fp,
		DocType:     core.DocTypeNorm,
		Identifier:  "ГОСТ 12345-2020",
		Chunks: []core.Chunk{
			{Seq: 0, Text: "first chunk", ParentSeq: -1},
			{Seq: 1, Text: "second chunk", ParentSeq: 0},
		},
		Vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
	}
	require.NoError(t, led.SaveSnapshot(context.Background(), snap))
	return snap
}

func newStores(t *testing.T) (*memstore.Store, *memstore.Store, *vectorstore.DualWriter) {
	t.Helper()
	a := memstore.NewStore("alpha")
	b := memstore.NewStore("beta")
	dual, err := vectorstore.NewDualWriter(a, b)
	require.NoError(t, err)
	return a, b, dual
}

func TestRepairer_BackfillsFailedStore(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	fp := core.Fingerprint(7)
	snap := seedPartialDocument(t, led, fp, []string{"beta"})
	_, storeB, dual := newStores(t)

	rep, err := repair.NewRepairer(led, led, dual, io.Discard)
	require.NoError(t, err)

	summary, err := rep.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Repaired)
	assert.Zero(t, summary.Remaining)
	assert.Zero(t, summary.Orphaned)

	// Only the failed store was written.
	assert.Equal(t, len(snap.Chunks), storeB.Len())
	rec, ok := storeB.Get(snap.Chunks[0].Key(fp))
	require.True(t, ok)
	assert.Equal(t, "ГОСТ 12345-2020", rec.Metadata["identifier"])
	assert.Equal(t, "/docs/gost.txt", rec.Metadata["path"])

	entry, err := led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Empty(t, entry.PartialStores)

	_, err = led.LoadSnapshot(context.Background(), fp)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRepairer_StoreStillDownStaysQueued(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	fp := core.Fingerprint(7)
	seedPartialDocument(t, led, fp, []string{"beta"})
	_, storeB, dual := newStores(t)
	storeB.FailWith = assert.AnError

	rep, err := repair.NewRepairer(led, led, dual, io.Discard)
	require.NoError(t, err)

	summary, err := rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Zero(t, summary.Repaired)
	assert.Equal(t, 1, summary.Remaining)

	entry, err := led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, entry.PartialStores)

	// The snapshot survives for the next pass.
	_, err = led.LoadSnapshot(context.Background(), fp)
	require.NoError(t, err)

	// The next pass with a healthy store completes the repair.
	storeB.FailWith = nil
	summary, err = rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repaired)
	assert.Equal(t, len(seedChunks()), storeB.Len())
}

func seedChunks() []core.Chunk {
	return []core.Chunk{
		{Seq: 0, Text: "first chunk", ParentSeq: -1},
		{Seq: 1, Text: "second chunk", ParentSeq: 0},
	}
}

func TestRepairer_MissingSnapshotIsOrphaned(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	fp := core.Fingerprint(7)
	seedPartialDocument(t, led, fp, []string{"beta"})
	require.NoError(t, led.DeleteSnapshot(context.Background(), fp))

	_, _, dual := newStores(t)
	rep, err := repair.NewRepairer(led, led, dual, io.Discard)
	require.NoError(t, err)

	summary, err := rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Orphaned)
	assert.Zero(t, summary.Repaired)

	// The entry keeps its partial list so the condition stays visible.
	entry, err := led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, entry.PartialStores)
}

func TestRepairer_NothingToRepair(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	entry := &core.LedgerEntry{
		Fingerprint: 9,
		Path:        "/docs/clean.txt",
		Stage:       core.StageDone,
		Outcome:     core.OutcomeDone,
	}
	require.NoError(t, led.Record(context.Background(), entry))

	_, _, dual := newStores(t)
	rep, err := repair.NewRepairer(led, led, dual, io.Discard)
	require.NoError(t, err)

	summary, err := rep.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
}

func TestRepairer_UnknownStoreStaysQueued(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	fp := core.Fingerprint(7)
	seedPartialDocument(t, led, fp, []string{"gamma"})
	_, _, dual := newStores(t)

	rep, err := repair.NewRepairer(led, led, dual, io.Discard)
	require.NoError(t, err)

	summary, err := rep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Remaining)

	entry, err := led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma"}, entry.PartialStores)
}

func TestNewRepairer_Validation(t *testing.T) {
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()
	_, _, dual := newStores(t)

	_, err = repair.NewRepairer(nil, led, dual, io.Discard)
	assert.Error(t, err)
	_, err = repair.NewRepairer(led, nil, dual, io.Discard)
	assert.Error(t, err)
	_, err = repair.NewRepairer(led, led, nil, io.Discard)
	assert.Error(t, err)
}

func TestProgressTracker_Reports(t *testing.T) {
	var buf bytes.Buffer
	tracker := repair.NewProgressTracker(&buf, 10, 5)
	tracker.Start()
	tracker.Increment(5)
	tracker.Increment(5)
	tracker.Finish()

	out := buf.String()
	assert.True(t, strings.Contains(out, "5/10"), "got %q", out)
	assert.True(t, strings.Contains(out, "10/10 (100.0%)"), "got %q", out)
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}
