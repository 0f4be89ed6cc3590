package normpipe_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	normpipe "github.com/vectral/normpipe"
	"github.com/vectral/normpipe/config"
	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/embedding/mock"
	memgraph "github.com/vectral/normpipe/graph/memory"
	"github.com/vectral/normpipe/ledger"
	memstore "github.com/vectral/normpipe/vectorstore/memory"
)

const sampleDoc = `ГОСТ 54321-2019 Конструкции стальные

1 Область применения
Настоящий стандарт распространяется на стальные конструкции производственных зданий.

2 Нормативные ссылки
Сварные соединения выполняются по утвержденной технологии с контролем качества швов.
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger")
	cfg.Vectors.Path = filepath.Join(t.TempDir(), "vectors")
	// Accept everything; quality scoring has its own tests.
	cfg.Quality.AcceptThreshold = 0.2
	cfg.Quality.RejectThreshold = 0.1
	return cfg
}

func newTestIndexer(t *testing.T) (*normpipe.Indexer, *memstore.Store, *memstore.Store, *memgraph.Sink) {
	t.Helper()
	storeA := memstore.NewStore("alpha")
	storeB := memstore.NewStore("beta")
	sink := memgraph.NewSink()

	idx, err := normpipe.NewIndexer(context.Background(), testConfig(t),
		normpipe.WithEmbedder(mock.NewEmbedder()),
		normpipe.WithStores(storeA, storeB),
		normpipe.WithGraphSink(sink))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, storeA, storeB, sink
}

func TestIndexer_RunAndRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gost.txt"), []byte(sampleDoc), 0o644))
	idx, storeA, storeB, sink := newTestIndexer(t)

	record, err := idx.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, []string{dir}, record.Roots)
	assert.Equal(t, 1, record.Summary.Processed)
	assert.False(t, record.FinishedAt.IsZero())
	assert.Greater(t, storeA.Len(), 0)
	assert.Equal(t, storeA.Len(), storeB.Len())
	assert.NotEmpty(t, sink.Edges())

	// The record is retrievable by ID with its summary.
	loaded, err := idx.RunRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.Summary.RunID)
	assert.Equal(t, 1, loaded.Summary.Processed)
}

func TestIndexer_ResumeFinishedRunIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gost.txt"), []byte(sampleDoc), 0o644))
	idx, storeA, _, _ := newTestIndexer(t)

	record, err := idx.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	upserts := storeA.UpsertCalls()

	resumed, err := idx.Resume(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, resumed.ID)
	assert.Equal(t, 0, resumed.Summary.Processed)
	assert.Equal(t, upserts, storeA.UpsertCalls())
}

func TestIndexer_ResumeUnknownRun(t *testing.T) {
	idx, _, _, _ := newTestIndexer(t)

	_, err := idx.Resume(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestIndexer_ResetReprocessesDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gost.txt"), []byte(sampleDoc), 0o644))
	idx, _, _, _ := newTestIndexer(t)

	_, err := idx.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	fp := core.FingerprintBytes([]byte(sampleDoc))
	require.NoError(t, idx.Reset(context.Background(), fp))

	record, err := idx.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, record.Summary.Processed)
}

func TestIndexer_RepairAfterPartialWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gost.txt"), []byte(sampleDoc), 0o644))
	idx, storeA, storeB, _ := newTestIndexer(t)
	storeB.FailWith = assert.AnError

	record, err := idx.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, record.Summary.PartialStoreFailures, 1)

	storeB.FailWith = nil
	summary, err := idx.Repair(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repaired)
	assert.Equal(t, storeA.Len(), storeB.Len())
}

func TestIndexer_SearcherNeedsEmbeddedStore(t *testing.T) {
	// Injected memory stores leave no embedded store to search.
	idx, _, _, _ := newTestIndexer(t)

	_, err := idx.NewSearcher()
	assert.Error(t, err)
}

func TestNewIndexer_NilConfig(t *testing.T) {
	_, err := normpipe.NewIndexer(context.Background(), nil)
	assert.Error(t, err)
}
