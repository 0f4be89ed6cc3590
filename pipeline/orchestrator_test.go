package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/chunker"
	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/discover"
	"github.com/vectral/normpipe/embedding"
	"github.com/vectral/normpipe/embedding/mock"
	"github.com/vectral/normpipe/extract"
	"github.com/vectral/normpipe/graph"
	memgraph "github.com/vectral/normpipe/graph/memory"
	"github.com/vectral/normpipe/ledger"
	ledgerbadger "github.com/vectral/normpipe/ledger/badger"
	"github.com/vectral/normpipe/markup"
	"github.com/vectral/normpipe/pipeline"
	"github.com/vectral/normpipe/quality"
	"github.com/vectral/normpipe/vectorstore"
	memstore "github.com/vectral/normpipe/vectorstore/memory"
)

const normDoc = `ГОСТ 12345-2020 Бетонные и железобетонные конструкции

1 Область применения
Настоящий стандарт распространяется на бетонные и железобетонные конструкции зданий и сооружений.

2 Требования к материалам
Прочность бетона должна соответствовать классу B25. Арматура класса A500 применяется для рабочего армирования.

2.1 Бетонная смесь
Бетонная смесь приготавливается на портландцементе с заполнителем фракции до 20 мм.
`

const processDoc = `Технологическая карта на устройство монолитного перекрытия

Последовательность работ:
- установить опалубку перекрытия
- смонтировать арматурный каркас
- уложить бетонную смесь
- выдержать бетон до набора прочности
`

// countingExtractor wraps an extractor and records how many times it ran,
// to verify that resume does not repeat completed stages.
type countingExtractor struct {
	inner pipeline.Extractor

	mu    sync.Mutex
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, doc core.SourceDocument) (*extract.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Extract(ctx, doc)
}

func (c *countingExtractor) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type testPipeline struct {
	led       *ledgerbadger.Ledger
	extractor *countingExtractor
	embedder  *mock.Embedder
	storeA    *memstore.Store
	storeB    *memstore.Store
	sink      *memgraph.Sink
	orch      *pipeline.Orchestrator
}

// newTestPipeline wires a full pipeline over in-memory components. A nil
// controller means a permissive gate that accepts everything.
func newTestPipeline(t *testing.T, qc *quality.Controller, opts ...pipeline.Option) *testPipeline {
	t.Helper()

	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	disc, err := discover.NewDiscoverer(led)
	require.NoError(t, err)

	registry, err := extract.NewDefaultRegistry()
	require.NoError(t, err)
	extractor := &countingExtractor{inner: registry}

	analyzer, err := markup.NewAnalyzer()
	require.NoError(t, err)

	if qc == nil {
		qc, err = quality.NewController(quality.WithThresholds(0.2, 0.1))
		require.NoError(t, err)
	}

	chk, err := chunker.NewChunker()
	require.NoError(t, err)

	embedder := mock.NewEmbedder()
	batcher, err := embedding.NewBatcher(embedder)
	require.NoError(t, err)
	t.Cleanup(batcher.Close)

	storeA := memstore.NewStore("alpha")
	storeB := memstore.NewStore("beta")
	dual, err := vectorstore.NewDualWriter(storeA, storeB)
	require.NoError(t, err)

	sink := memgraph.NewSink()
	glog, err := graph.NewLogger(sink)
	require.NoError(t, err)

	orch, err := pipeline.NewOrchestrator(pipeline.Config{
		Ledger:     led,
		Snapshots:  led,
		Discoverer: disc,
		Extractor:  extractor,
		Analyzer:   analyzer,
		Quality:    qc,
		Chunker:    chk,
		Embedder:   batcher,
		Stores:     dual,
		Graph:      glog,
	}, opts...)
	require.NoError(t, err)

	return &testPipeline{
		led:       led,
		extractor: extractor,
		embedder:  embedder,
		storeA:    storeA,
		storeB:    storeB,
		sink:      sink,
		orch:      orch,
	}
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOrchestrator_FullRun(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	writeDoc(t, dir, "techcard.txt", processDoc)
	tp := newTestPipeline(t, nil)

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.SkippedDuplicate)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, summary.PartialStoreFailures)

	// Both stores hold the same chunk set.
	assert.Greater(t, tp.storeA.Len(), 0)
	assert.Equal(t, tp.storeA.Len(), tp.storeB.Len())

	// Provenance edges were recorded.
	assert.NotEmpty(t, tp.sink.Edges())

	// Every entry is terminal and its snapshot is gone.
	fp := core.FingerprintBytes([]byte(normDoc))
	entry, err := tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, entry.Stage)
	assert.Equal(t, core.OutcomeDone, entry.Outcome)

	_, err = tp.led.LoadSnapshot(context.Background(), fp)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestOrchestrator_NormMetadataIndexed(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	tp := newTestPipeline(t, nil)

	_, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	fp := core.FingerprintBytes([]byte(normDoc))
	rec, ok := tp.storeA.Get(core.Chunk{Seq: 0}.Key(fp))
	require.True(t, ok)
	assert.Equal(t, "ГОСТ 12345-2020", rec.Metadata["identifier"])
	assert.Equal(t, "norm", rec.Metadata["doc_type"])
	assert.Equal(t, "0", rec.Metadata["seq"])
	assert.NotEmpty(t, rec.Metadata["node_path"])
}

func TestOrchestrator_RerunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	tp := newTestPipeline(t, nil)

	_, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)
	upserts := tp.storeA.UpsertCalls()

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, summary.SkippedDuplicate)
	assert.Equal(t, upserts, tp.storeA.UpsertCalls(), "settled documents must not be rewritten")
	assert.Equal(t, 1, tp.extractor.Calls())
}

func TestOrchestrator_DuplicateContentSkipped(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "original.txt", normDoc)
	writeDoc(t, dir, "copy.txt", normDoc)
	tp := newTestPipeline(t, nil)

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.SkippedDuplicate)
	assert.Equal(t, 1, tp.extractor.Calls(), "duplicate content must not be extracted twice")

	var skipped int
	err = tp.led.Scan(context.Background(), func(entry *core.LedgerEntry) error {
		if entry.Outcome == core.OutcomeSkippedDuplicate {
			skipped++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
}

func TestOrchestrator_QualityRejection(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)

	qc, err := quality.NewController(quality.WithThresholds(0.99, 0.98))
	require.NoError(t, err)
	tp := newTestPipeline(t, qc)

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, core.StageQualityChecked, summary.Failed[0].Stage)
	assert.Contains(t, summary.Failed[0].Reason, "quality rejected")

	fp := core.FingerprintBytes([]byte(normDoc))
	entry, err := tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeFailed, entry.Outcome)
	assert.Equal(t, core.StageQualityChecked, entry.FailStage)

	assert.Zero(t, tp.storeA.Len())
	_, err = tp.led.LoadSnapshot(context.Background(), fp)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestOrchestrator_StoreRetryRecovers(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	tp := newTestPipeline(t, nil)
	tp.storeB.FailNext = assert.AnError

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, summary.PartialStoreFailures, "single-attempt failure recovers on retry")
	assert.Equal(t, tp.storeA.Len(), tp.storeB.Len())

	fp := core.FingerprintBytes([]byte(normDoc))
	entry, err := tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Empty(t, entry.PartialStores)
	_, err = tp.led.LoadSnapshot(context.Background(), fp)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestOrchestrator_PartialStoreFailureRepairable(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	tp := newTestPipeline(t, nil)
	tp.storeB.FailWith = assert.AnError

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	// The document completes: it is queryable from the healthy store.
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, summary.PartialStoreFailures, 1)
	assert.Equal(t, []string{"beta"}, summary.PartialStoreFailures[0].Stores)
	assert.Greater(t, tp.storeA.Len(), 0)
	assert.Zero(t, tp.storeB.Len())

	fp := core.FingerprintBytes([]byte(normDoc))
	entry, err := tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeDone, entry.Outcome)
	assert.Equal(t, []string{"beta"}, entry.PartialStores)

	// The snapshot is retained so repair can replay the vectors without
	// re-embedding.
	snap, err := tp.led.LoadSnapshot(context.Background(), fp)
	require.NoError(t, err)
	assert.Len(t, snap.Vectors, len(snap.Chunks))
	assert.Equal(t, 1, tp.embedder.CallCount())
}

func TestOrchestrator_BothStoresDownFailsDocument(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	tp := newTestPipeline(t, nil)
	tp.storeA.FailWith = assert.AnError
	tp.storeB.FailWith = assert.AnError

	summary, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, core.StageIndexedStoreA, summary.Failed[0].Stage)
}

func TestOrchestrator_ResumeSkipsCompletedStages(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook := func(fp core.Fingerprint, stage core.Stage) {
		if stage == core.StageChunked {
			cancel()
		}
	}
	tp := newTestPipeline(t, nil, pipeline.WithStageHook(hook))

	summary, err := tp.orch.Execute(ctx, []string{dir})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Processed)

	fp := core.FingerprintBytes([]byte(normDoc))
	entry, err := tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.StageChunked, entry.Stage)
	assert.Equal(t, core.OutcomePending, entry.Outcome)
	assert.Equal(t, 0, tp.embedder.CallCount(), "interrupted before embedding")

	snap, err := tp.led.LoadSnapshot(context.Background(), fp)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Chunks)

	// Resume completes the document without repeating earlier stages.
	summary, err = tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, tp.extractor.Calls(), "extraction already committed, must not rerun")
	assert.GreaterOrEqual(t, tp.embedder.CallCount(), 1)

	entry, err = tp.led.Lookup(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.StageDone, entry.Stage)
	assert.Equal(t, core.OutcomeDone, entry.Outcome)
}

func TestOrchestrator_ProcessDocWorkSequence(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "techcard.txt", processDoc)
	tp := newTestPipeline(t, nil)
	// Keep the snapshot around to inspect the derived work sequence.
	tp.storeB.FailWith = assert.AnError

	_, err := tp.orch.Execute(context.Background(), []string{dir})
	require.NoError(t, err)

	fp := core.FingerprintBytes([]byte(processDoc))
	snap, err := tp.led.LoadSnapshot(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, core.DocTypeProcess, snap.DocType)
	require.Len(t, snap.WorkSequence, 4)
	assert.Equal(t, "установить опалубку перекрытия", snap.WorkSequence[0])
	assert.Equal(t, "выдержать бетон до набора прочности", snap.WorkSequence[3])

	// The ordered steps travel with the indexed chunks.
	rec, ok := tp.storeA.Get(snap.Chunks[0].Key(fp))
	require.True(t, ok)
	assert.Equal(t, "process", rec.Metadata["doc_type"])
	assert.Len(t, strings.Split(rec.Metadata["work_steps"], "\n"), 4)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := pipeline.NewOrchestrator(pipeline.Config{})
	assert.Error(t, err)
}

func TestWithWorkers_RejectsNonPositive(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "gost.txt", normDoc)
	led, err := ledgerbadger.NewMemoryLedger()
	require.NoError(t, err)
	defer led.Close()

	disc, err := discover.NewDiscoverer(led)
	require.NoError(t, err)
	registry, err := extract.NewDefaultRegistry()
	require.NoError(t, err)
	analyzer, err := markup.NewAnalyzer()
	require.NoError(t, err)
	qc, err := quality.NewController()
	require.NoError(t, err)
	chk, err := chunker.NewChunker()
	require.NoError(t, err)
	batcher, err := embedding.NewBatcher(mock.NewEmbedder())
	require.NoError(t, err)
	defer batcher.Close()
	dual, err := vectorstore.NewDualWriter(memstore.NewStore("alpha"), memstore.NewStore("beta"))
	require.NoError(t, err)
	glog, err := graph.NewLogger(memgraph.NewSink())
	require.NoError(t, err)

	_, err = pipeline.NewOrchestrator(pipeline.Config{
		Ledger:     led,
		Snapshots:  led,
		Discoverer: disc,
		Extractor:  registry,
		Analyzer:   analyzer,
		Quality:    qc,
		Chunker:    chk,
		Embedder:   batcher,
		Stores:     dual,
		Graph:      glog,
	}, pipeline.WithWorkers(0))
	assert.Error(t, err)
}
