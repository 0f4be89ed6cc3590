package badger

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/core"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func normalized(vals ...float32) []float32 {
	var sum float64
	for _, v := range vals {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = v / norm
	}
	return out
}

func TestStore_UpsertAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	records := []core.VectorRecord{
		{ChunkKey: "doc:000000", Vector: []float32{1, 0}, Metadata: map[string]string{"path": "/a"}},
		{ChunkKey: "doc:000001", Vector: []float32{0, 1}, Metadata: map[string]string{"path": "/a"}},
	}
	require.NoError(t, store.Upsert(ctx, records))

	got, ok, err := store.Get(ctx, "doc:000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got.Vector)
	assert.Equal(t, "/a", got.Metadata["path"])

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UpsertReplacesByChunkKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		{ChunkKey: "doc:000000", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		{ChunkKey: "doc:000000", Vector: []float32{0, 1}},
	}))

	got, ok, err := store.Get(ctx, "doc:000000")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, got.Vector)
}

func TestStore_FindSimilar(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		{ChunkKey: "close", Vector: normalized(1, 0.1)},
		{ChunkKey: "far", Vector: normalized(0, 1)},
		{ChunkKey: "closest", Vector: normalized(1, 0)},
	}))

	matches, err := store.FindSimilar(ctx, normalized(1, 0), 0.5, 10)
	require.NoError(t, err)

	require.Len(t, matches, 2, "orthogonal vector filtered by threshold")
	assert.Equal(t, "closest", matches[0].Record.ChunkKey)
	assert.Equal(t, "close", matches[1].Record.ChunkKey)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestStore_FindSimilarLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var records []core.VectorRecord
	for i := 0; i < 10; i++ {
		records = append(records, core.VectorRecord{
			ChunkKey: core.Fingerprint(i).String(),
			Vector:   normalized(1, float32(i)*0.01),
		})
	}
	require.NoError(t, store.Upsert(ctx, records))

	matches, err := store.FindSimilar(ctx, normalized(1, 0), 0, 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		{ChunkKey: "doc:000000", Vector: []float32{1}},
	}))
	require.NoError(t, store.Close())

	store, err = NewStore(dir, false)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(ctx, "doc:000000")
	require.NoError(t, err)
	assert.True(t, ok)
}
