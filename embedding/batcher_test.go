package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/embedding/mock"
)

func newBatcher(t *testing.T, embedder Embedder, opts ...BatcherOption) *Batcher {
	t.Helper()
	b, err := NewBatcher(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func numberedTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}
	return texts
}

func TestBatcher_EmptyInput(t *testing.T) {
	b := newBatcher(t, mock.NewEmbedder())
	vectors, err := b.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestBatcher_BatchGrid(t *testing.T) {
	// 100 texts at batch size 32 split into [32 32 32 4].
	embedder := mock.NewEmbedder()
	b := newBatcher(t, embedder, WithBatchSize(32))

	vectors, err := b.Embed(context.Background(), numberedTexts(100))
	require.NoError(t, err)

	assert.Len(t, vectors, 100)
	assert.Equal(t, 4, embedder.CallCount())
	assert.ElementsMatch(t, []int{32, 32, 32, 4}, embedder.BatchSizes(),
		"batches may run in any order but sizes are fixed")
}

func TestBatcher_ExactMultipleHasNoShortTail(t *testing.T) {
	embedder := mock.NewEmbedder()
	b := newBatcher(t, embedder, WithBatchSize(16))

	vectors, err := b.Embed(context.Background(), numberedTexts(64))
	require.NoError(t, err)
	assert.Len(t, vectors, 64)
	assert.ElementsMatch(t, []int{16, 16, 16, 16}, embedder.BatchSizes())
}

func TestBatcher_VectorsAlignWithTextOrder(t *testing.T) {
	embedder := mock.NewEmbedder()
	b := newBatcher(t, embedder, WithBatchSize(7))

	texts := numberedTexts(50)
	vectors, err := b.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		assert.Equal(t, mock.DeterministicVector(text, mock.DefaultDimensions), vectors[i],
			"vector %d must belong to text %d regardless of batch scheduling", i, i)
	}
}

func TestBatcher_RetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		mu.Lock()
		attempts++
		failing := attempts <= 2
		mu.Unlock()
		if failing {
			return nil, errors.New("temporarily unavailable")
		}
		vectors := make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = []float32{1}
		}
		return vectors, nil
	}

	b := newBatcher(t, embedder, WithBatchSize(10), WithRetry(3, time.Millisecond))
	vectors, err := b.Embed(context.Background(), numberedTexts(5))
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, attempts)
}

func TestBatcher_FailsAfterRetryBudget(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("permanently unavailable")
	}

	b := newBatcher(t, embedder, WithBatchSize(10), WithRetry(2, time.Millisecond))
	_, err := b.Embed(context.Background(), numberedTexts(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatcher_PartialBatchResultIsRejected(t *testing.T) {
	embedder := mock.NewEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// One vector short: the batch must be treated as failed, not
		// partially applied.
		return make([][]float32, len(texts)-1), nil
	}

	b := newBatcher(t, embedder, WithBatchSize(10), WithRetry(1, 0))
	_, err := b.Embed(context.Background(), numberedTexts(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, ErrVectorCountMismatch)
}

func TestBatcher_ContextCancellation(t *testing.T) {
	embedder := mock.NewEmbedder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := newBatcher(t, embedder, WithRetry(5, time.Second))
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, ctx.Err()
	}

	_, err := b.Embed(ctx, numberedTexts(3))
	assert.Error(t, err)
}

func TestNewBatcher_Validation(t *testing.T) {
	_, err := NewBatcher(nil)
	assert.Error(t, err)

	embedder := mock.NewEmbedder()
	_, err = NewBatcher(embedder, WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewBatcher(embedder, WithRetry(0, time.Second))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	_, err = NewBatcher(embedder, WithRetry(1, -time.Second))
	assert.Error(t, err)
	_, err = NewBatcher(embedder, WithPool(nil))
	assert.Error(t, err)
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), func() error {
			calls++
			return nil
		}, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := RetryWithBackoff(context.Background(), func() error {
			calls++
			return boom
		}, 3, time.Millisecond)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("invalid budget", func(t *testing.T) {
		err := RetryWithBackoff(context.Background(), func() error { return nil }, 0, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			cancel()
			return errors.New("fail")
		}, 5, 10*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
