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


package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/vectral/normpipe/core"
)

// Batcher defaults, tuned per deployment via options.
const (
	DefaultBatchSize   = 32
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultPoolSize    = 4
)

// Batcher splits a document's chunk texts into fixed-size batches,
// dispatches them to a worker pool and joins the results in submission
// order, so the output vectors align one-to-one with the input texts.
// Each batch is atomic and carries its own retry budget; one batch
// exhausting its budget fails the whole call.
type Batcher struct {
	embedder    Embedder
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	pool        *ants.Pool
	ownPool     bool
	logger      *slog.Logger
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher) error

// WithBatchSize sets the maximum number of texts per embedding call.
func WithBatchSize(size int) BatcherOption {
	return func(b *Batcher) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive")
		}
		b.batchSize = size
		return nil
	}
}

// WithRetry sets the per-batch retry budget and base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) BatcherOption {
	return func(b *Batcher) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		if baseDelay < 0 {
			return fmt.Errorf("base delay must not be negative")
		}
		b.maxAttempts = maxAttempts
		b.baseDelay = baseDelay
		return nil
	}
}

// WithPool shares an existing worker pool instead of creating one. The
// caller keeps ownership and must release it.
func WithPool(pool *ants.Pool) BatcherOption {
	return func(b *Batcher) error {
		if pool == nil {
			return fmt.Errorf("pool must not be nil")
		}
		b.pool = pool
		return nil
	}
}

// NewBatcher creates a batcher around the given embedder.
func NewBatcher(embedder Embedder, opts ...BatcherOption) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}

	b := &Batcher{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      slog.Default().With("component", "batcher"),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.ownPool = true
	}
	return b, nil
}

// Close releases the worker pool if the batcher owns it.
func (b *Batcher) Close() {
	if b.ownPool {
		b.pool.Release()
	}
}

type batchResult struct {
	vectors [][]float32
	err     error
}

// Embed returns one vector per input text, in input order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batches := splitBatches(texts, b.batchSize)
	b.logger.Debug("embedding texts", "texts", len(texts), "batches", len(batches))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each batch gets a buffered result slot; joining in submission order
	// below restores text order regardless of pool scheduling.
	results := make([]chan batchResult, len(batches))
	for i, batch := range batches {
		ch := make(chan batchResult, 1)
		results[i] = ch

		err := b.pool.Submit(func() {
			vectors, err := b.embedBatch(ctx, batch)
			ch <- batchResult{vectors: vectors, err: err}
		})
		if err != nil {
			// Pool refused the task; run inline rather than lose the slot.
			vectors, embedErr := b.embedBatch(ctx, batch)
			ch <- batchResult{vectors: vectors, err: embedErr}
		}
	}

	out := make([][]float32, 0, len(texts))
	var firstErr error
	for i, ch := range results {
		res := <-ch
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d of %d: %w", i+1, len(batches), res.err)
				cancel()
			}
			continue
		}
		out = append(out, res.vectors...)
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, firstErr)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: %w: expected %d, received %d",
			core.ErrEmbedding, ErrVectorCountMismatch, len(texts), len(out))
	}
	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		v, err := b.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(v) != len(batch) {
			return fmt.Errorf("%w: expected %d, received %d", ErrVectorCountMismatch, len(batch), len(v))
		}
		vectors = v
		return nil
	}, b.maxAttempts, b.baseDelay)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func splitBatches(texts []string, size int) [][]string {
	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
