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


// Package embedding turns chunk text into vectors. The embedding function
// itself is a black box behind the Embedder interface; this package owns
// batching, ordering and the retry budget around it.
package embedding

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedTexts generates embeddings for a batch of texts, returned in
	// input order with the same length. A batch is atomic: on error no
	// partial result is usable.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
