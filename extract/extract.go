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


// Package extract turns source documents into plain text plus layout hints.
// Extractors are registered per format; partial extraction is reported as a
// coverage ratio rather than a failure, down to a configured floor.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vectral/normpipe/core"
)

// Result is the output of text extraction for one document.
type Result struct {
	Text     string
	Coverage float64 // fraction of the source content that was readable, 0..1
	Hints    []core.LayoutHint
}

// Extractor converts one document format into text.
type Extractor interface {
	// Formats lists the dispatch keys this extractor handles.
	Formats() []string
	// Extract reads the document and returns its text. Implementations
	// report partially readable content as a success with Coverage < 1.
	Extract(ctx context.Context, doc core.SourceDocument) (*Result, error)
}

// DefaultMinCoverage is the fatal coverage floor applied when none is
// configured.
const DefaultMinCoverage = 0.5

// Registry dispatches extraction by document format and enforces the
// coverage floor.
type Registry struct {
	byFormat    map[string]Extractor
	minCoverage float64
	logger      *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithMinCoverage sets the coverage floor below which extraction is fatal
// for the document.
func WithMinCoverage(floor float64) RegistryOption {
	return func(r *Registry) error {
		if floor < 0 || floor > 1 {
			return fmt.Errorf("coverage floor must be within [0,1], got %v", floor)
		}
		r.minCoverage = floor
		return nil
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		byFormat:    make(map[string]Extractor),
		minCoverage: DefaultMinCoverage,
		logger:      slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry creates a registry with the built-in extractors:
// plain text, markdown and the converter-backed office/PDF formats.
func NewDefaultRegistry(opts ...RegistryOption) (*Registry, error) {
	r, err := NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	for _, e := range []Extractor{
		NewPlaintextExtractor(),
		NewMarkdownExtractor(),
		NewConverterExtractor(),
	} {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an extractor for every format it declares. Registering a
// format twice is an error.
func (r *Registry) Register(e Extractor) error {
	for _, format := range e.Formats() {
		if _, exists := r.byFormat[format]; exists {
			return fmt.Errorf("format %q already registered", format)
		}
		r.byFormat[format] = e
	}
	return nil
}

// Extract dispatches on the document format and applies the coverage floor.
func (r *Registry) Extract(ctx context.Context, doc core.SourceDocument) (*Result, error) {
	e, ok := r.byFormat[doc.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, doc.Format, doc.Path)
	}

	result, err := e.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrExtraction, doc.Path, err)
	}
	if result.Text == "" {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrExtraction, doc.Path, ErrEmptyDocument)
	}
	if result.Coverage < r.minCoverage {
		return nil, fmt.Errorf("%w: %s: %w: %.2f below floor %.2f",
			core.ErrExtraction, doc.Path, ErrLowCoverage, result.Coverage, r.minCoverage)
	}
	if result.Coverage < 1 {
		r.logger.Warn("partial extraction",
			"path", doc.Path,
			"coverage", result.Coverage)
	}
	return result, nil
}
