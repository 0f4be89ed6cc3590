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


// Package discover walks source roots and turns files into fingerprinted
// document candidates. Fingerprints are computed here, before any heavier
// stage, so duplicate content can be excluded cheaply downstream.
package discover

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/ledger"
)

// defaultFormats maps file extensions to extraction dispatch keys.
var defaultFormats = map[string]string{
	".txt":      "txt",
	".text":     "txt",
	".md":       "md",
	".markdown": "md",
	".pdf":      "pdf",
	".doc":      "doc",
	".docx":     "docx",
}

// Discoverer enumerates candidate documents under a set of roots.
// Roots are walked concurrently; the merged candidate set is returned in
// path order so repeated runs over unchanged storage yield the same
// sequence.
type Discoverer struct {
	ledger  ledger.Ledger
	formats map[string]string
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer) error

// WithFormats replaces the extension-to-format table.
func WithFormats(formats map[string]string) Option {
	return func(d *Discoverer) error {
		if len(formats) == 0 {
			return fmt.Errorf("formats table must not be empty")
		}
		d.formats = formats
		return nil
	}
}

// WithMaxFileSize caps candidate size in bytes. Zero means no cap.
func WithMaxFileSize(size int64) Option {
	return func(d *Discoverer) error {
		if size < 0 {
			return fmt.Errorf("max file size must not be negative")
		}
		d.maxSize = size
		return nil
	}
}

// NewDiscoverer creates a discoverer that consults led to skip documents
// the pipeline has already finished with.
func NewDiscoverer(led ledger.Ledger, opts ...Option) (*Discoverer, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger required")
	}

	d := &Discoverer{
		ledger:  led,
		formats: defaultFormats,
		logger:  slog.Default().With("component", "discoverer"),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Discover walks the given roots and returns the candidates that still need
// processing: unseen fingerprints plus entries left pending by an
// interrupted run. Documents whose ledger entry already reached a terminal
// outcome are skipped, which makes re-discovery over an unchanged source
// set idempotent.
func (d *Discoverer) Discover(ctx context.Context, roots []string) ([]core.SourceDocument, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root required")
	}

	var (
		mu         sync.Mutex
		candidates []core.SourceDocument
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		g.Go(func() error {
			docs, err := d.walkRoot(gctx, root)
			if err != nil {
				return fmt.Errorf("walking %s: %w", root, err)
			}
			mu.Lock()
			candidates = append(candidates, docs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Path order makes first-seen semantics stable across runs even though
	// roots are walked concurrently.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Path < candidates[j].Path
	})

	kept := candidates[:0]
	for _, doc := range candidates {
		include, err := d.shouldInclude(ctx, doc)
		if err != nil {
			return nil, err
		}
		if include {
			kept = append(kept, doc)
		}
	}

	d.logger.Info("discovery complete",
		"roots", len(roots),
		"candidates", len(candidates),
		"kept", len(kept))
	return kept, nil
}

func (d *Discoverer) walkRoot(ctx context.Context, root string) ([]core.SourceDocument, error) {
	var docs []core.SourceDocument

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			if entry.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}

		format, ok := d.formats[strings.ToLower(filepath.Ext(name))]
		if !ok {
			d.logger.Debug("skipping unsupported file", "path", path)
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		if d.maxSize > 0 && info.Size() > d.maxSize {
			d.logger.Warn("skipping oversized file",
				"path", path, "size", info.Size(), "max", d.maxSize)
			return nil
		}

		fp, err := fingerprintFile(path)
		if err != nil {
			return err
		}

		docs = append(docs, core.SourceDocument{
			Fingerprint:  fp,
			Path:         path,
			Format:       format,
			Size:         info.Size(),
			DiscoveredAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// shouldInclude keeps unseen fingerprints and pending entries. Terminal
// entries stay skipped until reset, whether the candidate is the original
// path or a later duplicate of it.
func (d *Discoverer) shouldInclude(ctx context.Context, doc core.SourceDocument) (bool, error) {
	entry, err := d.ledger.Lookup(ctx, doc.Fingerprint)
	if err == ledger.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if entry.Outcome == core.OutcomePending {
		return true, nil
	}

	d.logger.Debug("skipping settled document",
		"path", doc.Path,
		"fingerprint", doc.Fingerprint.String(),
		"outcome", entry.Outcome.String())
	return false, nil
}

func fingerprintFile(path string) (core.Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return core.FingerprintBytes(data), nil
}
