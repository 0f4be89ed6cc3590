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


// Package chunker cuts a markup tree into ordered, structurally bounded
// chunks for embedding. Boundaries fall only between paragraphs, list items
// and table rows, never inside one, so a chunk always contains whole
// structural units. Chunk order is document reading order and is the join
// key that later aligns embeddings.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vectral/normpipe/core"
)

// Default chunk sizes in runes. Tuned per deployment via options.
const (
	DefaultMaxChunkSize = 1600
	DefaultMinChunkSize = 200
)

// Chunker accumulates structural leaf units into size-bounded chunks.
type Chunker struct {
	maxSize int
	minSize int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSizes sets the maximum chunk size and the minimum below which a
// chunk is merged with the following sibling instead of emitted alone.
func WithChunkSizes(max, min int) Option {
	return func(c *Chunker) error {
		if max <= 0 || min <= 0 {
			return fmt.Errorf("chunk sizes must be positive")
		}
		if min >= max {
			return fmt.Errorf("min chunk size %d must be below max %d", min, max)
		}
		c.maxSize = max
		c.minSize = min
		return nil
	}
}

// NewChunker creates a chunker with default sizes.
func NewChunker(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxSize: DefaultMaxChunkSize,
		minSize: DefaultMinChunkSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// leafUnit is one atomic piece of chunkable text with its tree context.
type leafUnit struct {
	text    string
	size    int
	path    []string
	level   int // enclosing section level
	section int // arena index of the enclosing section, -1 for the root
	density float64
}

// Chunk cuts the tree into ordered chunks. An oversized single unit (one
// table row longer than the max, say) becomes its own chunk rather than
// being split.
func (c *Chunker) Chunk(tree *core.MarkupTree) []core.Chunk {
	units := collectLeafUnits(tree)
	if len(units) == 0 {
		return nil
	}

	var (
		chunks  []core.Chunk
		pending []leafUnit
		size    int
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		chunks = append(chunks, c.assemble(chunks, pending))
		pending = pending[:0]
		size = 0
	}

	for _, unit := range units {
		if len(pending) > 0 {
			boundary := unit.section != pending[len(pending)-1].section
			switch {
			case size+unit.size > c.maxSize:
				flush()
			case boundary && size >= c.minSize:
				// Section change with enough accumulated text; an
				// undersized run instead merges into the next section.
				flush()
			}
		}
		pending = append(pending, unit)
		size += unit.size
	}
	flush() // final chunk may be undersized

	return chunks
}

// assemble builds a chunk from accumulated units. The chunk inherits the
// tree path and section level of its first unit, and its parent is the most
// recent chunk at a shallower section level.
func (c *Chunker) assemble(emitted []core.Chunk, units []leafUnit) core.Chunk {
	texts := make([]string, len(units))
	var weighted float64
	var total int
	for i, u := range units {
		texts[i] = u.text
		weighted += u.density * float64(u.size)
		total += u.size
	}

	density := 0.0
	if total > 0 {
		density = weighted / float64(total)
	}

	level := units[0].level
	parent := -1
	for i := len(emitted) - 1; i >= 0; i-- {
		if emitted[i].Level < level {
			parent = emitted[i].Seq
			break
		}
	}

	return core.Chunk{
		Seq:       len(emitted),
		NodePath:  units[0].path,
		Text:      strings.Join(texts, "\n"),
		Density:   density,
		Level:     level,
		ParentSeq: parent,
	}
}

// collectLeafUnits walks the tree in pre-order, which is reading order, and
// gathers the atomic text units.
func collectLeafUnits(tree *core.MarkupTree) []leafUnit {
	var units []leafUnit
	tree.Walk(func(idx, depth int) bool {
		node := tree.Node(idx)
		if !node.Kind.ChunkLeaf() || node.Text == "" {
			return true
		}
		units = append(units, leafUnit{
			text:    node.Text,
			size:    utf8.RuneCountInString(node.Text),
			path:    tree.Path(idx),
			level:   tree.SectionLevel(idx),
			section: sectionIndex(tree, idx),
			density: node.Density,
		})
		// Cells under a table row never chunk separately.
		return false
	})
	return units
}

func sectionIndex(tree *core.MarkupTree, idx int) int {
	for i := idx; i >= 0; i = tree.Node(i).Parent {
		if tree.Node(i).Kind == core.KindSection {
			return i
		}
	}
	return -1
}
