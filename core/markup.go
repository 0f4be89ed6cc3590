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


package core

import "fmt"

// NodeKind identifies the structural role of a markup node.
type NodeKind uint8

const (
	KindDocument NodeKind = iota + 1
	KindSection
	KindParagraph
	KindList
	KindListItem
	KindTable
	KindTableRow
	KindTableCell
)

var nodeKindNames = map[NodeKind]string{
	KindDocument:  "document",
	KindSection:   "section",
	KindParagraph: "paragraph",
	KindList:      "list",
	KindListItem:  "list_item",
	KindTable:     "table",
	KindTableRow:  "table_row",
	KindTableCell: "table_cell",
}

// String returns the stable lowercase name of the node kind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ChunkLeaf reports whether nodes of this kind are atomic for chunking:
// chunk boundaries never fall inside them.
func (k NodeKind) ChunkLeaf() bool {
	return k == KindParagraph || k == KindListItem || k == KindTableRow
}

// MarkupNode is one node of a document's structural tree. Nodes reference
// their parent and children by arena index rather than by pointer, so the
// tree stays acyclic and trivially serializable.
type MarkupNode struct {
	Kind     NodeKind
	Text     string
	Level    int // heading level for sections, 0 otherwise
	Density  float64
	Parent   int // arena index of the parent, -1 for the root
	Children []int
}

// MarkupTree is an arena of markup nodes rooted at a single document node
// (always index 0).
type MarkupTree struct {
	Nodes []MarkupNode
}

// NewMarkupTree creates a tree containing only the root document node.
func NewMarkupTree() *MarkupTree {
	return &MarkupTree{
		Nodes: []MarkupNode{{Kind: KindDocument, Parent: -1}},
	}
}

// Root returns the arena index of the document root.
func (t *MarkupTree) Root() int {
	return 0
}

// Node returns the node at the given arena index.
func (t *MarkupTree) Node(idx int) *MarkupNode {
	return &t.Nodes[idx]
}

// Len returns the number of nodes in the tree, including the root.
func (t *MarkupTree) Len() int {
	return len(t.Nodes)
}

// Add appends a node under the given parent and returns its arena index.
func (t *MarkupTree) Add(parent int, node MarkupNode) int {
	idx := len(t.Nodes)
	node.Parent = parent
	t.Nodes = append(t.Nodes, node)
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, idx)
	return idx
}

// Walk visits nodes depth-first in pre-order, which is document reading
// order. The callback receives the arena index and depth; returning false
// skips the node's subtree.
func (t *MarkupTree) Walk(fn func(idx, depth int) bool) {
	t.walk(t.Root(), 0, fn)
}

func (t *MarkupTree) walk(idx, depth int, fn func(idx, depth int) bool) {
	if !fn(idx, depth) {
		return
	}
	for _, child := range t.Nodes[idx].Children {
		t.walk(child, depth+1, fn)
	}
}

// Path returns the ownership chain from the root to the node as
// "kind" or "kind:level" elements, used for chunk traceability.
func (t *MarkupTree) Path(idx int) []string {
	var rev []string
	for i := idx; i >= 0; i = t.Nodes[i].Parent {
		n := t.Nodes[i]
		if n.Level > 0 {
			rev = append(rev, fmt.Sprintf("%s:%d", n.Kind, n.Level))
		} else {
			rev = append(rev, n.Kind.String())
		}
	}
	path := make([]string, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

// SectionLevel returns the heading level of the nearest section ancestor of
// the node (including the node itself), or 0 if it attaches to the root.
func (t *MarkupTree) SectionLevel(idx int) int {
	for i := idx; i >= 0; i = t.Nodes[i].Parent {
		if t.Nodes[i].Kind == KindSection {
			return t.Nodes[i].Level
		}
	}
	return 0
}

// Validate checks the structural invariants: a single document root at
// index 0, consistent parent/child links, and no cycles.
func (t *MarkupTree) Validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty arena", ErrInvalidMarkupTree)
	}
	if t.Nodes[0].Kind != KindDocument || t.Nodes[0].Parent != -1 {
		return fmt.Errorf("%w: node 0 must be the parentless document root", ErrInvalidMarkupTree)
	}
	seen := make([]bool, len(t.Nodes))
	for i, n := range t.Nodes {
		if i > 0 {
			if n.Parent < 0 || n.Parent >= len(t.Nodes) {
				return fmt.Errorf("%w: node %d has parent %d out of range", ErrInvalidMarkupTree, i, n.Parent)
			}
			if n.Parent >= i {
				// Arena append order guarantees parents precede children;
				// a forward parent reference means a cycle.
				return fmt.Errorf("%w: node %d references forward parent %d", ErrInvalidMarkupTree, i, n.Parent)
			}
			if n.Kind == KindDocument {
				return fmt.Errorf("%w: node %d duplicates the document root", ErrInvalidMarkupTree, i)
			}
		}
		for _, c := range n.Children {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("%w: node %d has child %d out of range", ErrInvalidMarkupTree, i, c)
			}
			if seen[c] {
				return fmt.Errorf("%w: node %d claimed by multiple parents", ErrInvalidMarkupTree, c)
			}
			seen[c] = true
			if t.Nodes[c].Parent != i {
				return fmt.Errorf("%w: node %d parent link disagrees with child list of %d", ErrInvalidMarkupTree, c, i)
			}
		}
	}
	for i := 1; i < len(t.Nodes); i++ {
		if !seen[i] {
			return fmt.Errorf("%w: node %d unreachable from the root", ErrInvalidMarkupTree, i)
		}
	}
	return nil
}
