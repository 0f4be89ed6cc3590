package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/core"
	"github.com/vectral/normpipe/markup"
)

func newChunker(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := NewChunker(opts...)
	require.NoError(t, err)
	return c
}

func analyze(t *testing.T, text string) *core.MarkupTree {
	t.Helper()
	a, err := markup.NewAnalyzer()
	require.NoError(t, err)
	tree := a.Analyze(text, nil)
	require.NoError(t, tree.Validate())
	return tree
}

// leafTexts returns every chunkable unit of the tree in reading order.
func leafTexts(tree *core.MarkupTree) []string {
	var texts []string
	tree.Walk(func(idx, depth int) bool {
		node := tree.Node(idx)
		if node.Kind.ChunkLeaf() && node.Text != "" {
			texts = append(texts, node.Text)
			return false
		}
		return true
	})
	return texts
}

func TestChunk_EmptyTree(t *testing.T) {
	assert.Nil(t, newChunker(t).Chunk(core.NewMarkupTree()))
}

func TestChunk_SmallDocumentIsOneChunk(t *testing.T) {
	tree := analyze(t, "1 Scope\n\nshort body text")
	chunks := newChunker(t).Chunk(tree)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, -1, chunks[0].ParentSeq)
	assert.Equal(t, "short body text", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Level)
	assert.Contains(t, chunks[0].NodePath[0], "document")
}

func TestChunk_SplitsAtMaxSize(t *testing.T) {
	para := strings.Repeat("word ", 20) // ~100 runes
	var sb strings.Builder
	sb.WriteString("1 Section\n\n")
	for i := 0; i < 6; i++ {
		sb.WriteString(para)
		sb.WriteString("\n\n")
	}
	tree := analyze(t, sb.String())

	chunks := newChunker(t, WithChunkSizes(250, 50)).Chunk(tree)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 250+1, "no chunk grows past the max")
	}
}

func TestChunk_IntegrityNoLossNoDuplication(t *testing.T) {
	text := `1 Scope

This standard covers concrete works on site.

1.1 Application

- applies to monolithic structures
- applies to precast elements

| mark | strength |
| B25  | 32 MPa   |

2 References

Referenced documents are listed below.`

	tree := analyze(t, text)
	want := strings.Join(leafTexts(tree), "\n")

	for _, sizes := range [][2]int{{60, 20}, {150, 40}, {10000, 200}} {
		chunks := newChunker(t, WithChunkSizes(sizes[0], sizes[1])).Chunk(tree)
		var parts []string
		for _, ch := range chunks {
			parts = append(parts, ch.Text)
		}
		assert.Equal(t, want, strings.Join(parts, "\n"),
			"concatenated chunks reconstruct all leaf text for sizes %v", sizes)
	}
}

func TestChunk_NeverSplitsInsideAtomicUnits(t *testing.T) {
	longRow := "| " + strings.Repeat("cell content ", 30) + " |"
	text := "1 Table section\n\n" + longRow + "\n| short | row |"
	tree := analyze(t, text)

	// Max far below the long row's size.
	chunks := newChunker(t, WithChunkSizes(50, 10)).Chunk(tree)

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, "cell content") {
			assert.Contains(t, ch.Text, strings.TrimSpace(longRow),
				"oversized row is emitted whole, not split")
			found = true
		}
	}
	assert.True(t, found)
}

func TestChunk_SequenceIsReadingOrder(t *testing.T) {
	text := `1 First

alpha paragraph

2 Second

beta paragraph

3 Third

gamma paragraph`

	tree := analyze(t, text)
	chunks := newChunker(t, WithChunkSizes(1000, 5)).Chunk(tree)

	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
	}
	assert.Contains(t, chunks[0].Text, "alpha")
	assert.Contains(t, chunks[1].Text, "beta")
	assert.Contains(t, chunks[2].Text, "gamma")
}

func TestChunk_UndersizedRunMergesForward(t *testing.T) {
	text := `1 Tiny

ab

2 Next

` + strings.Repeat("filler text ", 30)

	tree := analyze(t, text)
	chunks := newChunker(t, WithChunkSizes(1000, 100)).Chunk(tree)

	require.Len(t, chunks, 1, "undersized section merges with the next")
	assert.Contains(t, chunks[0].Text, "ab")
	assert.Contains(t, chunks[0].Text, "filler")
}

func TestChunk_FinalChunkMayBeUndersized(t *testing.T) {
	text := `1 Big

` + strings.Repeat("filler text ", 30) + `

2 Tiny tail

ab`

	tree := analyze(t, text)
	chunks := newChunker(t, WithChunkSizes(1000, 100)).Chunk(tree)

	require.Len(t, chunks, 2)
	assert.Equal(t, "ab", chunks[1].Text)
}

func TestChunk_ParentLinksFollowSectionLevels(t *testing.T) {
	text := `1 Parent section

parent body paragraph long enough to stand alone as a chunk of text here

1.1 Child section

child body paragraph also long enough to stand alone as its own chunk here`

	tree := analyze(t, text)
	chunks := newChunker(t, WithChunkSizes(1000, 10)).Chunk(tree)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Level)
	assert.Equal(t, -1, chunks[0].ParentSeq)
	assert.Equal(t, 2, chunks[1].Level)
	assert.Equal(t, 0, chunks[1].ParentSeq)
}

func TestChunk_DensityIsWeightedAverage(t *testing.T) {
	tree := core.NewMarkupTree()
	tree.Add(tree.Root(), core.MarkupNode{Kind: core.KindParagraph, Text: "dense", Density: 1.0})
	tree.Add(tree.Root(), core.MarkupNode{Kind: core.KindParagraph, Text: "plain", Density: 0.0})

	chunks := newChunker(t).Chunk(tree)
	require.Len(t, chunks, 1)
	assert.InDelta(t, 0.5, chunks[0].Density, 0.001)
}

func TestWithChunkSizes_Validation(t *testing.T) {
	_, err := NewChunker(WithChunkSizes(100, 100))
	assert.Error(t, err)
	_, err = NewChunker(WithChunkSizes(0, 10))
	assert.Error(t, err)
	_, err = NewChunker(WithChunkSizes(100, -1))
	assert.Error(t, err)
}
