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


// Package markup converts flat extracted text into a structural tree.
// Detection is pattern based: heading markers, enumerations and table
// delimiters, with extractor-provided layout hints taking precedence over
// the patterns. Text with no recognizable structure degrades to a flat
// paragraph tree; analysis never fails.
package markup

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vectral/normpipe/core"
)

var (
	// `# Title` style headings, level = marker count.
	hashHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(\S.*)$`)
	// `4.2 Materials` style clause numbering, level = component count.
	// A trailing dot or parenthesis marks an enumeration, not a clause.
	clauseHeadingRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+\p{Lu}`)
	listItemRe      = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+\S`)
	listMarkerRe    = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+`)
	tableSepRe      = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
)

type lineClass uint8

const (
	classBlank lineClass = iota
	classHeading
	classListItem
	classTableRow
	classTableSep
	classText
)

// Analyzer builds markup trees from extracted text.
type Analyzer struct {
	vocab  []string
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer) error

// WithVocabulary replaces the technical-term vocabulary used for density
// scoring. Terms are matched as lowercase prefixes so inflected forms count.
func WithVocabulary(terms []string) Option {
	return func(a *Analyzer) error {
		if len(terms) == 0 {
			return fmt.Errorf("vocabulary must not be empty")
		}
		lowered := make([]string, len(terms))
		for i, t := range terms {
			lowered[i] = strings.ToLower(t)
		}
		a.vocab = lowered
		return nil
	}
}

// NewAnalyzer creates an analyzer with the default construction-norm
// vocabulary.
func NewAnalyzer(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{
		vocab:  defaultVocabulary,
		logger: slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Analyze converts text into a markup tree. Heading level determines
// nesting depth; paragraphs, lists and tables attach under the nearest
// preceding heading of lower level, or the root if none.
func (a *Analyzer) Analyze(text string, hints []core.LayoutHint) *core.MarkupTree {
	tree := core.NewMarkupTree()

	hintByLine := make(map[int]core.LayoutHint, len(hints))
	for _, h := range hints {
		hintByLine[h.Line] = h
	}

	type frame struct{ idx, level int }
	stack := []frame{{tree.Root(), 0}}
	top := func() frame { return stack[len(stack)-1] }

	var para []string
	curList, curTable := -1, -1

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		tree.Add(top().idx, core.MarkupNode{
			Kind: core.KindParagraph,
			Text: strings.Join(para, " "),
		})
		para = para[:0]
	}

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		class, level, content := classify(line, hintByLine, i)

		if class == classTableSep {
			// Header separator inside a table, carries no content and
			// does not break the row run.
			continue
		}

		if class != classText {
			flushPara()
		}
		if class != classListItem {
			curList = -1
		}
		if class != classTableRow {
			curTable = -1
		}

		switch class {
		case classBlank:
			// nothing

		case classHeading:
			for len(stack) > 1 && top().level >= level {
				stack = stack[:len(stack)-1]
			}
			idx := tree.Add(top().idx, core.MarkupNode{
				Kind:  core.KindSection,
				Text:  content,
				Level: level,
			})
			stack = append(stack, frame{idx, level})

		case classListItem:
			if curList < 0 {
				curList = tree.Add(top().idx, core.MarkupNode{Kind: core.KindList})
			}
			tree.Add(curList, core.MarkupNode{Kind: core.KindListItem, Text: content})

		case classTableRow:
			if curTable < 0 {
				curTable = tree.Add(top().idx, core.MarkupNode{Kind: core.KindTable})
			}
			row := tree.Add(curTable, core.MarkupNode{Kind: core.KindTableRow, Text: content})
			for _, cell := range splitCells(content) {
				tree.Add(row, core.MarkupNode{Kind: core.KindTableCell, Text: cell})
			}

		case classText:
			para = append(para, strings.TrimSpace(line))
		}
	}
	flushPara()

	a.scoreDensity(tree)

	if err := tree.Validate(); err != nil {
		// Should be unreachable with arena appends; degrade to flat
		// paragraphs rather than fail.
		a.logger.Error("analysis produced an inconsistent tree, degrading to flat structure", "error", err)
		return a.flatTree(text)
	}
	return tree
}

// flatTree is the no-structure fallback: every non-blank run of lines
// becomes a paragraph under the root.
func (a *Analyzer) flatTree(text string) *core.MarkupTree {
	tree := core.NewMarkupTree()
	var para []string
	flush := func() {
		if len(para) > 0 {
			tree.Add(tree.Root(), core.MarkupNode{
				Kind: core.KindParagraph,
				Text: strings.Join(para, " "),
			})
			para = para[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		para = append(para, trimmed)
	}
	flush()
	a.scoreDensity(tree)
	return tree
}

func classify(line string, hints map[int]core.LayoutHint, lineNo int) (lineClass, int, string) {
	trimmed := strings.TrimSpace(line)

	if h, ok := hints[lineNo]; ok {
		switch h.Kind {
		case core.HintHeading:
			level := h.Level
			if level < 1 {
				level = 1
			}
			return classHeading, level, headingText(trimmed)
		case core.HintListItem:
			return classListItem, 0, listItemText(trimmed)
		case core.HintTableRow:
			return classTableRow, 0, trimmed
		}
	}

	switch {
	case trimmed == "":
		return classBlank, 0, ""

	case hashHeadingRe.MatchString(trimmed):
		m := hashHeadingRe.FindStringSubmatch(trimmed)
		return classHeading, len(m[1]), m[2]

	case strings.HasPrefix(trimmed, "|"):
		if tableSepRe.MatchString(trimmed) {
			return classTableSep, 0, ""
		}
		return classTableRow, 0, trimmed

	case listItemRe.MatchString(line):
		return classListItem, 0, listItemText(trimmed)

	case clauseHeadingRe.MatchString(trimmed):
		m := clauseHeadingRe.FindStringSubmatch(trimmed)
		return classHeading, strings.Count(m[1], ".") + 1, trimmed

	default:
		return classText, 0, trimmed
	}
}

func headingText(line string) string {
	if m := hashHeadingRe.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	return line
}

func listItemText(line string) string {
	return strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
}

func splitCells(row string) []string {
	var cells []string
	for _, cell := range strings.Split(strings.Trim(row, "|"), "|") {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}
