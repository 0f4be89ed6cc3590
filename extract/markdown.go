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


package extract

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/vectral/normpipe/core"
)

var (
	mdHeadingRe  = regexp.MustCompile(`^(#{1,6})\s+\S`)
	mdListItemRe = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+\S`)
	mdTableSepRe = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
)

// MarkdownExtractor reads markdown files and reports the structure the
// syntax already makes explicit as layout hints, so the structural analyzer
// does not have to rediscover it.
type MarkdownExtractor struct{}

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

func (e *MarkdownExtractor) Formats() []string {
	return []string{"md"}
}

func (e *MarkdownExtractor) Extract(ctx context.Context, doc core.SourceDocument) (*Result, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}

	text, coverage := sanitizeUTF8(data)
	return &Result{
		Text:     text,
		Coverage: coverage,
		Hints:    markdownHints(text),
	}, nil
}

func markdownHints(text string) []core.LayoutHint {
	var hints []core.LayoutHint
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case mdHeadingRe.MatchString(trimmed):
			level := len(mdHeadingRe.FindStringSubmatch(trimmed)[1])
			hints = append(hints, core.LayoutHint{Line: i, Kind: core.HintHeading, Level: level})
		case isTableRow(trimmed):
			hints = append(hints, core.LayoutHint{Line: i, Kind: core.HintTableRow})
		case mdListItemRe.MatchString(line):
			hints = append(hints, core.LayoutHint{Line: i, Kind: core.HintListItem})
		}
	}
	return hints
}

// isTableRow matches pipe-delimited rows but not the header separator
// (`|---|---|`), which carries no content.
func isTableRow(line string) bool {
	if !strings.HasPrefix(line, "|") || strings.Count(line, "|") < 2 {
		return false
	}
	return !mdTableSepRe.MatchString(line)
}
