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


package markup

import (
	"strings"
	"unicode"

	"github.com/vectral/normpipe/core"
)

// defaultVocabulary covers construction and regulatory terminology in the
// two scripts the source corpus mixes. Terms are matched as prefixes, which
// absorbs most inflected forms without a stemmer.
var defaultVocabulary = []string{
	// construction
	"concrete", "reinforc", "steel", "structur", "foundation", "load",
	"strength", "weld", "mortar", "masonry", "insulat", "formwork",
	"assembl", "install", "excavat",
	// regulatory
	"standard", "requirement", "toleranc", "complian", "inspect",
	"certif", "specificat", "clause",
	// construction (Cyrillic)
	"бетон", "арматур", "сталь", "конструкц", "фундамент", "нагрузк",
	"прочност", "сварк", "раствор", "кладк", "изоляц", "опалубк",
	"монтаж", "установк", "котлован",
	// regulatory (Cyrillic)
	"гост", "снип", "стандарт", "требован", "допуск", "соответств",
	"контрол", "сертифик", "пункт",
}

type termCounts struct {
	terms, tokens int
}

// scoreDensity computes technical-term density per node. A node's density
// covers its whole subtree, so sections score their contents and leaves
// score their own text.
func (a *Analyzer) scoreDensity(tree *core.MarkupTree) {
	counts := make([]termCounts, tree.Len())
	for i := range tree.Nodes {
		counts[i] = a.countTerms(tree.Nodes[i].Text)
	}
	// Parents always precede children in the arena, so one reverse pass
	// aggregates subtrees.
	for i := tree.Len() - 1; i > 0; i-- {
		parent := tree.Nodes[i].Parent
		counts[parent].terms += counts[i].terms
		counts[parent].tokens += counts[i].tokens
	}
	for i := range tree.Nodes {
		if counts[i].tokens > 0 {
			tree.Nodes[i].Density = float64(counts[i].terms) / float64(counts[i].tokens)
		}
	}
}

func (a *Analyzer) countTerms(text string) termCounts {
	if text == "" {
		return termCounts{}
	}
	tokens := tokenize(text)
	c := termCounts{tokens: len(tokens)}
	for _, token := range tokens {
		if a.isTechnical(token) {
			c.terms++
		}
	}
	return c
}

func (a *Analyzer) isTechnical(token string) bool {
	for _, term := range a.vocab {
		if strings.HasPrefix(token, term) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
