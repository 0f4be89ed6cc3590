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


package quality

import (
	"regexp"
	"strings"

	"github.com/vectral/normpipe/core"
)

// Classification happens right after extraction, before structural
// analysis, so it works on flat text only.

// processMarkers are phrases typical of technological/process documents
// that carry ordered work sequences.
var processMarkers = []string{
	"технологическая карта",
	"последовательность работ",
	"порядок производства работ",
	"состав работ",
	"work sequence",
	"method statement",
	"procedure",
}

var orderedStepRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\p{Ll}`)

// Classify assigns a document type from its text. A recognizable normative
// identifier makes it a norm; process-document markers or a run of ordered
// lowercase steps make it a process document; everything else is generic.
func Classify(text string) core.DocType {
	head := strings.ToLower(documentHead(text))

	for _, marker := range processMarkers {
		if strings.Contains(head, marker) {
			return core.DocTypeProcess
		}
	}
	if ExtractMetadata(text).Identifier != "" {
		return core.DocTypeNorm
	}
	if len(orderedStepRe.FindAllString(text, 3)) >= 3 {
		return core.DocTypeProcess
	}
	return core.DocTypeGeneric
}
