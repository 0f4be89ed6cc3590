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


// Package quality covers the judgment stages of the pipeline: document
// classification, identifier/version metadata extraction, and the
// accept/flag/reject confidence gate.
package quality

import (
	"regexp"
	"strings"
)

// identifierRes match normative document designations in the order they
// are tried. The first match over the document head wins.
var identifierRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bGOST\s*(?:R\s*)?\d+(?:\.\d+)*(?:-\d{2,4})?`),
	regexp.MustCompile(`ГОСТ\s*(?:Р\s*)?\d+(?:\.\d+)*(?:-\d{2,4})?`),
	regexp.MustCompile(`СНиП\s*[IVX\d]+[\d.-]*`),
	regexp.MustCompile(`(?:СП|\bSP)\s*\d+\.\d+\.\d{4}`),
}

var versionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:изм(?:енение)?|ред(?:акция)?|rev(?:ision)?|edition|version)\.?\s*№?\s*(\d+(?:\.\d+)*)`),
	regexp.MustCompile(`(?:издание|izd)\s+(\d{4})`),
}

// headLines is how much of the document the extractor inspects: identifiers
// of normative documents sit on the title block, not in the body.
const headLines = 40

// Metadata is what pattern matching recovers from a document's head.
type Metadata struct {
	Identifier string
	Version    string
	Signals    int // how many distinct patterns matched, feeds confidence
}

// ExtractMetadata pattern-matches document identifier and version tags over
// the head of the text. Absent tags are empty strings, never an error.
func ExtractMetadata(text string) Metadata {
	head := documentHead(text)

	var md Metadata
	for _, re := range identifierRes {
		if m := re.FindString(head); m != "" {
			md.Identifier = normalizeSpace(m)
			md.Signals++
			break
		}
	}
	for _, re := range versionRes {
		if m := re.FindStringSubmatch(head); m != nil {
			md.Version = m[1]
			md.Signals++
			break
		}
	}
	return md
}

func documentHead(text string) string {
	lines := strings.SplitN(text, "\n", headLines+1)
	if len(lines) > headLines {
		lines = lines[:headLines]
	}
	return strings.Join(lines, "\n")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
