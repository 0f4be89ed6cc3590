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
	"strings"
	"unicode/utf8"

	"github.com/vectral/normpipe/core"
)

// PlaintextExtractor reads UTF-8 text files. Bytes that are not valid UTF-8
// are dropped and counted against coverage, so a partially binary file is a
// partial extraction rather than a hard failure.
type PlaintextExtractor struct{}

// NewPlaintextExtractor creates a plain text extractor.
func NewPlaintextExtractor() *PlaintextExtractor {
	return &PlaintextExtractor{}
}

func (e *PlaintextExtractor) Formats() []string {
	return []string{"txt"}
}

func (e *PlaintextExtractor) Extract(ctx context.Context, doc core.SourceDocument) (*Result, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}

	text, coverage := sanitizeUTF8(data)
	return &Result{
		Text:     text,
		Coverage: coverage,
	}, nil
}

// sanitizeUTF8 drops invalid byte sequences and reports the fraction of
// input bytes that survived.
func sanitizeUTF8(data []byte) (string, float64) {
	if len(data) == 0 {
		return "", 0
	}
	if utf8.Valid(data) {
		return string(data), 1
	}

	var b strings.Builder
	b.Grow(len(data))
	valid := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		b.Write(data[i : i+size])
		valid += size
		i += size
	}
	return b.String(), float64(valid) / float64(len(data))
}
