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
	"bytes"
	"context"
	"os"

	"code.sajari.com/docconv"

	"github.com/vectral/normpipe/core"
)

var converterMimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ConverterExtractor extracts text from binary office and PDF formats via
// the docconv conversion library.
type ConverterExtractor struct {
	convert func(r *bytes.Reader, mimeType string) (*docconv.Response, error)
}

// NewConverterExtractor creates a converter-backed extractor for PDF, DOC
// and DOCX documents.
func NewConverterExtractor() *ConverterExtractor {
	return &ConverterExtractor{
		convert: func(r *bytes.Reader, mimeType string) (*docconv.Response, error) {
			return docconv.Convert(r, mimeType, false)
		},
	}
}

func (e *ConverterExtractor) Formats() []string {
	return []string{"pdf", "doc", "docx"}
}

func (e *ConverterExtractor) Extract(ctx context.Context, doc core.SourceDocument) (*Result, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, err
	}

	res, err := e.convert(bytes.NewReader(data), converterMimeTypes[doc.Format])
	if err != nil {
		return nil, err
	}

	// The converter does not report which pages failed, but an error
	// annotation with a body means some content was skipped.
	coverage := 1.0
	if res.Error != "" && res.Body != "" {
		coverage = 0.75
	}
	return &Result{
		Text:     res.Body,
		Coverage: coverage,
	}, nil
}
