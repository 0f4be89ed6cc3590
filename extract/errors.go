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

import "errors"

var (
	// ErrUnsupportedFormat indicates no extractor is registered for the
	// document's format.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument indicates extraction produced no text at all.
	ErrEmptyDocument = errors.New("document yielded no text")

	// ErrLowCoverage indicates the readable fraction fell below the
	// configured floor.
	ErrLowCoverage = errors.New("extraction coverage below floor")
)
