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

import "errors"

// Pipeline error taxonomy. The orchestrator classifies stage errors against
// these sentinels when writing failure entries to the ledger.
var (
	// ErrExtraction indicates an unreadable or unsupported document.
	// Fatal for the document.
	ErrExtraction = errors.New("extraction failed")

	// ErrQualityRejection indicates a document below the confidence floor.
	// Fatal for the document but not a system error.
	ErrQualityRejection = errors.New("quality rejected")

	// ErrEmbedding indicates an embedding call that kept failing after the
	// retry budget was exhausted. Fatal for the document.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStoreWrite indicates a per-store write failure. Partial: the
	// document stays indexable in the store that succeeded.
	ErrStoreWrite = errors.New("vector store write failed")

	// ErrLedgerWrite indicates a ledger durability failure. Fatal for the
	// whole run: the pipeline halts rather than proceed with unrecorded
	// progress.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a SourceDocument failed validation.
	ErrInvalidDocument = errors.New("invalid source document")

	// ErrInvalidLedgerEntry indicates a LedgerEntry failed validation.
	ErrInvalidLedgerEntry = errors.New("invalid ledger entry")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidMarkupTree indicates a MarkupTree violated its structural
	// invariants.
	ErrInvalidMarkupTree = errors.New("invalid markup tree")

	// ErrInvalidStage indicates an undefined stage ordinal.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidOutcome indicates an undefined outcome value.
	ErrInvalidOutcome = errors.New("invalid outcome")
)
