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

import "fmt"

// ValidateSourceDocument validates a SourceDocument according to domain rules.
//
// Validation rules:
//   - Fingerprint must be set (content has been hashed)
//   - Path must not be empty
//   - Size must not be negative
//
// Format is NOT validated here: unknown formats are rejected later by the
// extraction registry with an extraction error.
func ValidateSourceDocument(doc *SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.Fingerprint == 0 {
		return fmt.Errorf("%w: fingerprint not set", ErrInvalidDocument)
	}
	if doc.Path == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidDocument)
	}
	if doc.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidDocument)
	}
	return nil
}

// ValidateLedgerEntry validates a LedgerEntry before it is persisted.
//
// Validation rules:
//   - Fingerprint must be set
//   - Stage must be a defined ordinal
//   - Outcome must be a defined value
//   - A failed entry must carry a reason
func ValidateLedgerEntry(entry *LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidLedgerEntry)
	}
	if entry.Fingerprint == 0 {
		return fmt.Errorf("%w: fingerprint not set", ErrInvalidLedgerEntry)
	}
	if !entry.Stage.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidLedgerEntry, ErrInvalidStage, entry.Stage)
	}
	if entry.Outcome.String() == fmt.Sprintf("outcome(%d)", uint8(entry.Outcome)) {
		return fmt.Errorf("%w: %w: %d", ErrInvalidLedgerEntry, ErrInvalidOutcome, entry.Outcome)
	}
	if entry.Outcome == OutcomeFailed && entry.Reason == "" {
		return fmt.Errorf("%w: failed entry without reason", ErrInvalidLedgerEntry)
	}
	return nil
}

// ValidateChunk validates a Chunk before embedding.
//
// Validation rules:
//   - Seq must not be negative
//   - Text must not be empty
//   - ParentSeq must precede Seq or be -1
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Seq < 0 {
		return fmt.Errorf("%w: negative sequence", ErrInvalidChunk)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidChunk)
	}
	if chunk.ParentSeq != -1 && chunk.ParentSeq >= chunk.Seq {
		return fmt.Errorf("%w: parent sequence %d does not precede %d", ErrInvalidChunk, chunk.ParentSeq, chunk.Seq)
	}
	return nil
}
