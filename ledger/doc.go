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


// Package ledger defines the durable progress-tracking layer of the pipeline.
//
// The ledger maps content fingerprints to their last completed pipeline
// stage and outcome. It is what makes the pipeline crash-resumable: the
// orchestrator records every stage transition here before moving on, and a
// restarted process re-enters each document's state machine at the stage
// after the last recorded one.
//
// Three repositories share one backend:
//
//   - Ledger: progress entries, one per fingerprint, plus duplicate entries
//     for paths whose content was already claimed by another document
//   - SnapshotRepository: in-flight derived artifacts (extracted text,
//     markup tree, chunks, vectors), deleted at terminal outcomes
//   - RunRepository: run records for resume-by-ID
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces rather
// than concrete types, so alternative backends can be swapped in and tests
// can substitute doubles without modification:
//
//	led, err := badger.NewLedger(backend)  // returns ledger.Ledger
//
// # Durability
//
// Record and SaveSnapshot must not return before the write is synced to
// stable storage. A crash after a Record call must never cause reprocessing
// past the recorded stage; a crash before it must cause a full stage retry.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Writes to a single
// fingerprint are serialized by the orchestrator (one worker owns a
// document); the backend must additionally tolerate concurrent writers on
// distinct fingerprints and arbitrary concurrent readers.
package ledger
