package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Fingerprint is a stable content hash identifying a source document
// regardless of its name or path. It is generated with BLAKE2b over the
// raw file bytes, so identical content always produces the same fingerprint.
type Fingerprint uint64

// FingerprintBytes computes the fingerprint of raw document content.
func FingerprintBytes(data []byte) Fingerprint {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return Fingerprint(binary.LittleEndian.Uint64(sum))
}

// String renders the fingerprint as fixed-width hex, suitable for keys.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Stage is a position in the per-document processing state machine.
// Stages are strictly ordered; a document advances one stage at a time
// and the last completed stage is persisted in the ledger.
type Stage uint8

const (
	StageDiscovered Stage = iota
	StageValidated
	StageDuplicateChecked
	StageExtracted
	StageClassified
	StageStructurallyAnalyzed
	StageMetadataExtracted
	StageQualityChecked
	StageTypeProcessed
	StageWorkSequenced
	StageChunked
	StageEmbedded
	StageIndexedStoreA
	StageIndexedStoreB
	StageDone

	// StageCount is the number of stages in the state machine.
	StageCount = int(StageDone) + 1
)

var stageNames = [StageCount]string{
	"discovered",
	"validated",
	"duplicate_checked",
	"extracted",
	"classified",
	"structurally_analyzed",
	"metadata_extracted",
	"quality_checked",
	"type_processed",
	"work_sequenced",
	"chunked",
	"embedded",
	"indexed_store_a",
	"indexed_store_b",
	"done",
}

// String returns the stable lowercase name of the stage.
func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Next returns the stage that follows s. Next of StageDone is StageDone.
func (s Stage) Next() Stage {
	if s >= StageDone {
		return StageDone
	}
	return s + 1
}

// Valid reports whether s is a defined stage ordinal.
func (s Stage) Valid() bool {
	return int(s) < StageCount
}

// Outcome describes the current disposition of a document in the ledger.
type Outcome uint8

const (
	// OutcomePending means the document is still moving through stages.
	OutcomePending Outcome = iota + 1
	// OutcomeDone means all stages completed. The entry may still carry
	// partial store failures eligible for repair.
	OutcomeDone
	// OutcomeFailed means a stage failed terminally for this document.
	OutcomeFailed
	// OutcomeSkippedDuplicate means the content was already indexed under
	// another path and this document was excluded before extraction.
	OutcomeSkippedDuplicate
)

var outcomeNames = map[Outcome]string{
	OutcomePending:          "pending",
	OutcomeDone:             "done",
	OutcomeFailed:           "failed",
	OutcomeSkippedDuplicate: "skipped_duplicate",
}

// String returns the stable lowercase name of the outcome.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// DocType classifies a document for type-specific processing.
type DocType uint8

const (
	// DocTypeGeneric is the fallback for documents with no recognizable class.
	DocTypeGeneric DocType = iota + 1
	// DocTypeNorm is a regulatory/normative document (standards, codes).
	DocTypeNorm
	// DocTypeProcess is a process/technological document containing ordered
	// work sequences.
	DocTypeProcess
)

var docTypeNames = map[DocType]string{
	DocTypeGeneric: "generic",
	DocTypeNorm:    "norm",
	DocTypeProcess: "process",
}

// String returns the stable lowercase name of the document type.
func (d DocType) String() string {
	if name, ok := docTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("doctype(%d)", uint8(d))
}

// SourceDocument identifies a discovered source file. It is immutable once
// fingerprinted; all derived state lives in the ledger and the snapshot.
type SourceDocument struct {
	Fingerprint  Fingerprint
	Path         string
	Format       string // extraction dispatch key, e.g. "txt", "md", "pdf"
	Size         int64
	DiscoveredAt time.Time
}

// LedgerEntry is the durable progress record for one document.
// It is owned by the ledger and mutated only by the orchestrator after a
// stage commit.
type LedgerEntry struct {
	Fingerprint   Fingerprint
	Path          string
	Format        string
	Size          int64
	Stage         Stage // last completed stage
	Outcome       Outcome
	FailStage     Stage    // stage at which the document failed, if Outcome is failed
	Reason        string   // failure reason, if Outcome is failed
	PartialStores []string // vector stores whose write failed while the other succeeded
	DiscoveredAt  time.Time
	UpdatedAt     time.Time
}

// Chunk is a structurally-bounded span of text prepared for embedding.
type Chunk struct {
	Seq       int      // index within the document, in reading order
	NodePath  []string // ownership chain of markup kinds/levels, e.g. "section:2"
	Text      string
	Density   float64 // technical-term density of the chunk text
	Level     int     // heading level of the enclosing section, 0 for root
	ParentSeq int     // sequence of the parent chunk, -1 if none
}

// Key returns the stable chunk identity used for idempotent store upserts.
func (c Chunk) Key(fp Fingerprint) string {
	return fmt.Sprintf("%s:%06d", fp, c.Seq)
}

// VectorRecord is the unit written to each vector store.
type VectorRecord struct {
	ChunkKey string
	Vector   []float32
	Metadata map[string]string
}

// FailedDocument describes one terminally failed document in a run summary.
type FailedDocument struct {
	Fingerprint Fingerprint
	Path        string
	Stage       Stage
	Reason      string
}

// PartialStoreFailure describes a document indexed in one store but not the
// other, queued for repair.
type PartialStoreFailure struct {
	Fingerprint Fingerprint
	Path        string
	Stores      []string
}

// RunSummary reports per-document outcomes of one pipeline run.
type RunSummary struct {
	RunID                string
	Processed            int
	SkippedDuplicate     int
	Failed               []FailedDocument
	PartialStoreFailures []PartialStoreFailure
}

// RunRecord persists the parameters and result of a run so an interrupted
// run can be resumed by ID.
type RunRecord struct {
	ID         string
	Roots      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    RunSummary
}

// HintKind classifies a layout hint reported by a text extractor.
type HintKind uint8

const (
	HintHeading HintKind = iota + 1
	HintListItem
	HintTableRow
)

// LayoutHint marks a line of extracted text that the extractor already
// recognized structurally, so the analyzer does not have to rediscover it.
type LayoutHint struct {
	Line  int // zero-based line index into the extracted text
	Kind  HintKind
	Level int // heading level, 0 otherwise
}

// DocumentSnapshot holds the derived artifacts of one document while it
// moves through the pipeline. It is persisted after the stages that produce
// its fields and deleted once the ledger entry reaches a terminal outcome,
// which is what makes stage-granular resume and store-scoped repair possible.
type DocumentSnapshot struct {
	Fingerprint  Fingerprint
	Text         string
	Coverage     float64
	Hints        []LayoutHint
	Tree         *MarkupTree
	DocType      DocType
	Identifier   string
	Version      string
	Confidence   float64
	Flagged      bool
	WorkSequence []string
	Chunks       []Chunk
	Vectors      [][]float32
}

// VectorRecords pairs the snapshot's chunks with their vectors and attaches
// the metadata both stores index on. Meaningful only once Chunks and Vectors
// are populated and aligned.
func (s *DocumentSnapshot) VectorRecords(path string) []VectorRecord {
	records := make([]VectorRecord, len(s.Chunks))
	for i, chunk := range s.Chunks {
		md := map[string]string{
			"path":      path,
			"doc_type":  s.DocType.String(),
			"seq":       strconv.Itoa(chunk.Seq),
			"node_path": strings.Join(chunk.NodePath, "/"),
			"text":      chunk.Text,
		}
		if s.Identifier != "" {
			md["identifier"] = s.Identifier
		}
		if s.Version != "" {
			md["version"] = s.Version
		}
		if s.Flagged {
			md["flagged"] = "true"
		}
		if chunk.ParentSeq >= 0 {
			md["parent_seq"] = strconv.Itoa(chunk.ParentSeq)
		}
		if len(s.WorkSequence) > 0 {
			md["work_steps"] = strings.Join(s.WorkSequence, "\n")
		}
		records[i] = VectorRecord{
			ChunkKey: chunk.Key(s.Fingerprint),
			Vector:   s.Vectors[i],
			Metadata: md,
		}
	}
	return records
}
