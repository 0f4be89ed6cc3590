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


package ledger

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/vectral/normpipe/core"
)

// Binary codecs for everything the ledger persists. Written by hand against
// the mus-go primitive serializers; field order is the wire format and must
// not change between releases.

// MarshalLedgerEntry serializes a LedgerEntry to bytes.
func MarshalLedgerEntry(entry *core.LedgerEntry) []byte {
	buf := make([]byte, LedgerEntryMUS.Size(*entry))
	LedgerEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalLedgerEntry deserializes a LedgerEntry from bytes.
func UnmarshalLedgerEntry(data []byte) (*core.LedgerEntry, error) {
	entry, _, err := LedgerEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarshalSnapshot serializes a DocumentSnapshot to bytes.
func MarshalSnapshot(snap *core.DocumentSnapshot) []byte {
	buf := make([]byte, SnapshotMUS.Size(*snap))
	SnapshotMUS.Marshal(*snap, buf)
	return buf
}

// UnmarshalSnapshot deserializes a DocumentSnapshot from bytes.
func UnmarshalSnapshot(data []byte) (*core.DocumentSnapshot, error) {
	snap, _, err := SnapshotMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// MarshalRunRecord serializes a RunRecord to bytes.
func MarshalRunRecord(run *core.RunRecord) []byte {
	buf := make([]byte, RunRecordMUS.Size(*run))
	RunRecordMUS.Marshal(*run, buf)
	return buf
}

// UnmarshalRunRecord deserializes a RunRecord from bytes.
func UnmarshalRunRecord(data []byte) (*core.RunRecord, error) {
	run, _, err := RunRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(rec *core.VectorRecord) []byte {
	buf := make([]byte, VectorRecordMUS.Size(*rec))
	VectorRecordMUS.Marshal(*rec, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	rec, _, err := VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Serializer instances.
var (
	LedgerEntryMUS  = ledgerEntrySer{}
	SnapshotMUS     = snapshotSer{}
	RunRecordMUS    = runRecordSer{}
	VectorRecordMUS = vectorRecordSer{}
)

// time encoding: microseconds since the Unix epoch.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	if us == 0 {
		return time.Time{}, n, nil
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

// string slice encoding: varint length followed by ord strings.

func marshalStrings(ss []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(ss), bs)
	for _, s := range ss {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalStrings(bs []byte) (ss []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrSerializationFailed
	}
	if length == 0 {
		return nil, n, nil
	}
	ss = make([]string, length)
	for i := 0; i < length; i++ {
		var n1 int
		ss[i], n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return ss, n, nil
}

func sizeStrings(ss []string) (size int) {
	size = varint.Int.Size(len(ss))
	for _, s := range ss {
		size += ord.String.Size(s)
	}
	return size
}

// vector encoding: varint length followed by raw float32 components.

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, c := range v {
		n += raw.Float32.Marshal(c, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrSerializationFailed
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	for i := 0; i < length; i++ {
		var n1 int
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func sizeVector(v []float32) int {
	return varint.Int.Size(len(v)) + len(v)*4
}

// int slice encoding: varint length followed by varint elements.

func marshalInts(v []int, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, e := range v {
		n += varint.Int.Marshal(e, bs[n:])
	}
	return n
}

func unmarshalInts(bs []byte) (v []int, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrSerializationFailed
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]int, length)
	for i := 0; i < length; i++ {
		var n1 int
		v[i], n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func sizeInts(v []int) (size int) {
	size = varint.Int.Size(len(v))
	for _, e := range v {
		size += varint.Int.Size(e)
	}
	return size
}

// string map encoding: varint length followed by key/value ord strings in
// sorted-insertion order (badger values do not require canonical maps).

func marshalStringMap(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalStringMap(bs []byte) (m map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, ErrSerializationFailed
	}
	if length == 0 {
		return nil, n, nil
	}
	m = make(map[string]string, length)
	for i := 0; i < length; i++ {
		var k, v string
		var n1 int
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

func sizeStringMap(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

type ledgerEntrySer struct{}

func (ledgerEntrySer) Marshal(e core.LedgerEntry, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(e.Fingerprint), bs)
	n += ord.String.Marshal(e.Path, bs[n:])
	n += ord.String.Marshal(e.Format, bs[n:])
	n += varint.Int64.Marshal(e.Size, bs[n:])
	n += varint.Uint64.Marshal(uint64(e.Stage), bs[n:])
	n += varint.Uint64.Marshal(uint64(e.Outcome), bs[n:])
	n += varint.Uint64.Marshal(uint64(e.FailStage), bs[n:])
	n += ord.String.Marshal(e.Reason, bs[n:])
	n += marshalStrings(e.PartialStores, bs[n:])
	n += marshalTime(e.DiscoveredAt, bs[n:])
	n += marshalTime(e.UpdatedAt, bs[n:])
	return n
}

func (ledgerEntrySer) Unmarshal(bs []byte) (e core.LedgerEntry, n int, err error) {
	var n1 int
	var u uint64

	u, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return e, n, err
	}
	e.Fingerprint = core.Fingerprint(u)

	e.Path, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.Format, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.Size, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	u, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.Stage = core.Stage(u)
	u, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.Outcome = core.Outcome(u)
	u, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.FailStage = core.Stage(u)
	e.Reason, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.PartialStores, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.DiscoveredAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return e, n, err
	}
	e.UpdatedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return e, n, err
}

func (ledgerEntrySer) Size(e core.LedgerEntry) (size int) {
	size = varint.Uint64.Size(uint64(e.Fingerprint))
	size += ord.String.Size(e.Path)
	size += ord.String.Size(e.Format)
	size += varint.Int64.Size(e.Size)
	size += varint.Uint64.Size(uint64(e.Stage))
	size += varint.Uint64.Size(uint64(e.Outcome))
	size += varint.Uint64.Size(uint64(e.FailStage))
	size += ord.String.Size(e.Reason)
	size += sizeStrings(e.PartialStores)
	size += sizeTime(e.DiscoveredAt)
	size += sizeTime(e.UpdatedAt)
	return size
}

type markupNodeSer struct{}

func (markupNodeSer) Marshal(m core.MarkupNode, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(m.Kind), bs)
	n += ord.String.Marshal(m.Text, bs[n:])
	n += varint.Int.Marshal(m.Level, bs[n:])
	n += varint.Float64.Marshal(m.Density, bs[n:])
	n += varint.Int.Marshal(m.Parent, bs[n:])
	n += marshalInts(m.Children, bs[n:])
	return n
}

func (markupNodeSer) Unmarshal(bs []byte) (m core.MarkupNode, n int, err error) {
	var n1 int
	var u uint64

	u, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return m, n, err
	}
	m.Kind = core.NodeKind(u)
	m.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Level, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Density, n1, err = varint.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Parent, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return m, n, err
	}
	m.Children, n1, err = unmarshalInts(bs[n:])
	n += n1
	return m, n, err
}

func (markupNodeSer) Size(m core.MarkupNode) (size int) {
	size = varint.Uint64.Size(uint64(m.Kind))
	size += ord.String.Size(m.Text)
	size += varint.Int.Size(m.Level)
	size += varint.Float64.Size(m.Density)
	size += varint.Int.Size(m.Parent)
	size += sizeInts(m.Children)
	return size
}

var markupNodeMUS = markupNodeSer{}

type chunkSer struct{}

func (chunkSer) Marshal(c core.Chunk, bs []byte) (n int) {
	n = varint.Int.Marshal(c.Seq, bs)
	n += marshalStrings(c.NodePath, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += varint.Float64.Marshal(c.Density, bs[n:])
	n += varint.Int.Marshal(c.Level, bs[n:])
	n += varint.Int.Marshal(c.ParentSeq, bs[n:])
	return n
}

func (chunkSer) Unmarshal(bs []byte) (c core.Chunk, n int, err error) {
	var n1 int

	c.Seq, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return c, n, err
	}
	c.NodePath, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return c, n, err
	}
	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return c, n, err
	}
	c.Density, n1, err = varint.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return c, n, err
	}
	c.Level, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return c, n, err
	}
	c.ParentSeq, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return c, n, err
}

func (chunkSer) Size(c core.Chunk) (size int) {
	size = varint.Int.Size(c.Seq)
	size += sizeStrings(c.NodePath)
	size += ord.String.Size(c.Text)
	size += varint.Float64.Size(c.Density)
	size += varint.Int.Size(c.Level)
	size += varint.Int.Size(c.ParentSeq)
	return size
}

var chunkMUS = chunkSer{}

type layoutHintSer struct{}

func (layoutHintSer) Marshal(h core.LayoutHint, bs []byte) (n int) {
	n = varint.Int.Marshal(h.Line, bs)
	n += varint.Uint64.Marshal(uint64(h.Kind), bs[n:])
	n += varint.Int.Marshal(h.Level, bs[n:])
	return n
}

func (layoutHintSer) Unmarshal(bs []byte) (h core.LayoutHint, n int, err error) {
	var n1 int
	var u uint64

	h.Line, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return h, n, err
	}
	u, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return h, n, err
	}
	h.Kind = core.HintKind(u)
	h.Level, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return h, n, err
}

func (layoutHintSer) Size(h core.LayoutHint) int {
	return varint.Int.Size(h.Line) +
		varint.Uint64.Size(uint64(h.Kind)) +
		varint.Int.Size(h.Level)
}

var layoutHintMUS = layoutHintSer{}

type snapshotSer struct{}

func (snapshotSer) Marshal(s core.DocumentSnapshot, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(s.Fingerprint), bs)
	n += ord.String.Marshal(s.Text, bs[n:])
	n += varint.Float64.Marshal(s.Coverage, bs[n:])
	n += varint.Int.Marshal(len(s.Hints), bs[n:])
	for _, h := range s.Hints {
		n += layoutHintMUS.Marshal(h, bs[n:])
	}
	hasTree := s.Tree != nil
	n += ord.Bool.Marshal(hasTree, bs[n:])
	if hasTree {
		n += varint.Int.Marshal(len(s.Tree.Nodes), bs[n:])
		for _, node := range s.Tree.Nodes {
			n += markupNodeMUS.Marshal(node, bs[n:])
		}
	}
	n += varint.Uint64.Marshal(uint64(s.DocType), bs[n:])
	n += ord.String.Marshal(s.Identifier, bs[n:])
	n += ord.String.Marshal(s.Version, bs[n:])
	n += varint.Float64.Marshal(s.Confidence, bs[n:])
	n += ord.Bool.Marshal(s.Flagged, bs[n:])
	n += marshalStrings(s.WorkSequence, bs[n:])
	n += varint.Int.Marshal(len(s.Chunks), bs[n:])
	for _, c := range s.Chunks {
		n += chunkMUS.Marshal(c, bs[n:])
	}
	n += varint.Int.Marshal(len(s.Vectors), bs[n:])
	for _, v := range s.Vectors {
		n += marshalVector(v, bs[n:])
	}
	return n
}

func (snapshotSer) Unmarshal(bs []byte) (s core.DocumentSnapshot, n int, err error) {
	var n1 int
	var u uint64
	var length int

	u, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return s, n, err
	}
	s.Fingerprint = core.Fingerprint(u)
	s.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.Coverage, n1, err = varint.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || length < 0 {
		return s, n, errOr(err)
	}
	if length > 0 {
		s.Hints = make([]core.LayoutHint, length)
		for i := 0; i < length; i++ {
			s.Hints[i], n1, err = layoutHintMUS.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return s, n, err
			}
		}
	}
	var hasTree bool
	hasTree, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	if hasTree {
		length, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil || length < 0 {
			return s, n, errOr(err)
		}
		tree := &core.MarkupTree{Nodes: make([]core.MarkupNode, length)}
		for i := 0; i < length; i++ {
			tree.Nodes[i], n1, err = markupNodeMUS.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return s, n, err
			}
		}
		s.Tree = tree
	}
	u, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.DocType = core.DocType(u)
	s.Identifier, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.Version, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.Confidence, n1, err = varint.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.Flagged, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	s.WorkSequence, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return s, n, err
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || length < 0 {
		return s, n, errOr(err)
	}
	if length > 0 {
		s.Chunks = make([]core.Chunk, length)
		for i := 0; i < length; i++ {
			s.Chunks[i], n1, err = chunkMUS.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return s, n, err
			}
		}
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || length < 0 {
		return s, n, errOr(err)
	}
	if length > 0 {
		s.Vectors = make([][]float32, length)
		for i := 0; i < length; i++ {
			s.Vectors[i], n1, err = unmarshalVector(bs[n:])
			n += n1
			if err != nil {
				return s, n, err
			}
		}
	}
	return s, n, nil
}

func (snapshotSer) Size(s core.DocumentSnapshot) (size int) {
	size = varint.Uint64.Size(uint64(s.Fingerprint))
	size += ord.String.Size(s.Text)
	size += varint.Float64.Size(s.Coverage)
	size += varint.Int.Size(len(s.Hints))
	for _, h := range s.Hints {
		size += layoutHintMUS.Size(h)
	}
	size += ord.Bool.Size(s.Tree != nil)
	if s.Tree != nil {
		size += varint.Int.Size(len(s.Tree.Nodes))
		for _, node := range s.Tree.Nodes {
			size += markupNodeMUS.Size(node)
		}
	}
	size += varint.Uint64.Size(uint64(s.DocType))
	size += ord.String.Size(s.Identifier)
	size += ord.String.Size(s.Version)
	size += varint.Float64.Size(s.Confidence)
	size += ord.Bool.Size(s.Flagged)
	size += sizeStrings(s.WorkSequence)
	size += varint.Int.Size(len(s.Chunks))
	for _, c := range s.Chunks {
		size += chunkMUS.Size(c)
	}
	size += varint.Int.Size(len(s.Vectors))
	for _, v := range s.Vectors {
		size += sizeVector(v)
	}
	return size
}

type runRecordSer struct{}

func (runRecordSer) Marshal(r core.RunRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ID, bs)
	n += marshalStrings(r.Roots, bs[n:])
	n += marshalTime(r.StartedAt, bs[n:])
	n += marshalTime(r.FinishedAt, bs[n:])
	n += ord.String.Marshal(r.Summary.RunID, bs[n:])
	n += varint.Int.Marshal(r.Summary.Processed, bs[n:])
	n += varint.Int.Marshal(r.Summary.SkippedDuplicate, bs[n:])
	n += varint.Int.Marshal(len(r.Summary.Failed), bs[n:])
	for _, f := range r.Summary.Failed {
		n += varint.Uint64.Marshal(uint64(f.Fingerprint), bs[n:])
		n += ord.String.Marshal(f.Path, bs[n:])
		n += varint.Uint64.Marshal(uint64(f.Stage), bs[n:])
		n += ord.String.Marshal(f.Reason, bs[n:])
	}
	n += varint.Int.Marshal(len(r.Summary.PartialStoreFailures), bs[n:])
	for _, p := range r.Summary.PartialStoreFailures {
		n += varint.Uint64.Marshal(uint64(p.Fingerprint), bs[n:])
		n += ord.String.Marshal(p.Path, bs[n:])
		n += marshalStrings(p.Stores, bs[n:])
	}
	return n
}

func (runRecordSer) Unmarshal(bs []byte) (r core.RunRecord, n int, err error) {
	var n1 int
	var u uint64
	var length int

	r.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	r.Roots, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.StartedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.FinishedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Summary.RunID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Summary.Processed, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Summary.SkippedDuplicate, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || length < 0 {
		return r, n, errOr(err)
	}
	for i := 0; i < length; i++ {
		var f core.FailedDocument
		u, n1, err = varint.Uint64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		f.Fingerprint = core.Fingerprint(u)
		f.Path, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		u, n1, err = varint.Uint64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		f.Stage = core.Stage(u)
		f.Reason, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		r.Summary.Failed = append(r.Summary.Failed, f)
	}
	length, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil || length < 0 {
		return r, n, errOr(err)
	}
	for i := 0; i < length; i++ {
		var p core.PartialStoreFailure
		u, n1, err = varint.Uint64.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		p.Fingerprint = core.Fingerprint(u)
		p.Path, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		p.Stores, n1, err = unmarshalStrings(bs[n:])
		n += n1
		if err != nil {
			return r, n, err
		}
		r.Summary.PartialStoreFailures = append(r.Summary.PartialStoreFailures, p)
	}
	return r, n, nil
}

func (runRecordSer) Size(r core.RunRecord) (size int) {
	size = ord.String.Size(r.ID)
	size += sizeStrings(r.Roots)
	size += sizeTime(r.StartedAt)
	size += sizeTime(r.FinishedAt)
	size += ord.String.Size(r.Summary.RunID)
	size += varint.Int.Size(r.Summary.Processed)
	size += varint.Int.Size(r.Summary.SkippedDuplicate)
	size += varint.Int.Size(len(r.Summary.Failed))
	for _, f := range r.Summary.Failed {
		size += varint.Uint64.Size(uint64(f.Fingerprint))
		size += ord.String.Size(f.Path)
		size += varint.Uint64.Size(uint64(f.Stage))
		size += ord.String.Size(f.Reason)
	}
	size += varint.Int.Size(len(r.Summary.PartialStoreFailures))
	for _, p := range r.Summary.PartialStoreFailures {
		size += varint.Uint64.Size(uint64(p.Fingerprint))
		size += ord.String.Size(p.Path)
		size += sizeStrings(p.Stores)
	}
	return size
}

type vectorRecordSer struct{}

func (vectorRecordSer) Marshal(r core.VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ChunkKey, bs)
	n += marshalVector(r.Vector, bs[n:])
	n += marshalStringMap(r.Metadata, bs[n:])
	return n
}

func (vectorRecordSer) Unmarshal(bs []byte) (r core.VectorRecord, n int, err error) {
	var n1 int

	r.ChunkKey, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return r, n, err
	}
	r.Vector, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return r, n, err
	}
	r.Metadata, n1, err = unmarshalStringMap(bs[n:])
	n += n1
	return r, n, err
}

func (vectorRecordSer) Size(r core.VectorRecord) int {
	return ord.String.Size(r.ChunkKey) + sizeVector(r.Vector) + sizeStringMap(r.Metadata)
}

// errOr maps a nil error from a negative-length read to the serialization
// sentinel so callers always see a non-nil error on malformed input.
func errOr(err error) error {
	if err != nil {
		return err
	}
	return ErrSerializationFailed
}
