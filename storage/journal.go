package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"time"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

// JournalType distinguishes EXPLICIT journals from IMPLICIT ones (spec
// §4.5). Both share the same edit-accumulation and commit machinery here and
// are ended by Commit or Rollback; they differ only in what PageStorage's
// Init does with a record left behind: EXPLICIT records are discarded,
// IMPLICIT ones are replayed and committed.
type JournalType int

const (
	JournalExplicit JournalType = iota
	JournalImplicit
)

// Journal accumulates Put/Delete edits against a page's current state and,
// on Commit, applies them to the base commit's tree in one batch, producing
// a new commit (spec §4.5). Within a journal, a later Put/Delete for the
// same key replaces any earlier one for that key (last-write-wins); the
// edits are only sorted into key order once, at Commit time, so determinism
// doesn't depend on the backing KV store's native iteration order (unlike
// badgerstore's LSM order, kv.MemStore's map iteration is unordered).
type Journal struct {
	ID          string
	Type        JournalType
	baseCommits []*Commit
	baseRootID  objectid.ID
	store       NodeStore
	maxNodeSize int

	edits map[string]EntryChange
	done  bool
}

// NewJournal starts a journal whose edits will be applied on top of
// baseRootID, producing a commit whose parents are baseCommits (one parent
// for a normal journal, two for a merge journal).
func NewJournal(id string, typ JournalType, baseCommits []*Commit, baseRootID objectid.ID, store NodeStore, maxNodeSize int) *Journal {
	return &Journal{
		ID:          id,
		Type:        typ,
		baseCommits: baseCommits,
		baseRootID:  baseRootID,
		store:       store,
		maxNodeSize: maxNodeSize,
		edits:       map[string]EntryChange{},
	}
}

// BaseCommits returns the commits this journal's result will be a child of.
func (j *Journal) BaseCommits() []*Commit { return j.baseCommits }

// BaseRootID returns the tree root edits are applied on top of.
func (j *Journal) BaseRootID() objectid.ID { return j.baseRootID }

// Put stages a key/value/priority write, replacing any earlier staged edit
// for the same key.
func (j *Journal) Put(key []byte, valueID objectid.ID, priority Priority) {
	k := make([]byte, len(key))
	copy(k, key)
	j.edits[string(k)] = EntryChange{Entry: Entry{Key: k, ValueID: valueID, Priority: priority}}
}

// Delete stages a removal, replacing any earlier staged edit for the same key.
func (j *Journal) Delete(key []byte) {
	k := make([]byte, len(key))
	copy(k, key)
	j.edits[string(k)] = EntryChange{Entry: Entry{Key: k}, Deleted: true}
}

// PendingEdits returns the staged edits in key order, the form ApplyChanges
// and the persisted journal record both need.
func (j *Journal) PendingEdits() []EntryChange {
	out := make([]EntryChange, 0, len(j.edits))
	for _, c := range j.edits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, k int) bool {
		return bytes.Compare(out[i].Entry.Key, out[k].Entry.Key) < 0
	})
	return out
}

// Commit applies every staged edit to the base tree and returns the
// resulting commit plus every node the tree operation created. The journal
// cannot be used again afterward.
func (j *Journal) Commit(ctx context.Context) (*Commit, map[objectid.ID]struct{}, error) {
	if j.done {
		return nil, nil, newStatusError(StatusInternalIOError, "journal %s already finished", j.ID)
	}
	j.done = true

	edits := j.PendingEdits()
	if len(edits) == 0 {
		return NewCommit(time.Now().UnixNano(), j.baseRootID, j.baseCommits), map[objectid.ID]struct{}{}, nil
	}

	newRootID, newNodes, err := ApplyChanges(ctx, j.store, j.baseRootID, j.maxNodeSize, edits)
	if err != nil {
		return nil, nil, err
	}
	commit := NewCommit(time.Now().UnixNano(), newRootID, j.baseCommits)
	return commit, newNodes, nil
}

// Rollback discards every staged edit; the journal cannot be used again.
func (j *Journal) Rollback() {
	j.done = true
	j.edits = nil
}

// EncodeRecord serialises the journal's type, base commits/root and pending
// edits so it can be persisted before Commit runs (spec §4.5): if the
// process dies mid-commit, Init can find this record on restart and decide
// whether to replay or abandon it (see PageStorage.Init).
func (j *Journal) EncodeRecord() []byte {
	var buf bytes.Buffer
	_ = kv.WriteByte(&buf, byte(j.Type))
	buf.Write(j.baseRootID.Bytes())
	_ = kv.WriteByte(&buf, byte(len(j.baseCommits)))
	for _, c := range j.baseCommits {
		buf.Write(c.ID().Bytes())
	}
	edits := j.PendingEdits()
	_ = kv.WriteUint32(&buf, uint32(len(edits)))
	for _, e := range edits {
		_ = kv.WriteBytes16(&buf, e.Entry.Key)
		buf.Write(e.Entry.ValueID.Bytes())
		_ = kv.WriteByte(&buf, byte(e.Entry.Priority))
		deleted := byte(0)
		if e.Deleted {
			deleted = 1
		}
		_ = kv.WriteByte(&buf, deleted)
	}
	return buf.Bytes()
}

// DecodeJournalRecord reverses EncodeRecord, resolving each base commit id
// back into a *Commit via lookup.
func DecodeJournalRecord(data []byte, lookupCommit func(objectid.ID) (*Commit, error)) (typ JournalType, baseCommits []*Commit, baseRootID objectid.ID, edits []EntryChange, err error) {
	r := bytes.NewReader(data)

	tb, err := kv.ReadByte(r)
	if err != nil {
		return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: type")
	}
	typ = JournalType(tb)

	var rootBytes [objectid.Size]byte
	if _, err := io.ReadFull(r, rootBytes[:]); err != nil {
		return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: root")
	}
	baseRootID, _ = objectid.FromBytes(rootBytes[:])

	parentCount, err := kv.ReadByte(r)
	if err != nil {
		return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: parent count")
	}
	for i := byte(0); i < parentCount; i++ {
		var raw [objectid.Size]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: parent %d", i)
		}
		id, _ := objectid.FromBytes(raw[:])
		c, err := lookupCommit(id)
		if err != nil {
			return 0, nil, objectid.Empty, nil, err
		}
		baseCommits = append(baseCommits, c)
	}

	count, err := kv.ReadUint32(r)
	if err != nil {
		return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: edit count")
	}
	for i := uint32(0); i < count; i++ {
		key, err := kv.ReadBytes16(r)
		if err != nil {
			return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: edit %d key", i)
		}
		var valueRaw [objectid.Size]byte
		if _, err := io.ReadFull(r, valueRaw[:]); err != nil {
			return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: edit %d value", i)
		}
		valueID, _ := objectid.FromBytes(valueRaw[:])
		priority, err := kv.ReadByte(r)
		if err != nil {
			return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: edit %d priority", i)
		}
		deletedByte, err := kv.ReadByte(r)
		if err != nil {
			return 0, nil, objectid.Empty, nil, wrapStatusError(StatusFormatError, err, "decode journal record: edit %d deleted flag", i)
		}
		edits = append(edits, EntryChange{
			Entry:   Entry{Key: key, ValueID: valueID, Priority: Priority(priority)},
			Deleted: deletedByte != 0,
		})
	}
	return typ, baseCommits, baseRootID, edits, nil
}
