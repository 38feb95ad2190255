package storage

import (
	"encoding/binary"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

// Metadata partition prefixes (spec §4.6): one physical OrderedStore is
// carved into independent namespaces the way the teacher's trie splits its
// node and value partitions (kv/partition.go).
const (
	partHeads           byte = 'H' // current head commit ids
	partCommits         byte = 'C' // commit id -> canonical commit bytes
	partUnsynced        byte = 'U' // commit ids not yet acknowledged by sync
	partJournal         byte = 'J' // journal id -> journal record bytes
	partSyncMeta        byte = 'S' // opaque sync-delegate bookkeeping
	partConfig          byte = 'N' // engine configuration (node size, ...)
	partUntracked       byte = 'X' // objects written locally but not yet reachable from a commit
	partUnsyncedObjects byte = 'O' // object ids not yet acknowledged by sync, distinct from partUnsynced's commit-level set
)

var nodeSizeKey = []byte("node_size")

// placeholder is the value stored for set-membership partitions (heads,
// unsynced commits) where only the key's presence matters.
var placeholder = []byte{1}

// Metadata is the page's durable bookkeeping map: heads, commit bytes, the
// unsynced-commit set, journal records, sync-delegate metadata, and the
// configured node size, all addressed through one partitioned OrderedStore
// (spec §4.6).
type Metadata struct {
	store           kv.OrderedStore
	heads           *kv.TraversablePartition
	commits         *kv.TraversablePartition
	unsynced        *kv.TraversablePartition
	journal         *kv.TraversablePartition
	syncMeta        *kv.TraversablePartition
	config          *kv.TraversablePartition
	untracked       *kv.TraversablePartition
	unsyncedObjects *kv.TraversablePartition
}

// NewMetadata wraps store with the partitions the engine needs.
func NewMetadata(store kv.OrderedStore) *Metadata {
	return &Metadata{
		store:           store,
		heads:           kv.NewTraversablePartition(store, partHeads),
		commits:         kv.NewTraversablePartition(store, partCommits),
		unsynced:        kv.NewTraversablePartition(store, partUnsynced),
		journal:         kv.NewTraversablePartition(store, partJournal),
		syncMeta:        kv.NewTraversablePartition(store, partSyncMeta),
		config:          kv.NewTraversablePartition(store, partConfig),
		untracked:       kv.NewTraversablePartition(store, partUntracked),
		unsyncedObjects: kv.NewTraversablePartition(store, partUnsyncedObjects),
	}
}

// Batch is a multi-key atomic write grouping edits across partitions, used
// by every multi-step operation (AddCommitFromLocal, AddCommitsFromSync,
// journal Commit) that must not be observed half-applied (spec §4.4, §4.5).
type Batch struct {
	b  kv.BatchWriter
	md *Metadata
}

// NewBatch starts an atomic metadata batch.
func (m *Metadata) NewBatch() *Batch {
	return &Batch{b: m.store.NewBatch(), md: m}
}

// Commit applies every edit recorded in the batch atomically.
func (b *Batch) Commit() error {
	if err := b.b.Commit(); err != nil {
		return wrapStatusError(StatusIOError, err, "commit metadata batch")
	}
	return nil
}

func partitionedSet(w kv.Writer, prefix byte, key, value []byte) {
	kv.NewWriterPartition(w, prefix).Set(key, value)
}

// AddHead records id as a current head.
func (b *Batch) AddHead(id objectid.ID) { partitionedSet(b.b, partHeads, id.Bytes(), placeholder) }

// RemoveHead drops id from the head set (its children replace it).
func (b *Batch) RemoveHead(id objectid.ID) { partitionedSet(b.b, partHeads, id.Bytes(), nil) }

// PutCommit records a commit's canonical bytes under its id.
func (b *Batch) PutCommit(c *Commit) {
	partitionedSet(b.b, partCommits, c.ID().Bytes(), c.StorageBytes())
}

// MarkUnsynced records that a locally created commit has not yet been
// acknowledged by the sync delegate.
func (b *Batch) MarkUnsynced(id objectid.ID) {
	partitionedSet(b.b, partUnsynced, id.Bytes(), placeholder)
}

// MarkSynced drops a commit from the unsynced set.
func (b *Batch) MarkSynced(id objectid.ID) { partitionedSet(b.b, partUnsynced, id.Bytes(), nil) }

// PutJournalRecord stores the encoded state of a journal.
func (b *Batch) PutJournalRecord(journalID string, data []byte) {
	partitionedSet(b.b, partJournal, []byte(journalID), data)
}

// DeleteJournalRecord drops a journal's persisted state (commit or rollback).
func (b *Batch) DeleteJournalRecord(journalID string) {
	partitionedSet(b.b, partJournal, []byte(journalID), nil)
}

// SetSyncMetadata stores an opaque value under key for the sync delegate.
func (b *Batch) SetSyncMetadata(key string, value []byte) {
	partitionedSet(b.b, partSyncMeta, []byte(key), value)
}

// MarkUntracked records that id was written to the object store but is not
// yet known to be reachable from any commit (spec §4.1's untracked-object
// bookkeeping): an object in this state can be garbage collected if the
// process dies before the commit that references it lands.
func (b *Batch) MarkUntracked(id objectid.ID) {
	partitionedSet(b.b, partUntracked, id.Bytes(), placeholder)
}

// MarkTracked drops id from the untracked set once a commit referencing it
// is durable.
func (b *Batch) MarkTracked(id objectid.ID) {
	partitionedSet(b.b, partUntracked, id.Bytes(), nil)
}

// MarkObjectUnsynced records that an object has not yet been acknowledged
// by the sync delegate. Distinct from MarkUnsynced, which tracks commits:
// spec §6 keeps the object-level and commit-level sync sets as separate
// concepts (get_unsynced_object_ids(commit) vs. get_unsynced_commits()).
func (b *Batch) MarkObjectUnsynced(id objectid.ID) {
	partitionedSet(b.b, partUnsyncedObjects, id.Bytes(), placeholder)
}

// MarkObjectSynced drops id from the unsynced-objects set.
func (b *Batch) MarkObjectSynced(id objectid.ID) {
	partitionedSet(b.b, partUnsyncedObjects, id.Bytes(), nil)
}

// SetNodeSize persists the configured maximum entries per tree node.
func (b *Batch) SetNodeSize(size uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], size)
	partitionedSet(b.b, partConfig, nodeSizeKey, buf[:])
}

// GetHeads returns every current head commit id.
func (m *Metadata) GetHeads() []objectid.ID {
	var out []objectid.ID
	m.heads.Iterator(nil).Iterate(func(k, _ []byte) bool {
		id, err := objectid.FromBytes(k)
		if err == nil {
			out = append(out, id)
		}
		return true
	})
	return out
}

// GetCommitBytes returns the canonical bytes stored for id, or nil if absent.
func (m *Metadata) GetCommitBytes(id objectid.ID) []byte {
	return m.commits.Get(id.Bytes())
}

// GetUnsyncedCommitIDs returns every commit id still pending acknowledgment.
func (m *Metadata) GetUnsyncedCommitIDs() []objectid.ID {
	var out []objectid.ID
	m.unsynced.Iterator(nil).Iterate(func(k, _ []byte) bool {
		id, err := objectid.FromBytes(k)
		if err == nil {
			out = append(out, id)
		}
		return true
	})
	return out
}

// GetJournalRecord returns a journal's persisted state, or nil if absent.
func (m *Metadata) GetJournalRecord(journalID string) []byte {
	return m.journal.Get([]byte(journalID))
}

// ForEachJournalRecord enumerates every persisted journal (used to replay
// implicit journals on Init, spec §4.5).
func (m *Metadata) ForEachJournalRecord(fn func(journalID string, data []byte) bool) {
	m.journal.Iterator(nil).Iterate(func(k, v []byte) bool {
		return fn(string(k), v)
	})
}

// GetSyncMetadata returns an opaque sync-delegate value, or nil if unset.
func (m *Metadata) GetSyncMetadata(key string) []byte {
	return m.syncMeta.Get([]byte(key))
}

// IsUntracked reports whether id was written locally but has not yet been
// marked as reachable from a commit.
func (m *Metadata) IsUntracked(id objectid.ID) bool {
	return m.untracked.Has(id.Bytes())
}

// IsObjectUnsynced reports whether id is still pending acknowledgment from
// the sync delegate.
func (m *Metadata) IsObjectUnsynced(id objectid.ID) bool {
	return m.unsyncedObjects.Has(id.Bytes())
}

// GetNodeSize returns the configured node size and whether it was ever set.
func (m *Metadata) GetNodeSize() (uint32, bool) {
	v := m.config.Get(nodeSizeKey)
	if v == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v), true
}
