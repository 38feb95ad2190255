package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

func TestMetadataHeadsAddRemove(t *testing.T) {
	md := NewMetadata(kv.NewMemStore())

	h1 := objectid.Of([]byte("h1"))
	h2 := objectid.Of([]byte("h2"))

	b := md.NewBatch()
	b.AddHead(h1)
	b.AddHead(h2)
	require.NoError(t, b.Commit())

	require.ElementsMatch(t, []objectid.ID{h1, h2}, md.GetHeads())

	b = md.NewBatch()
	b.RemoveHead(h1)
	require.NoError(t, b.Commit())

	require.Equal(t, []objectid.ID{h2}, md.GetHeads())
}

func TestMetadataCommitBytesAndUnsynced(t *testing.T) {
	md := NewMetadata(kv.NewMemStore())
	c := NewCommit(1, objectid.Of([]byte("root")), nil)

	b := md.NewBatch()
	b.PutCommit(c)
	b.MarkUnsynced(c.ID())
	require.NoError(t, b.Commit())

	require.Equal(t, c.StorageBytes(), md.GetCommitBytes(c.ID()))
	require.Equal(t, []objectid.ID{c.ID()}, md.GetUnsyncedCommitIDs())

	b = md.NewBatch()
	b.MarkSynced(c.ID())
	require.NoError(t, b.Commit())
	require.Empty(t, md.GetUnsyncedCommitIDs())
}

func TestMetadataUnsyncedObjects(t *testing.T) {
	md := NewMetadata(kv.NewMemStore())
	id := objectid.Of([]byte("obj"))

	require.False(t, md.IsObjectUnsynced(id))

	b := md.NewBatch()
	b.MarkObjectUnsynced(id)
	require.NoError(t, b.Commit())
	require.True(t, md.IsObjectUnsynced(id))

	b = md.NewBatch()
	b.MarkObjectSynced(id)
	require.NoError(t, b.Commit())
	require.False(t, md.IsObjectUnsynced(id))
}

func TestMetadataNodeSize(t *testing.T) {
	md := NewMetadata(kv.NewMemStore())

	_, ok := md.GetNodeSize()
	require.False(t, ok)

	b := md.NewBatch()
	b.SetNodeSize(256)
	require.NoError(t, b.Commit())

	size, ok := md.GetNodeSize()
	require.True(t, ok)
	require.Equal(t, uint32(256), size)
}

func TestMetadataJournalRecords(t *testing.T) {
	md := NewMetadata(kv.NewMemStore())

	b := md.NewBatch()
	b.PutJournalRecord("j1", []byte("state-1"))
	b.PutJournalRecord("j2", []byte("state-2"))
	require.NoError(t, b.Commit())

	seen := map[string][]byte{}
	md.ForEachJournalRecord(func(id string, data []byte) bool {
		seen[id] = data
		return true
	})
	require.Equal(t, map[string][]byte{"j1": []byte("state-1"), "j2": []byte("state-2")}, seen)

	b = md.NewBatch()
	b.DeleteJournalRecord("j1")
	require.NoError(t, b.Commit())
	require.Nil(t, md.GetJournalRecord("j1"))
	require.Equal(t, []byte("state-2"), md.GetJournalRecord("j2"))
}
