package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvledger/pagestore/objectid"
)

// memNodeStore is the simplest possible NodeStore: content-addressed bytes
// kept in a map, used so node/tree tests don't need a real object store.
type memNodeStore struct {
	data map[objectid.ID][]byte
}

func newMemNodeStore() *memNodeStore {
	return &memNodeStore{data: map[objectid.ID][]byte{}}
}

func (s *memNodeStore) Get(_ context.Context, id objectid.ID) ([]byte, error) {
	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, nil
}

func (s *memNodeStore) Put(_ context.Context, data []byte) (objectid.ID, error) {
	id := objectid.Of(data)
	s.data[id] = data
	return id, nil
}

func entry(key string, v byte) Entry {
	var id objectid.ID
	id[0] = v
	return Entry{Key: []byte(key), ValueID: id, Priority: PriorityEager}
}

func leaf(n int) []objectid.ID {
	return make([]objectid.ID, n)
}

func TestNodeFromEntriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()

	entries := []Entry{entry("a", 1), entry("b", 2), entry("c", 3)}
	id, err := NodeFromEntries(ctx, store, entries, leaf(4))
	require.NoError(t, err)

	n, err := NodeFromID(ctx, store, id)
	require.NoError(t, err)
	require.Equal(t, entries, n.Entries())
	require.Equal(t, 3, n.EntryCount())
}

func TestNodeFindKeyOrChild(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	entries := []Entry{entry("b", 1), entry("d", 2), entry("f", 3)}
	id, err := NodeFromEntries(ctx, store, entries, leaf(4))
	require.NoError(t, err)
	n, err := NodeFromID(ctx, store, id)
	require.NoError(t, err)

	idx, found := n.FindKeyOrChild([]byte("d"))
	require.True(t, found)
	require.Equal(t, 1, idx)

	idx, found = n.FindKeyOrChild([]byte("c"))
	require.False(t, found)
	require.Equal(t, 1, idx)

	idx, found = n.FindKeyOrChild([]byte("z"))
	require.False(t, found)
	require.Equal(t, 3, idx)

	idx, found = n.FindKeyOrChild([]byte("a"))
	require.False(t, found)
	require.Equal(t, 0, idx)
}

func TestNodeSplit(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	entries := []Entry{entry("a", 1), entry("b", 2), entry("c", 3), entry("d", 4), entry("e", 5)}
	id, err := NodeFromEntries(ctx, store, entries, leaf(6))
	require.NoError(t, err)
	n, err := NodeFromID(ctx, store, id)
	require.NoError(t, err)

	var leftRightmost, rightLeftmost objectid.ID
	leftRightmost[0] = 0xAA
	rightLeftmost[0] = 0xBB

	leftID, rightID, err := n.Split(ctx, store, 2, leftRightmost, rightLeftmost)
	require.NoError(t, err)

	left, err := NodeFromID(ctx, store, leftID)
	require.NoError(t, err)
	require.Equal(t, []Entry{entry("a", 1), entry("b", 2)}, left.Entries())
	require.Equal(t, leftRightmost, left.ChildID(2))

	right, err := NodeFromID(ctx, store, rightID)
	require.NoError(t, err)
	require.Equal(t, []Entry{entry("d", 4), entry("e", 5)}, right.Entries())
	require.Equal(t, rightLeftmost, right.ChildID(0))
}

func TestMutationAddEntryNoSplit(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	id, err := NodeFromEntries(ctx, store, []Entry{entry("b", 1), entry("d", 2)}, leaf(3))
	require.NoError(t, err)
	n, err := NodeFromID(ctx, store, id)
	require.NoError(t, err)

	newID, hasNewRoot, updater, err := n.StartMutation().
		AddEntry(entry("c", 9), n.ChildID(1), objectid.Empty).
		FinishSplit(ctx, store, 10, true, nil, map[objectid.ID]struct{}{})
	require.NoError(t, err)
	require.True(t, hasNewRoot)
	require.Nil(t, updater)

	result, err := NodeFromID(ctx, store, newID)
	require.NoError(t, err)
	require.Equal(t, []Entry{entry("b", 1), entry("c", 9), entry("d", 2)}, result.Entries())
}

func TestMutationRemoveEntry(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	id, err := NodeFromEntries(ctx, store, []Entry{entry("b", 1), entry("d", 2), entry("f", 3)}, leaf(4))
	require.NoError(t, err)
	n, err := NodeFromID(ctx, store, id)
	require.NoError(t, err)

	newID, hasNewRoot, _, err := n.StartMutation().
		RemoveEntry([]byte("d"), objectid.Empty).
		FinishSplit(ctx, store, 10, true, nil, map[objectid.ID]struct{}{})
	require.NoError(t, err)
	require.True(t, hasNewRoot)

	result, err := NodeFromID(ctx, store, newID)
	require.NoError(t, err)
	require.Equal(t, []Entry{entry("b", 1), entry("f", 3)}, result.Entries())
}

func TestMutationFinishSplitOverflow(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	empty, err := NodeFromEntries(ctx, store, nil, []objectid.ID{objectid.Empty})
	require.NoError(t, err)
	n, err := NodeFromID(ctx, store, empty)
	require.NoError(t, err)

	m := n.StartMutation()
	var prev objectid.ID
	keys := []string{"a", "b", "c", "d", "e"}
	for i, k := range keys {
		right := objectid.ID{}
		right[0] = byte(i + 1)
		m.AddEntry(entry(k, byte(i+1)), prev, right)
		prev = right
	}

	newNodes := map[objectid.ID]struct{}{}
	_, hasNewRoot, updater, err := m.FinishSplit(ctx, store, 2, false, []byte("z"), newNodes)
	require.NoError(t, err)
	require.False(t, hasNewRoot)
	require.NotNil(t, updater)
	require.True(t, len(newNodes) >= 2)

	parentEmpty, err := NodeFromEntries(ctx, store, nil, []objectid.ID{objectid.Empty})
	require.NoError(t, err)
	parentNode, err := NodeFromID(ctx, store, parentEmpty)
	require.NoError(t, err)
	parent := parentNode.StartMutation()
	updater(parent)

	rootID, hasNewRoot2, _, err := parent.FinishSplit(ctx, store, 10, true, nil, map[objectid.ID]struct{}{})
	require.NoError(t, err)
	require.True(t, hasNewRoot2)

	root, err := NodeFromID(ctx, store, rootID)
	require.NoError(t, err)
	require.True(t, root.EntryCount() >= 1)
}
