package storage

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvledger/pagestore/objectid"
)

func buildTree(t *testing.T, ctx context.Context, store NodeStore, keys []int) objectid.ID {
	t.Helper()
	root := emptyRoot(t, ctx, store)
	var changes []EntryChange
	for _, k := range keys {
		changes = append(changes, changeFor(k))
	}
	newRoot, _, err := ApplyChanges(ctx, store, root, 4, changes)
	require.NoError(t, err)
	return newRoot
}

func sortedChanges(changes []EntryChange) []EntryChange {
	out := append([]EntryChange{}, changes...)
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Entry.Key, out[j].Entry.Key) < 0
	})
	return out
}

func TestForEachDiffIdenticalTrees(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	root := buildTree(t, ctx, store, []int{0, 1, 2, 3, 4})

	var changes []EntryChange
	err := ForEachDiff(ctx, store, root, root, func(c EntryChange) bool {
		changes = append(changes, c)
		return true
	})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestForEachDiffAddsRemovesAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	base := buildTree(t, ctx, store, []int{0, 1, 2, 3, 4})

	// other: drop key01, add key05, change key02's value.
	root := emptyRoot(t, ctx, store)
	var changes []EntryChange
	for _, i := range []int{0, 3, 4, 5} {
		changes = append(changes, changeFor(i))
	}
	updated := entry("key02", 0xFF)
	changes = append(changes, EntryChange{Entry: updated})
	other, _, err := ApplyChanges(ctx, store, root, 4, sortedChanges(changes))
	require.NoError(t, err)

	var diffs []EntryChange
	err = ForEachDiff(ctx, store, base, other, func(c EntryChange) bool {
		diffs = append(diffs, c)
		return true
	})
	require.NoError(t, err)

	byKey := map[string]EntryChange{}
	for _, d := range diffs {
		byKey[string(d.Entry.Key)] = d
	}
	require.True(t, byKey["key01"].Deleted)
	require.False(t, byKey["key05"].Deleted)
	require.False(t, byKey["key02"].Deleted)
	require.Equal(t, updated.ValueID, byKey["key02"].Entry.ValueID)
	require.NotContains(t, byKey, "key00")
	require.NotContains(t, byKey, "key03")
	require.NotContains(t, byKey, "key04")
}
