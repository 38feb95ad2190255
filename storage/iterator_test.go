package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForEachEntryOrdersAcrossSplitNodes(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	rootID := emptyRoot(t, ctx, store)

	var changes []EntryChange
	for i := 0; i < 11; i++ {
		changes = append(changes, changeFor(i))
	}
	rootID, _, err := ApplyChanges(ctx, store, rootID, 4, changes)
	require.NoError(t, err)

	var got []Entry
	err = ForEachEntry(ctx, store, rootID, nil, func(e Entry) bool {
		got = append(got, e)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 11)
	for i, e := range got {
		require.Equal(t, changes[i].Entry, e)
	}
}

func TestForEachEntryFromStart(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	rootID := emptyRoot(t, ctx, store)

	var changes []EntryChange
	for i := 0; i < 11; i++ {
		changes = append(changes, changeFor(i))
	}
	rootID, _, err := ApplyChanges(ctx, store, rootID, 4, changes)
	require.NoError(t, err)

	var got []string
	err = ForEachEntry(ctx, store, rootID, []byte("key05"), func(e Entry) bool {
		got = append(got, string(e.Key))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"key05", "key06", "key07", "key08", "key09", "key10"}, got)
}

func TestForEachEntryStopsEarly(t *testing.T) {
	ctx := context.Background()
	store := newMemNodeStore()
	rootID := emptyRoot(t, ctx, store)

	var changes []EntryChange
	for i := 0; i < 11; i++ {
		changes = append(changes, changeFor(i))
	}
	rootID, _, err := ApplyChanges(ctx, store, rootID, 4, changes)
	require.NoError(t, err)

	count := 0
	err = ForEachEntry(ctx, store, rootID, nil, func(Entry) bool {
		count++
		return count < 3
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}
