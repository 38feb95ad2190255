package storage

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvledger/pagestore/objectid"
)

func TestObjectStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	id, err := store.Put(ctx, []byte("hello world"))
	require.NoError(t, err)
	require.True(t, store.Exists(id))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestObjectStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, objectid.Of([]byte("never written")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestObjectStorePutStream(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	data := bytes.Repeat([]byte("x"), 4096)
	id, err := store.PutStream(ctx, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestObjectStorePutStreamRejectsSizeMismatch(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutStream(ctx, bytes.NewReader([]byte("short")), 100)
	require.ErrorIs(t, err, ErrIOError)
}

func TestObjectStoreConcurrentPutsOfSameContentCoalesce(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("same content, many writers")
	const writers = 8
	ids := make([]objectid.ID, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := store.Put(ctx, data)
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}
