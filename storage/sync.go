package storage

import (
	"context"

	"github.com/kvledger/pagestore/objectid"
)

// SyncDelegate is how PageStorage reaches out to the network layer when it
// needs an object it doesn't have locally (spec §5): page_sync_delegate.h's
// GetObject, collapsed from its status/size/socket callback triple into a
// single blocking call returning the bytes or an error.
type SyncDelegate interface {
	GetObject(ctx context.Context, id objectid.ID) ([]byte, error)
}

// Watcher is notified every time a new commit lands, whether created
// locally or received from sync (spec §4.4's commit watchers).
type Watcher interface {
	OnNewCommit(c *Commit, fromSync bool)
}

// WatcherFunc adapts a plain function to the Watcher interface.
type WatcherFunc func(c *Commit, fromSync bool)

func (f WatcherFunc) OnNewCommit(c *Commit, fromSync bool) { f(c, fromSync) }
