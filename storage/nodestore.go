package storage

import (
	"context"

	"github.com/kvledger/pagestore/objectid"
)

// NodeStore is the minimal content-addressed contract the B-tree needs: read
// bytes back by their digest, and persist bytes, getting the digest back.
// PageStorage's ObjectStore (objectstore.go) satisfies this directly; the
// spec's distinction between "_sync" and asynchronous variants (§4.1, §5)
// collapses in Go to one blocking call, since goroutines make the
// single-threaded-executor-plus-IO-executor split the teacher's source used
// unnecessary (see DESIGN.md, "REDESIGN FLAGS").
type NodeStore interface {
	Get(ctx context.Context, id objectid.ID) ([]byte, error)
	Put(ctx context.Context, data []byte) (objectid.ID, error)
}
