package storage

import (
	"bytes"
	"context"

	"github.com/kvledger/pagestore/objectid"
)

// frame is one level of descent while walking a tree in key order: node is
// the node at this level, and index is the entry about to be visited next
// (index-1's child has already been fully walked).
type frame struct {
	node  *Node
	index int
}

// Iterator walks a tree's entries in ascending key order (spec §4.3.2),
// descending into child subtrees exactly when they hold keys still ahead of
// the cursor.
type Iterator struct {
	ctx   context.Context
	store NodeStore
	stack []frame
	cur   Entry
	valid bool
	err   error
}

// NewIterator starts a full in-order walk of the tree rooted at rootID.
func NewIterator(ctx context.Context, store NodeStore, rootID objectid.ID) (*Iterator, error) {
	it := &Iterator{ctx: ctx, store: store}
	if err := it.descend(rootID); err != nil {
		return nil, err
	}
	it.advance()
	return it, nil
}

// Find starts a walk positioned at the first entry whose key is >= key.
func Find(ctx context.Context, store NodeStore, rootID objectid.ID, key []byte) (*Iterator, error) {
	it := &Iterator{ctx: ctx, store: store}
	if err := it.descendToKey(rootID, key); err != nil {
		return nil, err
	}
	it.advance()
	return it, nil
}

func (it *Iterator) descend(id objectid.ID) error {
	if id.IsEmpty() {
		return nil
	}
	n, err := NodeFromID(it.ctx, it.store, id)
	if err != nil {
		return err
	}
	it.stack = append(it.stack, frame{node: n, index: 0})
	return it.descend(n.ChildID(0))
}

// descendToKey descends toward key, pushing frames only for the path that
// can still contain entries >= key (skipping subtrees entirely below it).
func (it *Iterator) descendToKey(id objectid.ID, key []byte) error {
	if id.IsEmpty() {
		return nil
	}
	n, err := NodeFromID(it.ctx, it.store, id)
	if err != nil {
		return err
	}
	idx, found := n.FindKeyOrChild(key)
	it.stack = append(it.stack, frame{node: n, index: idx})
	if found {
		return nil
	}
	return it.descendToKey(n.ChildID(idx), key)
}

// advance pops the top frame's current entry into cur, then pushes the
// frame for its right child so the next advance continues in order.
func (it *Iterator) advance() {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.index >= top.node.EntryCount() {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		it.cur = top.node.Entry(top.index)
		child := top.node.ChildID(top.index + 1)
		top.index++
		if err := it.descend(child); err != nil {
			it.err = err
			it.valid = false
			return
		}
		it.valid = true
		return
	}
	it.valid = false
}

// Valid reports whether Entry() holds a usable value.
func (it *Iterator) Valid() bool { return it.valid }

// Err returns the first error encountered while walking, if any.
func (it *Iterator) Err() error { return it.err }

// Entry returns the entry the iterator currently points at.
func (it *Iterator) Entry() Entry { return it.cur }

// Next advances to the following entry in key order.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	it.advance()
}

// ForEachEntry walks every entry from the first key >= start (or the very
// first entry, if start is nil) in ascending order, calling fn until it
// returns false or the tree is exhausted (spec §4.3.2).
func ForEachEntry(ctx context.Context, store NodeStore, rootID objectid.ID, start []byte, fn func(Entry) bool) error {
	var it *Iterator
	var err error
	if start == nil {
		it, err = NewIterator(ctx, store, rootID)
	} else {
		it, err = Find(ctx, store, rootID, start)
	}
	if err != nil {
		return err
	}
	for it.Valid() {
		if !fn(it.Entry()) {
			break
		}
		it.Next()
	}
	return it.Err()
}

// CompareKeys exposes the ordering ForEachDiff/Iterator rely on so callers
// comparing keys from elsewhere get the same semantics.
func CompareKeys(a, b []byte) int { return bytes.Compare(a, b) }
