package storage

import (
	"bytes"
	"context"

	"github.com/kvledger/pagestore/internal/assert"
	"github.com/kvledger/pagestore/objectid"
)

// ApplyChanges bulk-applies a sorted, deduplicated stream of edits to the
// tree rooted at rootID, returning the id of the resulting root and every
// node the operation created (spec §4.3.1). Callers (journal.go) are
// responsible for sorting changes by key first: the tree walk below is a
// single forward pass and assumes strictly ascending keys.
func ApplyChanges(ctx context.Context, store NodeStore, rootID objectid.ID, maxSize int, changes []EntryChange) (objectid.ID, map[objectid.ID]struct{}, error) {
	for i := 1; i < len(changes); i++ {
		assert.Assertf(bytes.Compare(changes[i-1].Entry.Key, changes[i].Entry.Key) < 0,
			"ApplyChanges: changes not strictly ascending at %d", i)
	}
	if len(changes) == 0 {
		return rootID, map[objectid.ID]struct{}{}, nil
	}

	root, err := NodeFromID(ctx, store, rootID)
	if err != nil {
		return objectid.Empty, nil, err
	}

	newNodes := map[objectid.ID]struct{}{}
	newRootID, hasNewRoot, _, err := applyChangesToNode(ctx, store, root, changes, maxSize, true, nil, newNodes)
	if err != nil {
		return objectid.Empty, nil, err
	}
	assert.Assertf(hasNewRoot, "ApplyChanges: root mutation did not produce a new root")
	return newRootID, newNodes, nil
}

// applyChangesToNode walks node's entries left to right against changes (all
// of which fall within node's key span), recursing into children for edits
// that belong to them and applying the rest directly, then finishes the
// resulting Mutation (splitting if it grew past maxSize).
func applyChangesToNode(ctx context.Context, store NodeStore, node *Node, changes []EntryChange, maxSize int, isRoot bool, boundKey []byte, newNodes map[objectid.ID]struct{}) (objectid.ID, bool, Updater, error) {
	m := node.StartMutation()

	i := 0
	for i < len(changes) {
		c := changes[i]
		idx, found := node.FindKeyOrChild(c.Entry.Key)

		if found {
			if c.Deleted {
				m.RemoveEntry(c.Entry.Key, boundaryChildID(node.ChildID(idx), node.ChildID(idx+1)))
			} else {
				m.UpdateEntry(c.Entry)
			}
			i++
			continue
		}

		childID := node.ChildID(idx)
		if childID.IsEmpty() {
			if c.Deleted {
				// Deleting a key that is not present is a no-op.
				i++
				continue
			}
			m.AddEntry(c.Entry, objectid.Empty, objectid.Empty)
			i++
			continue
		}

		var upperBound []byte
		if idx < node.EntryCount() {
			upperBound = node.Entry(idx).Key
		}
		j := i + 1
		for j < len(changes) {
			idx2, found2 := node.FindKeyOrChild(changes[j].Entry.Key)
			if found2 || idx2 != idx {
				break
			}
			j++
		}

		childNode, err := NodeFromID(ctx, store, childID)
		if err != nil {
			return objectid.Empty, false, nil, err
		}
		_, _, childUpdater, err := applyChangesToNode(ctx, store, childNode, changes[i:j], maxSize, false, upperBound, newNodes)
		if err != nil {
			return objectid.Empty, false, nil, err
		}
		if childUpdater != nil {
			childUpdater(m)
		}
		i = j
	}

	return m.FinishSplit(ctx, store, maxSize, isRoot, boundKey, newNodes)
}

// boundaryChildID picks the single child pointer RemoveEntry needs to fill
// the gap left by a deleted entry. The source does not merge the flanking
// subtrees on delete (spec §9 is explicit about this), so the left child
// simply becomes the new boundary; if it's empty (a leaf), the right child
// takes its place.
func boundaryChildID(leftID, rightID objectid.ID) objectid.ID {
	if !leftID.IsEmpty() {
		return leftID
	}
	return rightID
}
