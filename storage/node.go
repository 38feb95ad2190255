package storage

import (
	"bytes"
	"context"
	"sort"

	"github.com/kvledger/pagestore/internal/assert"
	"github.com/kvledger/pagestore/objectid"
)

// Node is the in-memory view of a single B-tree node: an ordered sequence of
// entries and one more child id than entries (spec §3). A node's id is the
// content-address digest of its canonical encoding (encoding.go).
type Node struct {
	id       objectid.ID
	entries  []Entry
	children []objectid.ID
}

// NodeFromID loads and decodes the node stored under id.
func NodeFromID(ctx context.Context, store NodeStore, id objectid.ID) (*Node, error) {
	data, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, children, err := decodeNode(data)
	if err != nil {
		return nil, err
	}
	return &Node{id: id, entries: entries, children: children}, nil
}

// NodeFromEntries serialises entries/children and persists the result,
// returning its content-address id. len(children) must equal len(entries)+1.
func NodeFromEntries(ctx context.Context, store NodeStore, entries []Entry, children []objectid.ID) (objectid.ID, error) {
	assert.Assertf(len(children) == len(entries)+1, "NodeFromEntries: len(children)=%d, len(entries)+1=%d", len(children), len(entries)+1)
	return store.Put(ctx, encodeNode(entries, children))
}

// ID returns the node's content-address id.
func (n *Node) ID() objectid.ID { return n.id }

// EntryCount returns the number of entries (one less than the child count).
func (n *Node) EntryCount() int { return len(n.entries) }

// Entry returns the entry at index i.
func (n *Node) Entry(i int) Entry { return n.entries[i] }

// Entries returns the node's entries; callers must not mutate the result.
func (n *Node) Entries() []Entry { return n.entries }

// ChildID returns the child id at index i (0..EntryCount()). A zero
// (objectid.Empty) id denotes an absent child.
func (n *Node) ChildID(i int) objectid.ID { return n.children[i] }

// Children returns the node's child ids; callers must not mutate the result.
func (n *Node) Children() []objectid.ID { return n.children }

// FindKeyOrChild binary-searches for key among the node's entries (spec
// §4.2). found==true means entries[index].Key == key; found==false means
// index is both the insertion point and the child index to descend into.
func (n *Node) FindKeyOrChild(key []byte) (index int, found bool) {
	i := sort.Search(len(n.entries), func(i int) bool {
		return bytes.Compare(n.entries[i].Key, key) >= 0
	})
	if i < len(n.entries) && bytes.Equal(n.entries[i].Key, key) {
		return i, true
	}
	return i, false
}

// Split partitions the node's entries around index: everything before index
// goes to the left node (whose rightmost child becomes leftRightmostChild),
// everything after index to the right node (whose leftmost child
// becomes rightLeftmostChild). The pivot entry at index is not stored in
// either half; it is the caller's responsibility to promote it.
func (n *Node) Split(ctx context.Context, store NodeStore, index int, leftRightmostChild, rightLeftmostChild objectid.ID) (leftID, rightID objectid.ID, err error) {
	assert.Assertf(index >= 0 && index < n.EntryCount(), "Split: index %d out of range [0,%d)", index, n.EntryCount())

	leftEntries := append([]Entry{}, n.entries[:index]...)
	leftChildren := append([]objectid.ID{}, n.children[:index]...)
	leftChildren = append(leftChildren, leftRightmostChild)
	leftID, err = NodeFromEntries(ctx, store, leftEntries, leftChildren)
	if err != nil {
		return objectid.Empty, objectid.Empty, err
	}

	rightEntries := append([]Entry{}, n.entries[index+1:]...)
	rightChildren := append([]objectid.ID{rightLeftmostChild}, n.children[index+2:]...)
	rightID, err = NodeFromEntries(ctx, store, rightEntries, rightChildren)
	if err != nil {
		return objectid.Empty, objectid.Empty, err
	}
	return leftID, rightID, nil
}

// Updater is returned by Mutation.FinishSplit when a split did not reach the
// root: applying it to the parent's own in-progress Mutation replaces the
// single child that was split with the new sibling chain plus their
// promoted pivots (spec §4.2's "the split propagates a pivot upward").
type Updater func(parent *Mutation)

// Mutation incrementally rebuilds a node's (entries, children) pair by
// replaying the original node's content interleaved with edits, in strictly
// ascending key order (spec §4.2). It is built by StartMutation and
// consumed by Finish or FinishSplit.
//
// Grounded on tree_node.cc's Mutation: CopyUntil walks the source node
// forward, copying anything up to (but not including) a bound key; each
// Add/Update/Remove/UpdateChildID call first calls CopyUntil to catch the
// mutation up to its own key, then performs its own edit.
type Mutation struct {
	node      *Node
	entries   []Entry
	children  []objectid.ID
	nodeIndex int
}

// StartMutation begins building a replacement for n.
func (n *Node) StartMutation() *Mutation {
	return &Mutation{node: n}
}

// copyUntil copies entries/children from the source node up to the first
// entry whose key is >= key (or to the end, if key is nil).
func (m *Mutation) copyUntil(key []byte) {
	for m.nodeIndex < m.node.EntryCount() {
		e := m.node.entries[m.nodeIndex]
		if key != nil && bytes.Compare(e.Key, key) >= 0 {
			break
		}
		m.entries = append(m.entries, e)
		if len(m.children) < len(m.entries) {
			m.children = append(m.children, m.node.children[m.nodeIndex])
		}
		m.nodeIndex++
	}
}

// AddEntry inserts a new entry between leftChild and rightChild. entry.Key
// must be strictly greater than every key added so far.
func (m *Mutation) AddEntry(entry Entry, leftChild, rightChild objectid.ID) *Mutation {
	m.copyUntil(entry.Key)
	assert.Assertf(len(m.entries) == 0 || bytes.Compare(m.entries[len(m.entries)-1].Key, entry.Key) < 0,
		"AddEntry: key %q out of order", entry.Key)
	m.entries = append(m.entries, entry)
	if len(m.children) < len(m.entries) {
		m.children = append(m.children, leftChild)
	} else {
		assert.Assertf(m.children[len(m.children)-1] == leftChild, "AddEntry: left child mismatch")
	}
	m.children = append(m.children, rightChild)
	return m
}

// UpdateEntry replaces an existing entry's value/priority in place, keeping
// its original flanking children.
func (m *Mutation) UpdateEntry(entry Entry) *Mutation {
	m.copyUntil(entry.Key)
	assert.Assertf(m.nodeIndex < m.node.EntryCount() && bytes.Equal(m.node.entries[m.nodeIndex].Key, entry.Key),
		"UpdateEntry: key %q not present", entry.Key)
	m.entries = append(m.entries, entry)
	if len(m.children) < len(m.entries) {
		m.children = append(m.children, m.node.children[m.nodeIndex])
	}
	m.nodeIndex++
	return m
}

// RemoveEntry drops the entry stored under key, replacing its two flanking
// children with the single childID the caller supplies. No merging happens
// here; ApplyChanges passes one of the two children (see boundaryChildID).
func (m *Mutation) RemoveEntry(key []byte, childID objectid.ID) *Mutation {
	m.copyUntil(key)
	assert.Assertf(m.nodeIndex < m.node.EntryCount() && bytes.Equal(m.node.entries[m.nodeIndex].Key, key),
		"RemoveEntry: key %q not present", key)
	if len(m.children) == len(m.entries) {
		m.children = append(m.children, childID)
	} else {
		assert.Assertf(m.children[len(m.children)-1] == childID, "RemoveEntry: child mismatch")
	}
	m.nodeIndex++
	return m
}

// UpdateChildID replaces the child id that falls just before keyAfter (or
// the final child, if keyAfter is nil) without touching any entry.
func (m *Mutation) UpdateChildID(keyAfter []byte, childID objectid.ID) *Mutation {
	m.copyUntil(keyAfter)
	m.children = append(m.children, childID)
	return m
}

// finalize catches the mutation up to the end of the source node.
func (m *Mutation) finalize() {
	m.copyUntil(nil)
	if len(m.children) == len(m.entries) {
		m.children = append(m.children, m.node.children[m.nodeIndex])
	}
}

// Finish completes the mutation without splitting, persisting and returning
// the replacement node's id. Use FinishSplit when the result may exceed a
// node-size budget and need splitting.
func (m *Mutation) Finish(ctx context.Context, store NodeStore) (objectid.ID, error) {
	m.finalize()
	return NodeFromEntries(ctx, store, m.entries, m.children)
}

// FinishSplit completes the mutation, splitting the result into multiple
// nodes of at most maxSize entries each if it grew too large (spec §4.2).
//
// When the result fits in one node: if isRoot, that node's id is the new
// root and hasNewRoot is true; otherwise an Updater is returned that, when
// applied to the parent's own Mutation, replaces this node's old child
// pointer (bounded by maxKey) with the new one.
//
// When the result needed splitting and isRoot is false: no new root is
// produced; the returned Updater replays every promoted pivot and its
// flanking new siblings into the parent's Mutation via AddEntry.
//
// When the result needed splitting and isRoot is true: a fresh root is
// built over the promoted pivots and the process recurses (a root can
// itself overflow and split again).
//
// Every node created along the way is recorded in newNodes, so callers can
// track which nodes the mutation produced (for reachability bookkeeping). A
// result identical to the source node is the source node itself and is not
// recorded.
func (m *Mutation) FinishSplit(ctx context.Context, store NodeStore, maxSize int, isRoot bool, maxKey []byte, newNodes map[objectid.ID]struct{}) (newRootID objectid.ID, hasNewRoot bool, updater Updater, err error) {
	m.finalize()

	if len(m.entries) <= maxSize {
		id, err := NodeFromEntries(ctx, store, m.entries, m.children)
		if err != nil {
			return objectid.Empty, false, nil, err
		}
		if id != m.node.id {
			newNodes[id] = struct{}{}
		}
		if isRoot {
			return id, true, nil, nil
		}
		return objectid.Empty, false, func(parent *Mutation) {
			parent.UpdateChildID(maxKey, id)
		}, nil
	}

	entries := m.entries
	children := m.children
	newNodeCount := 1 + len(entries)/(maxSize+1)
	elementsPerNode := 1 + (len(entries)-newNodeCount)/newNodeCount

	newEntries := make([]Entry, 0, newNodeCount-1)
	newChildren := make([]objectid.ID, 0, newNodeCount)
	for i := 0; i < newNodeCount; i++ {
		n := elementsPerNode
		if n > len(entries) {
			n = len(entries)
		}
		part, rest := entries[:n], entries[n:]
		partChildren, restChildren := children[:n+1], children[n+1:]
		entries, children = rest, restChildren

		id, err := NodeFromEntries(ctx, store, part, partChildren)
		if err != nil {
			return objectid.Empty, false, nil, err
		}
		newNodes[id] = struct{}{}
		newChildren = append(newChildren, id)

		if len(entries) != 0 {
			newEntries = append(newEntries, entries[0])
			entries = entries[1:]
		}
	}
	assert.Assertf(len(entries) == 0, "FinishSplit: %d entries left unassigned", len(entries))

	if !isRoot {
		return objectid.Empty, false, func(parent *Mutation) {
			for i := range newEntries {
				parent.AddEntry(newEntries[i], newChildren[i], newChildren[i+1])
			}
		}, nil
	}

	emptyRootID, err := NodeFromEntries(ctx, store, nil, []objectid.ID{objectid.Empty})
	if err != nil {
		return objectid.Empty, false, nil, err
	}
	emptyRoot, err := NodeFromID(ctx, store, emptyRootID)
	if err != nil {
		return objectid.Empty, false, nil, err
	}
	rootMutation := emptyRoot.StartMutation()
	for i := range newEntries {
		rootMutation.AddEntry(newEntries[i], newChildren[i], newChildren[i+1])
	}
	return rootMutation.FinishSplit(ctx, store, maxSize, true, maxKey, newNodes)
}
