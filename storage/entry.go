package storage

import "github.com/kvledger/pagestore/objectid"

// Priority is a per-entry sync policy (spec §3): EAGER values are prefetched
// with their commit, LAZY values are fetched on demand.
type Priority byte

const (
	PriorityEager Priority = 0
	PriorityLazy  Priority = 1
)

func (p Priority) String() string {
	if p == PriorityLazy {
		return "LAZY"
	}
	return "EAGER"
}

// Entry is one (key, value-object-id, priority) tuple held by a tree node.
// Keys within a node are strictly ascending (spec §3).
type Entry struct {
	Key      []byte
	ValueID  objectid.ID
	Priority Priority
}

// Clone returns a deep copy of the entry (its Key slice is copied).
func (e Entry) Clone() Entry {
	k := make([]byte, len(e.Key))
	copy(k, e.Key)
	return Entry{Key: k, ValueID: e.ValueID, Priority: e.Priority}
}

// Equal reports whether two entries have the same key, value id and priority.
func (e Entry) Equal(o Entry) bool {
	return string(e.Key) == string(o.Key) && e.ValueID == o.ValueID && e.Priority == o.Priority
}

// EntryChange is one edit in a sorted change stream fed to ApplyChanges
// (spec §4.3.1): a put (Deleted == false) or a delete (Deleted == true).
type EntryChange struct {
	Entry   Entry
	Deleted bool
}
