package storage

import (
	"bytes"
	"context"

	"github.com/kvledger/pagestore/objectid"
)

// ForEachDiff walks baseRootID and otherRootID in lockstep key order and
// reports the edits that turn base into other (spec §4.3.3): a deletion for
// every key only in base, an upsert for every key only in other or whose
// value/priority changed, and nothing for keys that carry through unchanged.
//
// Identical root ids short-circuit immediately, the cheap case of the
// sibling-short-circuit the teacher's patricia-trie proof walk uses for
// subtrees that didn't change; a full structural id-equality skip for
// interior subtrees is a further optimization left for later (see
// DESIGN.md).
func ForEachDiff(ctx context.Context, store NodeStore, baseRootID, otherRootID objectid.ID, fn func(EntryChange) bool) error {
	if baseRootID == otherRootID {
		return nil
	}

	base, err := NewIterator(ctx, store, baseRootID)
	if err != nil {
		return err
	}
	other, err := NewIterator(ctx, store, otherRootID)
	if err != nil {
		return err
	}

	for base.Valid() || other.Valid() {
		switch {
		case !base.Valid():
			if !fn(EntryChange{Entry: other.Entry()}) {
				return other.Err()
			}
			other.Next()
		case !other.Valid():
			if !fn(EntryChange{Entry: base.Entry(), Deleted: true}) {
				return base.Err()
			}
			base.Next()
		default:
			a, b := base.Entry(), other.Entry()
			switch cmp := bytes.Compare(a.Key, b.Key); {
			case cmp < 0:
				if !fn(EntryChange{Entry: a, Deleted: true}) {
					return nil
				}
				base.Next()
			case cmp > 0:
				if !fn(EntryChange{Entry: b}) {
					return nil
				}
				other.Next()
			default:
				if a.ValueID != b.ValueID || a.Priority != b.Priority {
					if !fn(EntryChange{Entry: b}) {
						return nil
					}
				}
				base.Next()
				other.Next()
			}
		}
	}
	if err := base.Err(); err != nil {
		return err
	}
	return other.Err()
}
