// Package kv defines the generic key/value storage abstraction that backs
// the metadata map (§4.6): a small set of reader/writer/iterator interfaces
// any ordered KV engine can satisfy, plus an in-memory implementation used
// in tests and a prefix-partitioning helper used to carve one physical store
// into several logical namespaces (heads, commit bytes, journal records, ...).
//
// The shape is lifted directly from the teacher's common/kv.go: this engine
// never talks to a concrete database directly, only through these
// interfaces, so the metadata store (badger, or an in-memory fake) is an
// implementation detail swappable at construction time.
package kv

type (
	// Reader retrieves values by key. Get returns nil for an absent key.
	Reader interface {
		Get(key []byte) []byte
		Has(key []byte) bool
	}

	// Writer applies single key/value updates directly to the store.
	// Set with a nil value deletes the key.
	Writer interface {
		Set(key, value []byte)
	}

	// Iterator walks key/value pairs under a prefix. The order is up to the
	// implementation: badgerstore visits keys in ascending byte order,
	// MemStore in no particular order.
	Iterator interface {
		Iterate(func(k, v []byte) bool)
	}

	// BatchWriter accumulates Set calls and applies them atomically on Commit.
	BatchWriter interface {
		Writer
		Commit() error
	}

	// Store is a reader+writer pair: the minimal contract for a KV engine.
	Store interface {
		Reader
		Writer
	}

	// Batched stores support atomic multi-key updates via a BatchWriter.
	Batched interface {
		NewBatch() BatchWriter
	}

	// Traversable stores support ordered iteration by prefix.
	Traversable interface {
		Iterator(prefix []byte) Iterator
	}

	// OrderedStore is the full contract the metadata map needs: point
	// reads/writes, atomic batches, and prefix scans (ordered or not, see
	// Iterator).
	OrderedStore interface {
		Store
		Batched
		Traversable
	}
)

// CopyAll drains src into dst in iteration order.
func CopyAll(dst Writer, src Iterator) {
	src.Iterate(func(k, v []byte) bool {
		dst.Set(k, v)
		return true
	})
}

// HasPrefix reports whether any key under prefix exists in r.
func HasPrefix(r Traversable, prefix []byte) bool {
	found := false
	r.Iterator(prefix).Iterate(func(_, _ []byte) bool {
		found = true
		return false
	})
	return found
}
