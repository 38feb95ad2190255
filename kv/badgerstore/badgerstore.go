// Package badgerstore adapts github.com/dgraph-io/badger/v4 to the kv.OrderedStore
// contract, so the metadata map (§4.6 of SPEC_FULL.md) can be backed by a real
// durable LSM engine instead of the in-memory fake used in tests. Adapted
// from the teacher's adaptors/badger_adaptor/badgeradaptor.go, which does the
// same for unitrie's trie node/value store.
package badgerstore

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/kvledger/pagestore/internal/assert"
	"github.com/kvledger/pagestore/kv"
)

const iteratorPrefetchSize = 64

var (
	_ kv.OrderedStore = (*Store)(nil)
	_ kv.BatchWriter  = (*batch)(nil)
	_ kv.Iterator     = (*iterator)(nil)
)

// Store wraps an open *badger.DB as a kv.OrderedStore.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open creates the directory if needed and opens (or creates) a badger
// database rooted there, mirroring the teacher's MustCreateOrOpenBadgerDB
// but returning an error instead of panicking, since opening the metadata
// store is on PageStorage's Init error path (spec §4.6), not a test helper.
func Open(dir string, opts ...badger.Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("badgerstore: create dir %q: %w", dir, err)
	}
	var o badger.Options
	if len(opts) > 0 {
		o = opts[0]
	} else {
		o = badger.DefaultOptions(dir)
	}
	o.Logger = nil
	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

func (s *Store) Get(key []byte) []byte {
	if s.closed.Load() {
		return nil
	}
	var ret []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	assert.AssertNoError(err, "badgerstore: get")
	return ret
}

func (s *Store) Has(key []byte) bool {
	if s.closed.Load() {
		return false
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false
	}
	assert.AssertNoError(err, "badgerstore: has")
	return true
}

func (s *Store) Set(key, value []byte) {
	if s.closed.Load() {
		return
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if len(value) == 0 {
			return txn.Delete(key)
		}
		return txn.Set(key, value)
	})
	assert.AssertNoError(err, "badgerstore: set")
}

func (s *Store) NewBatch() kv.BatchWriter {
	return &batch{store: s, mut: kv.NewMutations()}
}

type batch struct {
	store *Store
	mut   *kv.Mutations
}

func (b *batch) Set(key, value []byte) { b.mut.Set(key, value) }

func (b *batch) Commit() error {
	return b.store.db.Update(func(txn *badger.Txn) error {
		if b.store.closed.Load() {
			return fmt.Errorf("badgerstore: database is closed")
		}
		var err error
		b.mut.Iterate(func(k, v []byte) bool {
			if len(v) > 0 {
				err = txn.Set(k, v)
			} else {
				err = txn.Delete(k)
			}
			return err == nil
		})
		return err
	})
}

func (s *Store) Iterator(prefix []byte) kv.Iterator {
	return &iterator{store: s, prefix: prefix}
}

type iterator struct {
	store  *Store
	prefix []byte
}

// Iterate walks keys under the prefix in ascending byte order: badger's
// iterator is sorted, so this is the one kv.Iterator implementation the
// metadata map can rely on for order-sensitive scans (spec §4.3.2's
// ascending-key guarantee, when the journal's edit log lives in badger).
func (it *iterator) Iterate(fun func(k, v []byte) bool) {
	err := it.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = iteratorPrefetchSize
		dbIt := txn.NewIterator(opts)
		defer dbIt.Close()

		for dbIt.Seek(it.prefix); dbIt.ValidForPrefix(it.prefix); dbIt.Next() {
			item := dbIt.Item()
			cont := true
			verr := item.Value(func(val []byte) error {
				cont = fun(item.KeyCopy(nil), val)
				return nil
			})
			if verr != nil {
				return verr
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
	if !it.store.closed.Load() {
		assert.AssertNoError(err, "badgerstore: iterate")
	}
}
