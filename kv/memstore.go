package kv

import (
	"bytes"
	"sync"
)

var (
	_ OrderedStore = &MemStore{}
)

// MemStore is a thread-safe, in-memory OrderedStore. It backs the metadata
// map in tests and anywhere durability isn't required, exactly the role the
// teacher's common.InMemoryKVStore plays for the trie. Adapted from
// common/kvimpl.go.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (s *MemStore) Get(k []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(k)]
	if !ok {
		return nil
	}
	ret := make([]byte, len(v))
	copy(ret, v)
	return ret
}

func (s *MemStore) Has(k []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[string(k)]
	return ok
}

func (s *MemStore) Set(k, v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(k, v)
}

func (s *MemStore) set(k, v []byte) {
	if len(v) == 0 {
		delete(s.m, string(k))
		return
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	s.m[string(k)] = cp
}

func (s *MemStore) NewBatch() BatchWriter {
	return &memBatch{store: s, mut: NewMutations()}
}

func (s *MemStore) Iterator(prefix []byte) Iterator {
	return &memIterator{store: s, prefix: prefix}
}

type memBatch struct {
	store *MemStore
	mut   *Mutations
}

func (b *memBatch) Set(k, v []byte) { b.mut.Set(k, v) }

func (b *memBatch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.mut.Iterate(func(k, v []byte) bool {
		b.store.set(k, v)
		return true
	})
	return nil
}

type memIterator struct {
	store  *MemStore
	prefix []byte
}

func (it *memIterator) Iterate(fun func(k, v []byte) bool) {
	it.store.mu.RLock()
	defer it.store.mu.RUnlock()

	for k, v := range it.store.m {
		if bytes.HasPrefix([]byte(k), it.prefix) {
			if !fun([]byte(k), v) {
				return
			}
		}
	}
}
