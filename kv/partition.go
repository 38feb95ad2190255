package kv

// Partition carves a single physical OrderedStore into independent logical
// namespaces by prepending a one-byte prefix to every key, exactly as the
// teacher's common/partition.go does to separate a trie's node partition
// from its value partition. The metadata map (storage/metadata.go) uses one
// partition per concern: heads, commit bytes, unsynced set, journal records,
// sync metadata, node-size config.
type (
	ReaderPartition struct {
		r      Reader
		prefix byte
	}

	WriterPartition struct {
		w      Writer
		prefix byte
	}

	TraversablePartition struct {
		t interface {
			Reader
			Traversable
		}
		prefix byte
	}
)

func NewReaderPartition(r Reader, prefix byte) *ReaderPartition {
	return &ReaderPartition{r: r, prefix: prefix}
}

func (p *ReaderPartition) Get(key []byte) []byte { return p.r.Get(concat(p.prefix, key)) }
func (p *ReaderPartition) Has(key []byte) bool    { return p.r.Has(concat(p.prefix, key)) }

func NewWriterPartition(w Writer, prefix byte) *WriterPartition {
	return &WriterPartition{w: w, prefix: prefix}
}

func (p *WriterPartition) Set(key, value []byte) { p.w.Set(concat(p.prefix, key), value) }

func NewTraversablePartition(t interface {
	Reader
	Traversable
}, prefix byte) *TraversablePartition {
	return &TraversablePartition{t: t, prefix: prefix}
}

func (p *TraversablePartition) Get(key []byte) []byte { return p.t.Get(concat(p.prefix, key)) }
func (p *TraversablePartition) Has(key []byte) bool    { return p.t.Has(concat(p.prefix, key)) }
func (p *TraversablePartition) Iterator(iterPrefix []byte) Iterator {
	return &stripPrefixIterator{
		inner:  p.t.Iterator(concat(p.prefix, iterPrefix)),
		prefix: p.prefix,
	}
}

// stripPrefixIterator removes the partition's leading byte before handing
// keys to the caller, so partitions are indistinguishable from a standalone
// store to their users.
type stripPrefixIterator struct {
	inner  Iterator
	prefix byte
}

func (it *stripPrefixIterator) Iterate(fun func(k, v []byte) bool) {
	it.inner.Iterate(func(k, v []byte) bool {
		return fun(k[1:], v)
	})
}

func concat(prefix byte, key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, prefix)
	out = append(out, key...)
	return out
}
