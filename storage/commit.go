package storage

import (
	"bytes"
	"io"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

// FirstCommitID is the reserved sentinel identifying the single commit
// every page starts from: empty contents, no parents, generation zero
// (spec §3, §9). All devices synchronizing a page must agree on this exact
// id, which is why it is the all-zero digest rather than a hash of
// something that could vary.
var FirstCommitID = objectid.Empty

// Commit is one point in a page's history: a content-addressed root node,
// a generation number one greater than the maximum of its parents', and
// the commit ids of those parents (spec §3, §4.4).
type Commit struct {
	id            objectid.ID
	timestampNano int64
	generation    uint64
	rootID        objectid.ID
	parentIDs     []objectid.ID
	storageBytes  []byte
}

// ID returns the commit's content-address id (the digest of its storage bytes).
func (c *Commit) ID() objectid.ID { return c.id }

// Timestamp returns nanoseconds since epoch.
func (c *Commit) Timestamp() int64 { return c.timestampNano }

// Generation returns one greater than the max of the parents' generations.
func (c *Commit) Generation() uint64 { return c.generation }

// RootID returns the content-address id of the commit's tree root.
func (c *Commit) RootID() objectid.ID { return c.rootID }

// ParentIDs returns the commit's parent ids (empty for FirstCommitID).
func (c *Commit) ParentIDs() []objectid.ID { return c.parentIDs }

// StorageBytes returns the canonical encoding persisted under ID().
func (c *Commit) StorageBytes() []byte { return c.storageBytes }

// EmptyCommit returns the well-known first commit: no parents, generation
// zero, an empty tree.
func EmptyCommit(emptyRootID objectid.ID) *Commit {
	c := &Commit{timestampNano: 0, generation: 0, rootID: emptyRootID}
	c.storageBytes = encodeCommit(c)
	c.id = FirstCommitID
	return c
}

// NewCommit builds a commit on top of parents, computing its generation as
// one more than the maximum parent generation (spec §4.4) and its id as the
// digest of its canonical encoding.
func NewCommit(timestampNano int64, rootID objectid.ID, parents []*Commit) *Commit {
	var maxParentGen uint64
	parentIDs := make([]objectid.ID, 0, len(parents))
	for _, p := range parents {
		if p.generation > maxParentGen {
			maxParentGen = p.generation
		}
		parentIDs = append(parentIDs, p.id)
	}
	c := &Commit{
		timestampNano: timestampNano,
		generation:    maxParentGen + 1,
		rootID:        rootID,
		parentIDs:     parentIDs,
	}
	c.storageBytes = encodeCommit(c)
	c.id = objectid.Of(c.storageBytes)
	return c
}

// FromStorageBytes decodes a commit from its on-disk bytes, verifying that
// id matches the digest of data (content-addressing's core invariant),
// except for FirstCommitID which is exempt by definition (spec §9).
func FromStorageBytes(id objectid.ID, data []byte) (*Commit, error) {
	if id != FirstCommitID {
		if got := objectid.Of(data); got != id {
			return nil, newStatusError(StatusFormatError, "commit id %s does not match digest of its bytes (%s)", id, got)
		}
	}
	c, err := decodeCommit(data)
	if err != nil {
		return nil, err
	}
	c.id = id
	c.storageBytes = data
	return c, nil
}

// encodeCommit produces the canonical byte encoding of a commit (spec §6):
//
//	32-byte root id
//	int64 LE timestamp_nanos
//	uint64 LE generation
//	uint8 parent_count
//	parent_count * 32-byte parent id
func encodeCommit(c *Commit) []byte {
	var buf bytes.Buffer
	buf.Write(c.rootID.Bytes())
	_ = kv.WriteInt64(&buf, c.timestampNano)
	_ = kv.WriteUint64(&buf, c.generation)
	_ = kv.WriteByte(&buf, byte(len(c.parentIDs)))
	for _, p := range c.parentIDs {
		buf.Write(p.Bytes())
	}
	return buf.Bytes()
}

func decodeCommit(data []byte) (*Commit, error) {
	r := bytes.NewReader(data)

	var rawRoot [objectid.Size]byte
	if _, err := io.ReadFull(r, rawRoot[:]); err != nil {
		return nil, wrapStatusError(StatusFormatError, err, "decode commit: root id")
	}
	rootID, _ := objectid.FromBytes(rawRoot[:])

	ts, err := kv.ReadInt64(r)
	if err != nil {
		return nil, wrapStatusError(StatusFormatError, err, "decode commit: timestamp")
	}
	gen, err := kv.ReadUint64(r)
	if err != nil {
		return nil, wrapStatusError(StatusFormatError, err, "decode commit: generation")
	}

	parentCount, err := kv.ReadByte(r)
	if err != nil {
		return nil, wrapStatusError(StatusFormatError, err, "decode commit: parent count")
	}
	parents := make([]objectid.ID, 0, parentCount)
	for i := byte(0); i < parentCount; i++ {
		var raw [objectid.Size]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return nil, wrapStatusError(StatusFormatError, err, "decode commit: parent %d", i)
		}
		id, _ := objectid.FromBytes(raw[:])
		parents = append(parents, id)
	}

	if r.Len() != 0 {
		return nil, wrapStatusError(StatusFormatError, kv.ErrNotAllBytesConsumed, "decode commit")
	}

	return &Commit{
		timestampNano: ts,
		generation:    gen,
		rootID:        rootID,
		parentIDs:     parents,
	}, nil
}
