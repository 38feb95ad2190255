package storage

import (
	"bytes"
	"io"

	"github.com/kvledger/pagestore/kv"
	"github.com/kvledger/pagestore/objectid"
)

// encodeNode produces the canonical byte encoding of a node's entries and
// children (spec §6): a self-describing format where two nodes with equal
// logical content always produce byte-identical encodings, which is what
// content-addressing requires.
//
//	uint32 LE entry_count
//	entry_count * { uint16 LE key_len, key, 32-byte value id, 1-byte priority }
//	(entry_count+1) * { 1-byte id_len (0 or 32), [32-byte id if id_len==32] }
func encodeNode(entries []Entry, children []objectid.ID) []byte {
	var buf bytes.Buffer
	_ = kv.WriteUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		_ = kv.WriteBytes16(&buf, e.Key)
		buf.Write(e.ValueID.Bytes())
		_ = kv.WriteByte(&buf, byte(e.Priority))
	}
	for _, c := range children {
		if c.IsEmpty() {
			_ = kv.WriteByte(&buf, 0)
			continue
		}
		_ = kv.WriteByte(&buf, objectid.Size)
		buf.Write(c.Bytes())
	}
	return buf.Bytes()
}

// decodeNode parses the canonical encoding, validating every invariant
// §4.2 requires: well-formed length prefixes, entries+1 == children, strictly
// ascending keys, and no trailing bytes. Any violation is FORMAT_ERROR.
func decodeNode(data []byte) ([]Entry, []objectid.ID, error) {
	r := bytes.NewReader(data)
	count, err := kv.ReadUint32(r)
	if err != nil {
		return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: entry count")
	}

	entries := make([]Entry, 0, count)
	var prevKey []byte
	for i := uint32(0); i < count; i++ {
		key, err := kv.ReadBytes16(r)
		if err != nil {
			return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: entry %d key", i)
		}
		if prevKey != nil && bytes.Compare(prevKey, key) >= 0 {
			return nil, nil, newStatusError(StatusFormatError, "decode node: keys not strictly ascending at entry %d", i)
		}
		prevKey = key

		var rawID [objectid.Size]byte
		if _, err := io.ReadFull(r, rawID[:]); err != nil {
			return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: entry %d value id", i)
		}
		valueID, _ := objectid.FromBytes(rawID[:])

		pb, err := kv.ReadByte(r)
		if err != nil {
			return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: entry %d priority", i)
		}
		if pb != byte(PriorityEager) && pb != byte(PriorityLazy) {
			return nil, nil, newStatusError(StatusFormatError, "decode node: entry %d invalid priority %d", i, pb)
		}

		entries = append(entries, Entry{Key: key, ValueID: valueID, Priority: Priority(pb)})
	}

	children := make([]objectid.ID, 0, count+1)
	for i := uint32(0); i < count+1; i++ {
		idLen, err := kv.ReadByte(r)
		if err != nil {
			return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: child %d length", i)
		}
		switch idLen {
		case 0:
			children = append(children, objectid.Empty)
		case objectid.Size:
			var rawID [objectid.Size]byte
			if _, err := io.ReadFull(r, rawID[:]); err != nil {
				return nil, nil, wrapStatusError(StatusFormatError, err, "decode node: child %d id", i)
			}
			id, _ := objectid.FromBytes(rawID[:])
			children = append(children, id)
		default:
			return nil, nil, newStatusError(StatusFormatError, "decode node: child %d invalid id length %d", i, idLen)
		}
	}

	if r.Len() != 0 {
		return nil, nil, wrapStatusError(StatusFormatError, kv.ErrNotAllBytesConsumed, "decode node")
	}
	if len(children) != len(entries)+1 {
		return nil, nil, newStatusError(StatusFormatError, "decode node: len(children)=%d != len(entries)+1=%d", len(children), len(entries)+1)
	}
	return entries, children, nil
}
