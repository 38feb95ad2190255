// Package objectid implements the 256-bit content-address digests used
// throughout the engine: object ids, tree-node ids, and commit ids are all
// digests of their own canonical encoding (spec §3). The teacher hashes
// trie nodes with blake2b at 160 bits (common/util.go's Blake2b160); this
// engine needs the full 256-bit digest the spec calls for, so it uses
// blake2b's 256-bit variant instead of reaching past the pack for sha256.
package objectid

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes (256 bits).
const Size = 32

// ID is an opaque 256-bit content digest. The zero ID is reserved as the
// sentinel FIRST_COMMIT_ID (spec §3, §9): a fixed 32-byte-zero constant all
// devices in a deployment must agree on.
type ID [Size]byte

// Empty is the reserved sentinel id referencing the empty tree/commit.
var Empty ID

// Of returns the content-address digest of data.
func Of(data []byte) ID {
	return blake2b.Sum256(data)
}

// IsEmpty reports whether id is the all-zero sentinel.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// Bytes returns the id's 32 raw bytes.
func (id ID) Bytes() []byte {
	return id[:]
}

// Hex renders the id as the uppercase 64-character filesystem-safe string
// used for on-disk object names (spec §6; see SPEC_FULL.md §C for why
// uppercase rather than the lowercase spec §3 mentions for "filesystem
// paths" in general).
func (id ID) Hex() string {
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

// String implements fmt.Stringer for debugging/log output.
func (id ID) String() string {
	return id.Hex()
}

// FromBytes copies a 32-byte slice into an ID, rejecting any other length.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, fmt.Errorf("objectid: want %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromHex parses the uppercase (or lowercase) hex rendering back into an ID.
func FromHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("objectid: invalid hex %q: %w", s, err)
	}
	return FromBytes(b)
}

// Less orders ids by their raw bytes; used to keep sets/slices of ids
// deterministic in tests and diagnostics.
func Less(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
