package objectid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfDeterministic(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	require.Equal(t, a, b)

	c := Of([]byte("world"))
	require.NotEqual(t, a, c)
}

func TestHexRoundTripUppercase(t *testing.T) {
	id := Of([]byte("content"))
	h := id.Hex()
	require.Equal(t, h, h[:0]+stringsToUpper(h))

	back, err := FromHex(h)
	require.NoError(t, err)
	require.Equal(t, id, back)
}

func stringsToUpper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func TestEmptySentinel(t *testing.T) {
	require.True(t, Empty.IsEmpty())
	require.False(t, Of([]byte("x")).IsEmpty())
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}
