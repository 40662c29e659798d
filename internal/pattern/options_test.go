package pattern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsHashStableAcrossCalls(t *testing.T) {
	o := DefaultOptions()
	h1 := o.Hash()
	h2 := o.Hash()
	require.Equal(t, h1, h2)
}

func TestOptionsHashDiffersOnFlagChange(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.CaseSensitive = !a.CaseSensitive
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestOptionsHashDiffersOnEncoding(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.Encoding = EncodingLatin1
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestOptionsHashDiffersOnMaxMemory(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.MaxMemoryBytes = 1 << 20
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestKeyIsDeterministicForSameSourceAndOptions(t *testing.T) {
	o1 := DefaultOptions()
	o2 := DefaultOptions()
	k1 := Key([]byte(`\d+`), &o1)
	k2 := Key([]byte(`\d+`), &o2)
	require.Equal(t, k1, k2)
}

func TestKeyDiffersForDifferentSource(t *testing.T) {
	o := DefaultOptions()
	k1 := Key([]byte(`\d+`), &o)
	k2 := Key([]byte(`\w+`), &o)
	require.NotEqual(t, k1, k2)
}

func TestKeyDiffersForDifferentOptions(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	b.LongestMatch = true
	k1 := Key([]byte(`\d+`), &a)
	k2 := Key([]byte(`\d+`), &b)
	require.NotEqual(t, k1, k2)
}
