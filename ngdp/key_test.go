package ngdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyRoundTrip(t *testing.T) {
	const hex32 = "0123456789abcdef0123456789abcdef"
	k, err := ParseKey(hex32)
	require.NoError(t, err)
	assert.Equal(t, hex32, k.String())
}

func TestParseKeyBadLength(t *testing.T) {
	_, err := ParseKey("abcd")
	require.Error(t, err)
	assert.True(t, IsKind(err, Malformed))
}

func TestParseKeyBadHex(t *testing.T) {
	_, err := ParseKey("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	require.Error(t, err)
	assert.True(t, IsKind(err, Malformed))
}

func TestKeyPartition(t *testing.T) {
	full := "aabbccddeeff00112233445566778899"
	k := MustKey(full)
	d1, d2, f := k.Partition()
	assert.Equal(t, "aa", d1)
	assert.Equal(t, "bb", d2)
	assert.Equal(t, full, f)
	assert.Equal(t, "aa/bb/"+full, k.RelPath())
}

func TestKeyIsZero(t *testing.T) {
	var z Key
	assert.True(t, z.IsZero())
	nz := MustKey("aabbccddeeff00112233445566778899")
	assert.False(t, nz.IsZero())
}

func TestKeyTextMarshaling(t *testing.T) {
	var k Key
	require.NoError(t, k.UnmarshalText([]byte("aabbccddeeff00112233445566778899")))
	assert.Equal(t, "aabbccddeeff00112233445566778899", k.String())

	text, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "aabbccddeeff00112233445566778899", string(text))

	var empty Key
	require.NoError(t, empty.UnmarshalText(nil))
	assert.True(t, empty.IsZero())
}
