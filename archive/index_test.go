package archive

import (
	"crypto/md5"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keg/ngdp"
)

// buildIndex packs entries (each entryStride bytes: key|size|offset, big
// endian) into a single block with no padding, and appends a valid tail.
func buildIndex(entries [][]byte) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}
	sum := md5.Sum(body)

	tail := make([]byte, footerSize)
	tail[0] = 0 // blockSizeKB 0 => single block
	tail[1] = 4
	tail[2] = 4
	tail[3] = 16
	binary.BigEndian.PutUint32(tail[4:8], uint32(len(entries)))
	copy(tail[8:24], sum[:])

	return append(body, tail...)
}

func entryBytes(key ngdp.Key, size, offset uint32) []byte {
	b := make([]byte, entryStride)
	copy(b[0:16], key[:])
	binary.BigEndian.PutUint32(b[16:20], size)
	binary.BigEndian.PutUint32(b[20:24], offset)
	return b
}

func TestParseIndexBasic(t *testing.T) {
	k1 := ngdp.MustKey("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	k2 := ngdp.MustKey("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	data := buildIndex([][]byte{
		entryBytes(k1, 100, 0),
		entryBytes(k2, 200, 100),
	})

	idx, err := ParseIndex(data)
	require.NoError(t, err)
	require.Len(t, idx.Entries, 2)
	assert.Equal(t, k1, idx.Entries[0].Key)
	assert.EqualValues(t, 100, idx.Entries[0].Size)
	assert.Equal(t, k2, idx.Entries[1].Key)
	assert.EqualValues(t, 100, idx.Entries[1].Offset)
}

func TestParseIndexEmpty(t *testing.T) {
	data := buildIndex(nil)
	idx, err := ParseIndex(data)
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}

func TestParseIndexBadTailMD5(t *testing.T) {
	k1 := ngdp.MustKey("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	data := buildIndex([][]byte{entryBytes(k1, 10, 0)})
	data[len(data)-footerSize+8] ^= 0xFF // corrupt the stored tail MD5

	_, err := ParseIndex(data)
	require.Error(t, err)
	assert.True(t, ngdp.IsKind(err, ngdp.IntegrityError))
}

func TestParseIndexTooShort(t *testing.T) {
	_, err := ParseIndex([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, ngdp.IsKind(err, ngdp.Malformed))
}
