package fetch

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keg/ngdp"
	"keg/objectstore"
)

// buildIndexBody packs entries (each 24 bytes: key|size|offset, big
// endian) into one block with a valid self-verifying 28-byte tail,
// mirroring the archive package's on-disk index layout.
func buildIndexBody(entries [][]byte) []byte {
	var body []byte
	for _, e := range entries {
		body = append(body, e...)
	}
	sum := md5.Sum(body)

	tail := make([]byte, 28)
	tail[1], tail[2], tail[3] = 4, 4, 16
	binary.BigEndian.PutUint32(tail[4:8], uint32(len(entries)))
	copy(tail[8:24], sum[:])
	return append(body, tail...)
}

func indexEntryBytes(key ngdp.Key, size, offset uint32) []byte {
	b := make([]byte, 24)
	copy(b[0:16], key[:])
	binary.BigEndian.PutUint32(b[16:20], size)
	binary.BigEndian.PutUint32(b[20:24], offset)
	return b
}

func TestRepairRemovesOrphanedTempFiles(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	body := []byte("payload")
	key := ngdp.Key(md5.Sum(body))
	require.NoError(t, store.Write(ngdp.KindData, key, bytes.NewReader(body)))

	tempPath := store.Path(ngdp.KindData, key) + ".keg_temp"
	require.NoError(t, os.WriteFile(tempPath, []byte("partial"), 0o644))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedTemp)
	assert.Equal(t, 0, result.Verified)

	_, statErr := os.Stat(tempPath)
	assert.True(t, os.IsNotExist(statErr))

	// The completed object is untouched.
	assert.True(t, store.HasData(key))
}

func TestRepairFullVerifyRemovesCorruptObject(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	body := []byte("payload")
	key := ngdp.Key(md5.Sum(body))
	require.NoError(t, store.Write(ngdp.KindData, key, bytes.NewReader(body)))

	// Corrupt the object on disk directly, bypassing the store's
	// write-verify path.
	require.NoError(t, os.WriteFile(store.Path(ngdp.KindData, key), []byte("tampered"), 0o644))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 1, result.RemovedCorrupt)

	_, statErr := os.Stat(store.Path(ngdp.KindData, key))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRepairFullVerifyKeepsValidObject(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	body := []byte("intact payload")
	key := ngdp.Key(md5.Sum(body))
	require.NoError(t, store.Write(ngdp.KindData, key, bytes.NewReader(body)))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 0, result.RemovedCorrupt)
	assert.True(t, store.HasData(key))
}

func TestRepairFullVerifyRemovesIndexWithBadTail(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	archiveKey := ngdp.MustKey("55555555555555555555555555555555"[0:32])
	indexPath := filepath.Join(store.Root(), "objects", "data", archiveKey.RelPath()+".index")
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	require.NoError(t, os.WriteFile(indexPath, []byte("not a real index, not md5-addressed"), 0o644))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 1, result.RemovedCorrupt)

	_, statErr := os.Stat(indexPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRepairFullVerifyKeepsValidIndexWithoutArchiveBody(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	entryKey := ngdp.MustKey("66666666666666666666666666666666"[0:32])
	archiveKey := ngdp.MustKey("77777777777777777777777777777777"[0:32])
	indexBody := buildIndexBody([][]byte{indexEntryBytes(entryKey, 5, 0)})
	indexPath := filepath.Join(store.Root(), "objects", "data", archiveKey.RelPath()+".index")
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	require.NoError(t, os.WriteFile(indexPath, indexBody, 0o644))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 0, result.RemovedCorrupt)

	_, statErr := os.Stat(indexPath)
	require.NoError(t, statErr)
}

func TestRepairFullVerifyRemovesIndexOnExtractionMismatch(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	archiveBody := []byte("0123456789")
	archiveKey := ngdp.Key(md5.Sum(archiveBody))
	require.NoError(t, store.Write(ngdp.KindData, archiveKey, bytes.NewReader(archiveBody)))

	// The index claims an entry key that does not match the archive
	// bytes actually at that offset/size.
	wrongEntryKey := ngdp.MustKey("88888888888888888888888888888888"[0:32])
	indexBody := buildIndexBody([][]byte{indexEntryBytes(wrongEntryKey, 5, 0)})
	indexPath := store.Path(ngdp.KindIndex, archiveKey)
	require.NoError(t, os.MkdirAll(filepath.Dir(indexPath), 0o755))
	require.NoError(t, os.WriteFile(indexPath, indexBody, 0o644))

	p := &Planner{store: store}
	result, err := p.Repair(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Verified) // the archive body and its index
	assert.Equal(t, 1, result.RemovedCorrupt)

	_, statErr := os.Stat(indexPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, store.HasData(archiveKey))
}
