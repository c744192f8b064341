package fetch

import (
	"bytes"
	"context"
	"crypto/md5"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keg/config"
	"keg/encoding"
	"keg/install"
	"keg/ngdp"
	"keg/objectstore"
)

// buildFor wires up a Build backed purely by local store content, letting
// Install be exercised without any HTTP fixture.
func buildFor(t *testing.T, store *objectstore.Store, entries []install.Entry) *Build {
	t.Helper()

	contentKeys := make([]ngdp.Key, len(entries))
	encBody := make([]byte, 0)
	var encEntries []encoding.Entry
	for i, e := range entries {
		contentKeys[i] = e.ContentKey
		encEntries = append(encEntries, encoding.Entry{
			ContentKey: e.ContentKey,
			EncodedKey: e.ContentKey, // loose objects keyed by their own content key in this fixture
			Size:       uint64(e.Size),
			Spec:       "n",
		})
	}

	installTable := &install.Table{Entries: entries}
	for _, e := range entries {
		for _, tag := range e.Tags {
			if !slices.Contains(installTable.Tags, tag) {
				installTable.Tags = append(installTable.Tags, tag)
			}
		}
	}
	var installBuf bytes.Buffer
	require.NoError(t, install.Write(&installBuf, installTable))
	installEncodedKey := ngdp.Key(md5.Sum(installBuf.Bytes()))
	installContentKey := ngdp.MustKey("44444444444444444444444444444444"[0:32])
	encEntries = append(encEntries, encoding.Entry{
		ContentKey: installContentKey,
		EncodedKey: installEncodedKey,
		Size:       uint64(installBuf.Len()),
		Spec:       "n",
	})
	require.NoError(t, store.Write(ngdp.KindData, installEncodedKey, bytes.NewReader(installBuf.Bytes())))

	var encBuf bytes.Buffer
	require.NoError(t, encoding.Write(&encBuf, encEntries))
	_ = encBody
	encTable, err := encoding.Parse(bytes.NewReader(encBuf.Bytes()))
	require.NoError(t, err)

	return &Build{
		BuildConfig: &config.BuildConfig{Install: installContentKey},
		Encoding:    encTable,
		Groups:      nil,
	}
}

func writeLooseObject(t *testing.T, store *objectstore.Store, key ngdp.Key, body []byte) {
	t.Helper()
	require.NoError(t, store.Write(ngdp.KindData, key, bytes.NewReader(body)))
}

func TestInstallWritesFiles(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	helloBody := []byte("hello world")
	helloKey := ngdp.Key(md5.Sum(helloBody))
	writeLooseObject(t, store, helloKey, helloBody)

	p := &Planner{store: store}
	b := buildFor(t, store, []install.Entry{
		{Name: "hello.txt", ContentKey: helloKey, Size: uint32(len(helloBody))},
	})

	destDir := t.TempDir()
	result, err := p.Install(context.Background(), b, destDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Installed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Conflicts)

	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestInstallSkipsExistingFile(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	helloBody := []byte("hello world")
	helloKey := ngdp.Key(md5.Sum(helloBody))
	writeLooseObject(t, store, helloKey, helloBody)

	p := &Planner{store: store}
	b := buildFor(t, store, []install.Entry{
		{Name: "hello.txt", ContentKey: helloKey, Size: uint32(len(helloBody))},
	})

	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "hello.txt"), []byte("preexisting"), 0o644))

	result, err := p.Install(context.Background(), b, destDir)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Installed)
	assert.Equal(t, 1, result.Skipped)

	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "preexisting", string(got))
}

func TestInstallCountsConflicts(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	bodyA := []byte("version a")
	bodyB := []byte("version b")
	keyA := ngdp.Key(md5.Sum(bodyA))
	keyB := ngdp.Key(md5.Sum(bodyB))
	writeLooseObject(t, store, keyA, bodyA)
	writeLooseObject(t, store, keyB, bodyB)

	p := &Planner{store: store}
	b := buildFor(t, store, []install.Entry{
		{Name: "dup.txt", ContentKey: keyA, Size: uint32(len(bodyA))},
		{Name: "dup.txt", ContentKey: keyB, Size: uint32(len(bodyB))},
	})

	destDir := t.TempDir()
	result, err := p.Install(context.Background(), b, destDir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Installed)
	assert.Equal(t, 1, result.Conflicts)

	got, err := os.ReadFile(filepath.Join(destDir, "dup.txt"))
	require.NoError(t, err)
	assert.Equal(t, "version a", string(got))
}

func TestInstallFiltersByTag(t *testing.T) {
	store, err := objectstore.Open(t.TempDir(), 0)
	require.NoError(t, err)

	bodyWin := []byte("windows binary")
	bodyMac := []byte("mac binary")
	keyWin := ngdp.Key(md5.Sum(bodyWin))
	keyMac := ngdp.Key(md5.Sum(bodyMac))
	writeLooseObject(t, store, keyWin, bodyWin)
	writeLooseObject(t, store, keyMac, bodyMac)

	p := &Planner{store: store}
	b := buildFor(t, store, []install.Entry{
		{Name: "win.exe", ContentKey: keyWin, Size: uint32(len(bodyWin)), Tags: []string{"Windows"}},
		{Name: "game.app", ContentKey: keyMac, Size: uint32(len(bodyMac)), Tags: []string{"Mac"}},
	})

	destDir := t.TempDir()
	result, err := p.Install(context.Background(), b, destDir, "Windows")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Installed)

	_, err = os.Stat(filepath.Join(destDir, "win.exe"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(destDir, "game.app"))
	assert.True(t, os.IsNotExist(err))
}
