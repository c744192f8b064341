package keg

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keg/encoding"
	"keg/fetch"
	"keg/install"
	"keg/ngdp"
)

func keyOf(body []byte) ngdp.Key {
	return ngdp.Key(md5.Sum(body))
}

func objPath(kind string, key ngdp.Key) string {
	d1, d2, full := key.Partition()
	return fmt.Sprintf("/tpr/wow/%s/%s/%s/%s", kind, d1, d2, full)
}

// newRemote builds a minimal but complete NGDP remote serving one build
// with a build-config, an empty cdn-config, an encoding table, and an
// install file naming one loose data object.
func newRemote(t *testing.T) (srv *httptest.Server, buildCfgKey, cdnCfgKey, dataKey ngdp.Key) {
	t.Helper()
	mux := make(map[string][]byte)

	dataBody := []byte("hello world")
	dataKey = keyOf(dataBody)
	contentKeyForData := ngdp.MustKey("11111111111111111111111111111111"[0:32])

	installTable := &install.Table{
		Entries: []install.Entry{
			{Name: "hello.txt", ContentKey: contentKeyForData, Size: uint32(len(dataBody))},
		},
	}
	var installBuf bytes.Buffer
	require.NoError(t, install.Write(&installBuf, installTable))
	installEncodedKey := keyOf(installBuf.Bytes())
	installContentKey := ngdp.MustKey("22222222222222222222222222222222"[0:32])

	var encBuf bytes.Buffer
	require.NoError(t, encoding.Write(&encBuf, []encoding.Entry{
		{ContentKey: contentKeyForData, EncodedKey: dataKey, Size: uint64(len(dataBody)), Spec: "n"},
		{ContentKey: installContentKey, EncodedKey: installEncodedKey, Size: uint64(installBuf.Len()), Spec: "n"},
	}))
	encodingBody := encBuf.Bytes()
	encodingEncodedKey := keyOf(encodingBody)

	buildConfigBody := []byte(fmt.Sprintf(
		"# Build Configuration\nencoding = %s %s\ninstall = %s\n",
		contentKeyForData, encodingEncodedKey, installContentKey,
	))
	buildCfgKey = keyOf(buildConfigBody)

	cdnConfigBody := []byte("# CDN Configuration\n")
	cdnCfgKey = keyOf(cdnConfigBody)

	productConfigKey := ngdp.MustKey("33333333333333333333333333333333"[0:32])

	versionsBody := []byte(fmt.Sprintf(
		"Region!STRING:0|BuildConfig!HEX:16|CDNConfig!HEX:16|BuildId!DEC:4|VersionsName!String:0|ProductConfig!HEX:16\nus|%s|%s|12345|1.0.0|%s\n",
		buildCfgKey, cdnCfgKey, productConfigKey,
	))

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wow/versions" {
			w.Write(versionsBody)
			return
		}
		if r.URL.Path == "/wow/cdns" {
			host := strings.TrimPrefix(srv.URL, "http://")
			body := fmt.Sprintf(
				"Name!STRING:0|Path!STRING:0|Hosts!STRING:0|Servers!STRING:0|ConfigPath!STRING:0\nus|tpr/wow|%s|%s|tpr/configs/data\n",
				host, host,
			)
			w.Write([]byte(body))
			return
		}
		if body, ok := mux[r.URL.Path]; ok {
			w.Write(body)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	mux[objPath("config", buildCfgKey)] = buildConfigBody
	mux[objPath("config", cdnCfgKey)] = cdnConfigBody
	mux[objPath("data", encodingEncodedKey)] = encodingBody
	mux[objPath("data", installEncodedKey)] = installBuf.Bytes()
	mux[objPath("data", dataKey)] = dataBody

	return srv, buildCfgKey, cdnCfgKey, dataKey
}

func TestClientOpenFetchInstallClose(t *testing.T) {
	srv, buildCfgKey, _, dataKey := newRemote(t)

	client, err := Open(Config{
		Remote:            srv.URL + "/wow",
		StoreDir:          t.TempDir(),
		DisableGroupCache: true,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	versions, err := client.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "us", versions[0].Region)

	result, err := client.Fetch(ctx, versions, fetch.RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Builds, 1)
	assert.True(t, client.Store().HasConfig(buildCfgKey))
	assert.True(t, client.Store().HasData(dataKey))

	destDir := t.TempDir()
	installResult, err := client.Install(ctx, result.Builds[0], destDir)
	require.NoError(t, err)
	assert.Equal(t, 1, installResult.Installed)

	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestClientMetadataOnlySkipsData(t *testing.T) {
	srv, buildCfgKey, _, dataKey := newRemote(t)

	client, err := Open(Config{
		Remote:            srv.URL + "/wow",
		StoreDir:          t.TempDir(),
		DisableGroupCache: true,
		DisableCatalog:    true,
	})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	versions, err := client.Versions(ctx)
	require.NoError(t, err)

	result, err := client.Fetch(ctx, versions, fetch.RunOptions{MetadataOnly: true})
	require.NoError(t, err)
	assert.True(t, client.Store().HasConfig(buildCfgKey))
	assert.False(t, client.Store().HasData(dataKey))
}

func TestClientRepairRemovesOrphanedTemp(t *testing.T) {
	client, err := Open(Config{
		Remote:            "http://example.invalid/wow",
		StoreDir:          t.TempDir(),
		DisableGroupCache: true,
		DisableCatalog:    true,
	})
	require.NoError(t, err)
	defer client.Close()

	body := []byte("payload")
	key := ngdp.Key(md5.Sum(body))
	require.NoError(t, client.Store().Write(ngdp.KindData, key, bytes.NewReader(body)))
	tempPath := client.Store().Path(ngdp.KindData, key) + ".keg_temp"
	require.NoError(t, os.WriteFile(tempPath, []byte("partial"), 0o644))

	result, err := client.Repair(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedTemp)

	_, statErr := os.Stat(tempPath)
	assert.True(t, os.IsNotExist(statErr))
}
