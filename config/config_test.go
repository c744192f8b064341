package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	const input = "# build config\n" +
		"root = aabbccddeeff00112233445566778899\n" +
		"install = 00112233445566778899aabbccddeeff 12345\n" +
		"\n"
	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "aabbccddeeff00112233445566778899", doc.Value("root"))
	assert.Equal(t, []string{"00112233445566778899aabbccddeeff", "12345"}, doc.First("install"))
}

func TestParseRepeatedKeys(t *testing.T) {
	const input = "patch-entry = a b c 10\npatch-entry = d e f 20\n"
	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, doc.Tokens("patch-entry"), 2)
}

func TestParseMissingEquals(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-kv-line\n"))
	require.Error(t, err)
}

func TestParseBuildConfig(t *testing.T) {
	const input = "root = aabbccddeeff00112233445566778899\n" +
		"install = 00112233445566778899aabbccddeeff 100\n" +
		"download = 11112233445566778899aabbccddeeff 200\n" +
		"encoding = 22222233445566778899aabbccddeeff 33332233445566778899aabbccddeeff\n" +
		"patch = 44442233445566778899aabbccddeeff 300\n" +
		"patch-config = 55552233445566778899aabbccddeeff\n"

	bc, err := ParseBuildConfig(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "aabbccddeeff00112233445566778899", bc.Root.String())
	assert.EqualValues(t, 100, bc.InstallSize)
	assert.EqualValues(t, 200, bc.DownloadSize)
	assert.Equal(t, "22222233445566778899aabbccddeeff", bc.Encoding.ContentKey.String())
	assert.Equal(t, "33332233445566778899aabbccddeeff", bc.Encoding.EncodedKey.String())
	assert.True(t, bc.HasPatch)
	assert.EqualValues(t, 300, bc.PatchSize)
}

func TestParseCDNConfig(t *testing.T) {
	const input = "archives = aabbccddeeff00112233445566778899 00112233445566778899aabbccddeeff\n" +
		"archive-group = 11112233445566778899aabbccddeeff\n"

	cc, err := ParseCDNConfig(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, cc.Archives, 2)
	assert.True(t, cc.HasArchiveGroup)
	assert.False(t, cc.HasPatchArchiveGroup)
}

func TestParsePatchConfig(t *testing.T) {
	const input = "patch-entry = aabbccddeeff00112233445566778899 00112233445566778899aabbccddeeff 11112233445566778899aabbccddeeff 500\n"
	pc, err := ParsePatchConfig(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pc.Entries, 1)
	assert.EqualValues(t, 500, pc.Entries[0].Size)
}
