package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndLatestDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	digest, err := s.RecordResponse(ctx, "us.version.battle.net", "wow/versions", []byte("body-v1"), SourceNetwork)
	require.NoError(t, err)

	got, ok, err := s.LatestDigest(ctx, "us.version.battle.net", "wow/versions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, digest, got)
}

func TestLatestDigestMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LatestDigest(context.Background(), "nowhere", "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRowsAndLatestRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	digest, err := s.RecordResponse(ctx, "us.version.battle.net", "wow/versions", []byte("body-v1"), SourceNetwork)
	require.NoError(t, err)

	rows := []map[string]string{
		{"Region": "us", "BuildConfig": "aaaa", "VersionsName": "1.0"},
		{"Region": "eu", "BuildConfig": "bbbb", "VersionsName": "1.0"},
	}
	require.NoError(t, s.RecordRows(ctx, "us.version.battle.net", digest, "versions", rows))

	got, ok, err := s.LatestRows(ctx, "us.version.battle.net", "wow/versions", "versions")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "us", got[0]["Region"])
	assert.Equal(t, "eu", got[1]["Region"])
}

func TestRecordResponseIdempotentDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d1, err := s.RecordResponse(ctx, "remote", "path", []byte("same-body"), SourceNetwork)
	require.NoError(t, err)
	d2, err := s.RecordResponse(ctx, "remote", "path", []byte("same-body"), SourceNetwork)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestLatestDigestPicksNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d1, err := s.RecordResponse(ctx, "remote", "path", []byte("body-1"), SourceNetwork)
	require.NoError(t, err)
	d2, err := s.RecordResponse(ctx, "remote", "path", []byte("body-2"), SourceNetwork)
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)

	got, ok, err := s.LatestDigest(ctx, "remote", "path")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d2, got)
}
