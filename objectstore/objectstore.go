// Package objectstore implements the content-addressed local object
// store: a partitioned on-disk layout under a root directory, atomic
// temp-then-rename writes, and existence queries typed by content kind.
package objectstore

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"keg/ngdp"
)

// DefaultCacheSize is the number of small object bodies the in-process
// read cache holds before evicting, when the caller does not override it.
const DefaultCacheSize = 1000

// Store is a directory-rooted, content-addressed object store.
type Store struct {
	root  string
	cache *lru.Cache[string, []byte]
}

// Open initializes a Store rooted at dir, creating the kind subdirectories
// if absent. cacheSize <= 0 uses DefaultCacheSize.
func Open(dir string, cacheSize int) (*Store, error) {
	const op = "objectstore.Open"
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	for _, sub := range []string{"config", "data", "patch"} {
		if err := os.MkdirAll(filepath.Join(dir, "objects", sub), 0o755); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, err)
		}
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, err)
	}
	return &Store{root: dir, cache: cache}, nil
}

func kindDir(kind ngdp.ContentKind) string {
	switch kind {
	case ngdp.KindConfig:
		return "config"
	case ngdp.KindPatch, ngdp.KindPatchIndex:
		return "patch"
	default:
		return "data"
	}
}

func kindSuffix(kind ngdp.ContentKind) string {
	switch kind {
	case ngdp.KindIndex, ngdp.KindPatchIndex:
		return ".index"
	default:
		return ""
	}
}

// Path returns the on-disk path for kind/key, whether or not it exists.
func (s *Store) Path(kind ngdp.ContentKind, key ngdp.Key) string {
	return filepath.Join(s.root, "objects", kindDir(kind), key.RelPath()+kindSuffix(kind))
}

func (s *Store) cacheKey(kind ngdp.ContentKind, key ngdp.Key) string {
	return fmt.Sprintf("%d:%s", kind, key)
}

// Has reports whether a completed object exists for kind/key.
func (s *Store) Has(kind ngdp.ContentKind, key ngdp.Key) bool {
	if _, ok := s.cache.Get(s.cacheKey(kind, key)); ok {
		return true
	}
	_, err := os.Stat(s.Path(kind, key))
	return err == nil
}

// HasConfig, HasData, HasPatch, HasIndex, HasPatchIndex are thin typed
// wrappers over Has.
func (s *Store) HasConfig(key ngdp.Key) bool      { return s.Has(ngdp.KindConfig, key) }
func (s *Store) HasData(key ngdp.Key) bool        { return s.Has(ngdp.KindData, key) }
func (s *Store) HasPatch(key ngdp.Key) bool       { return s.Has(ngdp.KindPatch, key) }
func (s *Store) HasIndex(key ngdp.Key) bool       { return s.Has(ngdp.KindIndex, key) }
func (s *Store) HasPatchIndex(key ngdp.Key) bool  { return s.Has(ngdp.KindPatchIndex, key) }

// Open returns a reader over the completed object at kind/key. Callers
// must Close it.
func (s *Store) Open(kind ngdp.ContentKind, key ngdp.Key) (io.ReadCloser, error) {
	const op = "objectstore.Open"
	if body, ok := s.cache.Get(s.cacheKey(kind, key)); ok {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	f, err := os.Open(s.Path(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ngdp.New(ngdp.NotFound, op, err)
		}
		return nil, ngdp.New(ngdp.Malformed, op, err)
	}
	return f, nil
}

// readAtCloser adapts a []byte read from cache to the io.ReaderAt shape
// random-access callers (archive extraction) need.
type readAtCloser struct {
	*bytes.Reader
}

func (readAtCloser) Close() error { return nil }

// OpenReaderAt returns random-access access to the completed object at
// kind/key, for callers that need to read a sub-range (archive
// extraction) rather than stream the whole thing.
func (s *Store) OpenReaderAt(kind ngdp.ContentKind, key ngdp.Key) (io.ReaderAt, io.Closer, error) {
	const op = "objectstore.OpenReaderAt"
	if body, ok := s.cache.Get(s.cacheKey(kind, key)); ok {
		rac := readAtCloser{bytes.NewReader(body)}
		return rac, rac, nil
	}
	f, err := os.Open(s.Path(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ngdp.New(ngdp.NotFound, op, err)
		}
		return nil, nil, ngdp.New(ngdp.Malformed, op, err)
	}
	return f, f, nil
}

// Write streams r to disk under kind/key via a ".keg_temp" sibling,
// verifying the written bytes MD5 to key before the atomic rename. On
// integrity failure the temp file is left for the repair sweep.
func (s *Store) Write(kind ngdp.ContentKind, key ngdp.Key, r io.Reader) error {
	const op = "objectstore.Write"

	finalPath := s.Path(kind, key)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return ngdp.New(ngdp.Malformed, op, err)
	}
	tempPath := finalPath + ".keg_temp"

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ngdp.New(ngdp.Malformed, op, err)
	}

	h := md5.New()
	tee := io.TeeReader(r, h)
	written, copyErr := io.Copy(f, tee)
	if copyErr != nil {
		f.Close()
		return ngdp.New(ngdp.NetworkError, op, fmt.Errorf("writing %s: %w", tempPath, copyErr))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return ngdp.New(ngdp.Malformed, op, err)
	}
	if err := f.Close(); err != nil {
		return ngdp.New(ngdp.Malformed, op, err)
	}

	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	if ngdp.Key(sum) != key {
		return ngdp.New(ngdp.IntegrityError, op, fmt.Errorf("wrote %d bytes, md5 %x != key %s", written, sum, key))
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return ngdp.New(ngdp.Malformed, op, err)
	}
	s.cache.Remove(s.cacheKey(kind, key))
	return nil
}

// PutCached stores body, for an object whose write already happened, in
// the read cache that Has, Open and OpenReaderAt consult before disk. It
// is the only way entries enter the cache: reading from disk adds none.
func (s *Store) PutCached(kind ngdp.ContentKind, key ngdp.Key, body []byte) {
	s.cache.Add(s.cacheKey(kind, key), body)
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }
