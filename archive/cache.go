package archive

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"

	"keg/ngdp"
)

// GroupCache persists a synthesized archive-group index to a local
// badger-backed key/value store so that re-opening the same object store
// does not require re-downloading and re-merging every archive index
// already resolved in a prior process. It is purely an accelerator: a
// cache miss or store error always falls back to rebuilding the group
// from the archive index objects on disk.
type GroupCache struct {
	store *badger4.Datastore
}

// OpenGroupCache opens (creating if absent) a badger datastore rooted at
// path and wraps it as a GroupCache. The caller must Close it.
func OpenGroupCache(path string, opts *badger4.Options) (*GroupCache, error) {
	store, err := badger4.NewDatastore(path, opts)
	if err != nil {
		return nil, fmt.Errorf("archive group cache: open: %w", err)
	}
	return &GroupCache{store: store}, nil
}

// Close releases the underlying badger handle.
func (c *GroupCache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

func cacheKey(groupKey ngdp.Key) ds.Key {
	return ds.NewKey("/archivegroup/" + groupKey.String())
}

// Load returns the cached group for groupKey, if present.
func (c *GroupCache) Load(ctx context.Context, groupKey ngdp.Key) (*Group, bool, error) {
	if c == nil || c.store == nil {
		return nil, false, nil
	}
	val, err := c.store.Get(ctx, cacheKey(groupKey))
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("archive group cache: %w", err)
	}
	var entries []GroupEntry
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&entries); err != nil {
		return nil, false, fmt.Errorf("archive group cache: decode: %w", err)
	}
	m := make(map[ngdp.Key]GroupEntry, len(entries))
	for _, e := range entries {
		m[e.Key] = e
	}
	return &Group{entries: m}, true, nil
}

// Store saves g under groupKey for future lookups.
func (c *GroupCache) Store(ctx context.Context, groupKey ngdp.Key, g *Group) error {
	if c == nil || c.store == nil {
		return nil
	}
	entries := make([]GroupEntry, 0, len(g.entries))
	for _, e := range g.entries {
		entries = append(entries, e)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("archive group cache: encode: %w", err)
	}
	if err := c.store.Put(ctx, cacheKey(groupKey), buf.Bytes()); err != nil {
		return fmt.Errorf("archive group cache: %w", err)
	}
	return nil
}
