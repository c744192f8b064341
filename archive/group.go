package archive

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"keg/ngdp"
)

// GroupEntry resolves a logical entry key to the archive that contains it.
type GroupEntry struct {
	Key        ngdp.Key
	ArchiveKey ngdp.Key
	Size       uint32
	Offset     uint32
}

// Group is the merged entry-key -> (archive, size, offset) index across
// every archive named by a cdn-config's `archives` list.
type Group struct {
	entries map[ngdp.Key]GroupEntry
}

// NewGroup wraps a pre-built entry map.
func NewGroup(entries map[ngdp.Key]GroupEntry) *Group {
	return &Group{entries: entries}
}

// Get resolves an entry key within the group.
func (g *Group) Get(key ngdp.Key) (GroupEntry, bool) {
	e, ok := g.entries[key]
	return e, ok
}

// Len reports how many distinct entry keys the group resolves.
func (g *Group) Len() int { return len(g.entries) }

// Merge synthesizes a Group from per-archive indices loaded in the order
// given by archiveKeys. On a duplicate entry key across archives, the
// first occurrence (by archiveKeys order) wins.
func Merge(archiveKeys []ngdp.Key, indices []*Index) *Group {
	entries := make(map[ngdp.Key]GroupEntry)
	for i, idx := range indices {
		if idx == nil {
			continue
		}
		archiveKey := archiveKeys[i]
		for _, e := range idx.Entries {
			if _, exists := entries[e.Key]; exists {
				continue
			}
			entries[e.Key] = GroupEntry{
				Key:        e.Key,
				ArchiveKey: archiveKey,
				Size:       e.Size,
				Offset:     e.Offset,
			}
		}
	}
	return &Group{entries: entries}
}

// ParseGroupIndex parses a standalone archive-group index object: the
// same tail-verified layout as a per-archive index, but each entry
// carries a trailing 4-byte big-endian reference into archiveKeys
// (the order named by the owning cdn-config's `archives` list).
func ParseGroupIndex(data []byte, archiveKeys []ngdp.Key) (*Group, error) {
	const op = "archive.ParseGroupIndex"
	raw, err := parseEntries(data, groupEntryStride)
	if err != nil {
		return nil, err
	}
	entries := make(map[ngdp.Key]GroupEntry, len(raw))
	for _, e := range raw {
		var key ngdp.Key
		copy(key[:], e[0:16])
		size := binary.BigEndian.Uint32(e[16:20])
		offset := binary.BigEndian.Uint32(e[20:24])
		ref := binary.BigEndian.Uint32(e[24:28])
		if int(ref) >= len(archiveKeys) {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("entry %s: archive ref %d out of range (%d archives)", key, ref, len(archiveKeys)))
		}
		if _, exists := entries[key]; exists {
			continue
		}
		entries[key] = GroupEntry{
			Key:        key,
			ArchiveKey: archiveKeys[ref],
			Size:       size,
			Offset:     offset,
		}
	}
	return &Group{entries: entries}, nil
}

// Extract reads an entry's bytes from its archive via src (opened at
// ArchiveKey by the caller) and verifies them against the entry key.
func Extract(src io.ReaderAt, entry GroupEntry) ([]byte, error) {
	const op = "archive.Extract"
	buf := make([]byte, entry.Size)
	if _, err := src.ReadAt(buf, int64(entry.Offset)); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading %d bytes at offset %d: %w", entry.Size, entry.Offset, err))
	}
	sum := ngdp.Key(md5.Sum(buf))
	if sum != entry.Key {
		return nil, ngdp.New(ngdp.IntegrityError, op, fmt.Errorf("entry %s: md5 mismatch", entry.Key))
	}
	return buf, nil
}
