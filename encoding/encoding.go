// Package encoding parses the binary encoding file: the table mapping a
// build's content keys (logical file identity) to encoded keys (on-disk
// identity), with size and encoding-spec metadata, looked up by content key.
package encoding

import (
	"encoding/binary"
	"fmt"
	"io"

	"keg/ngdp"
)

const magic = "ENC1"

// Entry is one encoding-file row.
type Entry struct {
	ContentKey ngdp.Key
	EncodedKey ngdp.Key
	Size       uint64
	Spec       string
}

// Table is a parsed encoding file, indexed for O(1) lookup by content key.
type Table struct {
	byContentKey map[ngdp.Key]Entry
}

// Parse reads a complete encoding file from r.
func Parse(r io.Reader) (*Table, error) {
	const op = "encoding.Parse"

	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading magic: %w", err))
	}
	if string(magicBuf[:]) != magic {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("bad magic %q", magicBuf[:]))
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading entry count: %w", err))
	}

	t := &Table{byContentKey: make(map[ngdp.Key]Entry, count)}
	for i := uint32(0); i < count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("entry %d: %w", i, err))
		}
		t.byContentKey[e.ContentKey] = e
	}
	return t, nil
}

func readEntry(r io.Reader) (Entry, error) {
	var e Entry

	var contentKey, encodedKey [ngdp.KeySize]byte
	if _, err := io.ReadFull(r, contentKey[:]); err != nil {
		return e, fmt.Errorf("content key: %w", err)
	}
	if _, err := io.ReadFull(r, encodedKey[:]); err != nil {
		return e, fmt.Errorf("encoded key: %w", err)
	}
	e.ContentKey = ngdp.Key(contentKey)
	e.EncodedKey = ngdp.Key(encodedKey)

	if err := binary.Read(r, binary.BigEndian, &e.Size); err != nil {
		return e, fmt.Errorf("size: %w", err)
	}

	var specLen uint16
	if err := binary.Read(r, binary.BigEndian, &specLen); err != nil {
		return e, fmt.Errorf("spec length: %w", err)
	}
	specBuf := make([]byte, specLen)
	if _, err := io.ReadFull(r, specBuf); err != nil {
		return e, fmt.Errorf("spec: %w", err)
	}
	e.Spec = string(specBuf)

	return e, nil
}

// Lookup resolves a content key to its full encoding entry.
func (t *Table) Lookup(contentKey ngdp.Key) (Entry, bool) {
	e, ok := t.byContentKey[contentKey]
	return e, ok
}

// ToEncodedKey resolves a content key to its encoded key, per the single
// capability install-time resolution needs.
func (t *Table) ToEncodedKey(contentKey ngdp.Key) (ngdp.Key, error) {
	const op = "encoding.ToEncodedKey"
	e, ok := t.byContentKey[contentKey]
	if !ok {
		return ngdp.Key{}, ngdp.New(ngdp.NotFound, op, fmt.Errorf("content key %s not in encoding table", contentKey))
	}
	return e.EncodedKey, nil
}

// Len reports the number of entries in the table.
func (t *Table) Len() int { return len(t.byContentKey) }

// Write serializes entries to w in the Parse-compatible format. Used by
// tests and by ingestion paths that synthesize an encoding table.
func Write(w io.Writer, entries []Entry) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := w.Write(e.ContentKey[:]); err != nil {
			return err
		}
		if _, err := w.Write(e.EncodedKey[:]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, e.Size); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(e.Spec))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(e.Spec)); err != nil {
			return err
		}
	}
	return nil
}
