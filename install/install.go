// Package install parses the binary install-file (and, identically, the
// download-file) format: a tagged list of (filename, content_key, size)
// entries, each entry carrying the subset of declared tags that apply to
// it (platform, architecture, locale, and so on).
package install

import (
	"encoding/binary"
	"fmt"
	"io"

	"keg/ngdp"
)

const magic = "INS1"

// Entry is one install-file row.
type Entry struct {
	Name       string
	ContentKey ngdp.Key
	Size       uint32
	Tags       []string
}

// HasTag reports whether e carries tag.
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Table is a parsed install (or download) file.
type Table struct {
	Tags    []string
	Entries []Entry
}

// Parse reads a complete install-file from r.
func Parse(r io.Reader) (*Table, error) {
	const op = "install.Parse"

	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading magic: %w", err))
	}
	if string(magicBuf[:]) != magic {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("bad magic %q", magicBuf[:]))
	}

	var numTags uint32
	if err := binary.Read(r, binary.BigEndian, &numTags); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading tag count: %w", err))
	}
	tags := make([]string, numTags)
	for i := range tags {
		name, err := readString(r)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("tag %d: %w", i, err))
		}
		tags[i] = name
	}

	var numEntries uint32
	if err := binary.Read(r, binary.BigEndian, &numEntries); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading entry count: %w", err))
	}

	maskBytes := int((numEntries + 7) / 8)
	masks := make([][]byte, numTags)
	for i := range masks {
		buf := make([]byte, maskBytes)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("tag %d bitmask: %w", i, err))
		}
		masks[i] = buf
	}

	entries := make([]Entry, numEntries)
	for i := range entries {
		name, err := readString(r)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("entry %d name: %w", i, err))
		}
		var key [ngdp.KeySize]byte
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("entry %d content key: %w", i, err))
		}
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("entry %d size: %w", i, err))
		}

		var entryTags []string
		for ti, mask := range masks {
			if bitSet(mask, i) {
				entryTags = append(entryTags, tags[ti])
			}
		}

		entries[i] = Entry{
			Name:       name,
			ContentKey: ngdp.Key(key),
			Size:       size,
			Tags:       entryTags,
		}
	}

	return &Table{Tags: tags, Entries: entries}, nil
}

// Filter returns every entry that carries all of wantTags. With no
// arguments it returns every entry.
func (t *Table) Filter(wantTags ...string) []Entry {
	if len(wantTags) == 0 {
		return append([]Entry(nil), t.Entries...)
	}
	var out []Entry
	for _, e := range t.Entries {
		ok := true
		for _, want := range wantTags {
			if !e.HasTag(want) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

func bitSet(mask []byte, index int) bool {
	byteIdx := index / 8
	if byteIdx >= len(mask) {
		return false
	}
	bit := uint(7 - index%8)
	return mask[byteIdx]&(1<<bit) != 0
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Write serializes a Table back to the Parse-compatible binary format.
// Used by tests and by ingestion paths that synthesize an install file.
func Write(w io.Writer, t *Table) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(t.Tags))); err != nil {
		return err
	}
	for _, tag := range t.Tags {
		if err := writeString(w, tag); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(t.Entries))); err != nil {
		return err
	}

	maskBytes := (len(t.Entries) + 7) / 8
	for _, tag := range t.Tags {
		mask := make([]byte, maskBytes)
		for i, e := range t.Entries {
			if e.HasTag(tag) {
				mask[i/8] |= 1 << uint(7-i%8)
			}
		}
		if _, err := w.Write(mask); err != nil {
			return err
		}
	}

	for _, e := range t.Entries {
		if err := writeString(w, e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.ContentKey[:]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, e.Size); err != nil {
			return err
		}
	}
	return nil
}
