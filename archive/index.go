// Package archive parses archive indices and maintains the combined
// archive-group index used to locate a logical file's bytes inside one
// of the large binary archives a CDN serves.
package archive

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"keg/ngdp"
)

// footerSize is the fixed length of the self-verifying tail appended to
// every archive index (and every standalone group index) file.
const footerSize = 28

// entryStride is the length in bytes of one archive-index entry: a
// 16-byte key, a 4-byte big-endian size, and a 4-byte big-endian offset.
const entryStride = 16 + 4 + 4

// groupEntryStride is an archive-group entry: an archive-index entry
// plus a 4-byte big-endian reference into the group's archive list.
const groupEntryStride = entryStride + 4

// footer mirrors the tail format: one byte each for the block size (in
// KiB), the offset field width, the size field width and the key field
// width, a big-endian entry count, the body's MD5, and four reserved
// bytes.
type footer struct {
	blockSizeKB  byte
	offsetBytes  byte
	sizeBytes    byte
	keySizeBytes byte
	numElements  uint32
	md5          [16]byte
}

func parseFooter(tail []byte) footer {
	return footer{
		blockSizeKB:  tail[0],
		offsetBytes:  tail[1],
		sizeBytes:    tail[2],
		keySizeBytes: tail[3],
		numElements:  binary.BigEndian.Uint32(tail[4:8]),
		md5:          [16]byte(tail[8:24]),
	}
}

func (f footer) blockSize() int {
	if f.blockSizeKB == 0 {
		return 0
	}
	return int(f.blockSizeKB) * 1024
}

// Entry is one resolved archive-index record.
type Entry struct {
	Key    ngdp.Key
	Size   uint32
	Offset uint32
}

// Index is a parsed per-archive index: the ordered entries describing
// where each logical file lives inside one archive blob.
type Index struct {
	Entries []Entry
}

// ParseIndex parses a complete archive index file body (including its
// 28-byte tail) and verifies the tail's MD5 against the preceding body.
func ParseIndex(data []byte) (*Index, error) {
	entries, err := parseEntries(data, entryStride)
	if err != nil {
		return nil, err
	}
	idx := &Index{Entries: make([]Entry, 0, len(entries))}
	for _, raw := range entries {
		var key ngdp.Key
		copy(key[:], raw[0:16])
		idx.Entries = append(idx.Entries, Entry{
			Key:    key,
			Size:   binary.BigEndian.Uint32(raw[16:20]),
			Offset: binary.BigEndian.Uint32(raw[20:24]),
		})
	}
	return idx, nil
}

// parseEntries validates the tail and returns the raw, non-zero entry
// byte slices in file order, each stride bytes long.
func parseEntries(data []byte, stride int) ([][]byte, error) {
	const op = "archive.parseEntries"
	if len(data) < footerSize {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("index too short: %d bytes", len(data)))
	}
	body := data[:len(data)-footerSize]
	tail := data[len(data)-footerSize:]
	f := parseFooter(tail)

	sum := md5.Sum(body)
	if sum != f.md5 {
		return nil, ngdp.New(ngdp.IntegrityError, op, fmt.Errorf("tail md5 mismatch"))
	}

	blockSize := f.blockSize()
	if blockSize <= 0 || blockSize > len(body) {
		blockSize = len(body)
	}
	if blockSize == 0 {
		return nil, nil
	}

	var entries [][]byte
	for start := 0; start < len(body); start += blockSize {
		end := start + blockSize
		if end > len(body) {
			end = len(body)
		}
		block := body[start:end]
		for off := 0; off+stride <= len(block); off += stride {
			entry := block[off : off+stride]
			if isAllZero(entry) {
				break
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
