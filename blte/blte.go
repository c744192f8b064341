// Package blte decodes the BLTE container format: a framed, chunked,
// optionally compressed envelope with a per-chunk MD5 checksum that every
// NGDP data object is wrapped in.
package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"keg/ngdp"
)

const magic = "BLTE"

// Encoding modes, the single byte prefixing every chunk payload.
const (
	ModeRaw       byte = 'N'
	ModeZlib      byte = 'Z'
	ModeFrame     byte = 'F'
	ModeEncrypted byte = 'E'
)

// ChunkInfo is one entry of the header's chunk-info table.
type ChunkInfo struct {
	CompressedSize   uint32
	DecompressedSize uint32
	MD5              [16]byte
}

// Header is the parsed BLTE envelope header. HeaderSize 0 means the
// object has no chunk table: a single implicit chunk covers the entire
// remainder of the stream.
type Header struct {
	HeaderSize uint32
	Flags      byte
	Chunks     []ChunkInfo
}

// ParseHeader reads and validates the BLTE magic and header from r. On
// return, r is positioned at the start of the first chunk payload.
func ParseHeader(r io.Reader) (*Header, error) {
	const op = "blte.ParseHeader"

	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading magic: %w", err))
	}
	if string(magicBuf[:]) != magic {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("bad magic %q", magicBuf[:]))
	}

	var headerSize uint32
	if err := binary.Read(r, binary.BigEndian, &headerSize); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading header size: %w", err))
	}

	h := &Header{HeaderSize: headerSize}
	if headerSize == 0 {
		return h, nil
	}

	var flagsAndCount [4]byte
	if _, err := io.ReadFull(r, flagsAndCount[:]); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading chunk table header: %w", err))
	}
	h.Flags = flagsAndCount[0]
	chunkCount := uint32(flagsAndCount[1])<<16 | uint32(flagsAndCount[2])<<8 | uint32(flagsAndCount[3])

	h.Chunks = make([]ChunkInfo, 0, chunkCount)
	for i := uint32(0); i < chunkCount; i++ {
		var entry [24]byte
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading chunk info %d: %w", i, err))
		}
		var ci ChunkInfo
		ci.CompressedSize = binary.BigEndian.Uint32(entry[0:4])
		ci.DecompressedSize = binary.BigEndian.Uint32(entry[4:8])
		copy(ci.MD5[:], entry[8:24])
		h.Chunks = append(h.Chunks, ci)
	}
	return h, nil
}

// Decode reads a complete BLTE envelope from r and writes the decoded
// content to w. Every chunk's MD5 is verified before it is decoded.
func Decode(r io.Reader, w io.Writer) error {
	const op = "blte.Decode"

	h, err := ParseHeader(r)
	if err != nil {
		return err
	}

	if h.HeaderSize == 0 {
		// Single implicit chunk of unknown size: read and verify nothing
		// per-chunk (there is no declared MD5 to check against), stream
		// straight through the mode dispatcher.
		return decodeChunkPayload(r, w, -1)
	}

	for i, ci := range h.Chunks {
		payload := make([]byte, ci.CompressedSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			return ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading chunk %d (%d bytes): %w", i, ci.CompressedSize, err))
		}
		sum := md5.Sum(payload)
		if sum != ci.MD5 {
			return ngdp.New(ngdp.IntegrityError, op, fmt.Errorf("chunk %d: md5 mismatch", i))
		}
		if err := decodeChunkPayload(bytes.NewReader(payload), w, int64(ci.DecompressedSize)); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}

// decodeChunkPayload dispatches on the mode byte and writes the decoded
// bytes to w. expectedSize, if >= 0, is the declared decompressed size;
// a zlib chunk whose inflated length differs fails with IntegrityError.
// It is not enforced for raw/frame chunks.
func decodeChunkPayload(r io.Reader, w io.Writer, expectedSize int64) error {
	const op = "blte.decodeChunkPayload"

	var mode [1]byte
	if _, err := io.ReadFull(r, mode[:]); err != nil {
		return ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading mode byte: %w", err))
	}

	switch mode[0] {
	case ModeRaw:
		_, err := io.Copy(w, r)
		if err != nil {
			return ngdp.New(ngdp.Malformed, op, fmt.Errorf("copying raw chunk: %w", err))
		}
		return nil

	case ModeZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return ngdp.New(ngdp.Malformed, op, fmt.Errorf("zlib header: %w", err))
		}
		defer zr.Close()
		n, err := io.Copy(w, zr)
		if err != nil {
			return ngdp.New(ngdp.Malformed, op, fmt.Errorf("inflating chunk: %w", err))
		}
		if expectedSize >= 0 && n != expectedSize {
			return ngdp.New(ngdp.IntegrityError, op, fmt.Errorf("inflated %d bytes, chunk declared %d", n, expectedSize))
		}
		return nil

	case ModeFrame:
		return Decode(r, w)

	case ModeEncrypted:
		return ngdp.New(ngdp.EncryptedChunk, op, fmt.Errorf("encrypted chunk, no key available"))

	default:
		return ngdp.New(ngdp.Malformed, op, fmt.Errorf("unknown chunk mode %q", mode[0]))
	}
}

// DecodeBytes is a convenience wrapper over Decode for small objects.
func DecodeBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Decode(bytes.NewReader(data), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
