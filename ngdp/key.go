// Package ngdp holds the types shared by every other package in the
// module: content keys, content kinds, and the error taxonomy.
package ngdp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the length in bytes of an NGDP content key (an MD5 digest).
const KeySize = 16

// Key is a content-addressed identifier: the MD5 digest of the bytes it
// names. Archive entries, encoding rows, install rows and object-store
// paths are all keyed by Key.
type Key [KeySize]byte

// ParseKey decodes a hex string (any case, 32 characters) into a Key.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	if len(s) != KeySize*2 {
		return k, &Error{Kind: Malformed, Op: "ParseKey", Err: fmt.Errorf("key %q: want %d hex chars, got %d", s, KeySize*2, len(s))}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, &Error{Kind: Malformed, Op: "ParseKey", Err: fmt.Errorf("key %q: %w", s, err)}
	}
	copy(k[:], b)
	return k, nil
}

// MustKey is ParseKey for literals known to be valid; it panics otherwise.
func MustKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether k is the all-zero key (never a valid content hash,
// used as a sentinel for "absent").
func (k Key) IsZero() bool {
	return k == Key{}
}

// Partition returns the two-level directory prefix NGDP uses to keep object
// directories from growing one entry per content key: the first and second
// hex byte of the key, and the full hex string, e.g. for key "aabbcc..." it
// returns ("aa", "bb", "aabbcc...").
func (k Key) Partition() (dir1, dir2, full string) {
	full = k.String()
	return full[0:2], full[2:4], full
}

// RelPath joins the partition components with "/", the layout used under
// both the flat object store and the CDN's own path scheme.
func (k Key) RelPath() string {
	d1, d2, full := k.Partition()
	return d1 + "/" + d2 + "/" + full
}

// UnmarshalText lets Key be bound directly from a PSV or config-file
// token via encoding.TextUnmarshaler (used by psvtag and by fetch's
// catalog-row structs). An empty token leaves the Key zeroed.
func (k *Key) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText is UnmarshalText's inverse.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
