package config

import (
	"fmt"
	"io"
	"strconv"

	"keg/ngdp"
)

// PatchEntry is one `patch-entry` line: the pair of encoding keys a patch
// transforms between, the patch file's own content key, and its size.
type PatchEntry struct {
	OldKey   ngdp.Key
	NewKey   ngdp.Key
	PatchKey ngdp.Key
	Size     uint64
}

// PatchConfig is the typed view over a parsed patch-config document.
type PatchConfig struct {
	Entries []PatchEntry
}

// ParsePatchConfig parses and extracts a patch-config document.
func ParsePatchConfig(r io.Reader) (*PatchConfig, error) {
	const op = "config.ParsePatchConfig"
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}

	pc := &PatchConfig{}
	for i, tokens := range doc.Tokens("patch-entry") {
		if len(tokens) < 3 {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-entry %d: want at least 3 fields, got %d", i, len(tokens)))
		}
		entry := PatchEntry{}
		if entry.OldKey, err = ngdp.ParseKey(tokens[0]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-entry %d: old key: %w", i, err))
		}
		if entry.NewKey, err = ngdp.ParseKey(tokens[1]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-entry %d: new key: %w", i, err))
		}
		if entry.PatchKey, err = ngdp.ParseKey(tokens[2]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-entry %d: patch key: %w", i, err))
		}
		if len(tokens) > 3 {
			if entry.Size, err = strconv.ParseUint(tokens[3], 10, 64); err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-entry %d: size: %w", i, err))
			}
		}
		pc.Entries = append(pc.Entries, entry)
	}
	return pc, nil
}
