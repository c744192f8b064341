package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"keg/archive"
	"keg/blte"
	"keg/install"
	"keg/ngdp"
)

// InstallResult summarizes one Install call.
type InstallResult struct {
	Installed int
	Skipped   int
	// Conflicts counts install entries sharing a filename with an
	// earlier entry but resolving to a different content key; the
	// first-seen entry is kept, per the source behavior this preserves
	// (resolved Open Question ii).
	Conflicts int
}

// Install materializes the selected entries of build's install file
// under destDir. Entries are filtered by wantTags (AND semantics; no
// tags means every entry). An existing file at an entry's target path is
// left untouched and counted as Skipped, never overwritten.
func (p *Planner) Install(ctx context.Context, b *Build, destDir string, wantTags ...string) (*InstallResult, error) {
	const op = "fetch.Install"

	if b.BuildConfig == nil || b.Encoding == nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("build %s: not planned (missing build-config or encoding table)", b.BuildConfigKey))
	}
	if b.BuildConfig.Install.IsZero() {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("build-config names no install file"))
	}

	installEntry, ok := b.Encoding.Lookup(b.BuildConfig.Install)
	if !ok {
		return nil, ngdp.New(ngdp.NotFound, op, fmt.Errorf("install content key %s not in encoding table", b.BuildConfig.Install))
	}
	raw, err := p.readResolved(b, installEntry.EncodedKey)
	if err != nil {
		return nil, fmt.Errorf("%s: reading install file: %w", op, err)
	}
	if isBLTE(raw) {
		var buf bytes.Buffer
		if err := blte.Decode(bytes.NewReader(raw), &buf); err != nil {
			return nil, fmt.Errorf("%s: decoding install file: %w", op, err)
		}
		raw = buf.Bytes()
	}
	tbl, err := install.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: parsing install file: %w", op, err)
	}

	result := &InstallResult{}
	seen := make(map[string]ngdp.Key)

	for _, entry := range tbl.Filter(wantTags...) {
		if prevKey, dup := seen[entry.Name]; dup {
			if prevKey != entry.ContentKey {
				result.Conflicts++
			}
			continue
		}
		seen[entry.Name] = entry.ContentKey

		destPath := filepath.Join(destDir, entry.Name)
		if _, statErr := os.Stat(destPath); statErr == nil {
			result.Skipped++
			continue
		}

		ek, ok := b.Encoding.Lookup(entry.ContentKey)
		if !ok {
			return result, ngdp.New(ngdp.NotFound, op, fmt.Errorf("%s: content key %s not in encoding table", entry.Name, entry.ContentKey))
		}
		body, err := p.readResolved(b, ek.EncodedKey)
		if err != nil {
			return result, fmt.Errorf("%s: %s: %w", op, entry.Name, err)
		}
		if isBLTE(body) {
			var buf bytes.Buffer
			if err := blte.Decode(bytes.NewReader(body), &buf); err != nil {
				return result, fmt.Errorf("%s: %s: decoding BLTE: %w", op, entry.Name, err)
			}
			body = buf.Bytes()
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return result, ngdp.New(ngdp.Malformed, op, err)
		}
		if err := os.WriteFile(destPath, body, 0o644); err != nil {
			return result, ngdp.New(ngdp.Malformed, op, err)
		}
		result.Installed++
	}
	return result, nil
}

// readResolved returns an encoded key's raw bytes: from the loose object
// store if present there, otherwise extracted from build's archive group.
func (p *Planner) readResolved(b *Build, encodedKey ngdp.Key) ([]byte, error) {
	const op = "fetch.readResolved"

	if p.store.HasData(encodedKey) {
		r, err := p.store.Open(ngdp.KindData, encodedKey)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}

	if b.Groups == nil {
		return nil, ngdp.New(ngdp.NotFound, op, fmt.Errorf("encoded key %s: not loose and no archive group built", encodedKey))
	}
	entry, ok := b.Groups.Get(encodedKey)
	if !ok {
		return nil, ngdp.New(ngdp.NotFound, op, fmt.Errorf("encoded key %s: not loose and not in archive group", encodedKey))
	}

	src, closer, err := p.store.OpenReaderAt(ngdp.KindData, entry.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", entry.ArchiveKey, err)
	}
	defer closer.Close()
	return archive.Extract(src, entry)
}

func isBLTE(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "BLTE"
}
