package config

import (
	"fmt"
	"io"
	"strconv"

	"keg/ngdp"
)

// Encoding holds both the content-key and encoded-key of a build's
// encoding file, as recorded by the `encoding` config line.
type Encoding struct {
	ContentKey ngdp.Key
	EncodedKey ngdp.Key
}

// BuildConfig is the typed view over a parsed build-config document.
type BuildConfig struct {
	Root ngdp.Key

	Install     ngdp.Key
	InstallSize uint64

	Download     ngdp.Key
	DownloadSize uint64

	Encoding Encoding

	Patch       ngdp.Key
	PatchSize   uint64
	PatchConfig ngdp.Key

	HasPatch bool
}

// ParseBuildConfig parses and extracts a build-config document.
func ParseBuildConfig(r io.Reader) (*BuildConfig, error) {
	const op = "config.ParseBuildConfig"
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}

	bc := &BuildConfig{}

	if root := doc.Value("root"); root != "" {
		bc.Root, err = ngdp.ParseKey(root)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("root: %w", err))
		}
	}

	if tokens := doc.First("install"); len(tokens) > 0 {
		if bc.Install, err = ngdp.ParseKey(tokens[0]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("install: %w", err))
		}
		if len(tokens) > 1 {
			bc.InstallSize, err = strconv.ParseUint(tokens[1], 10, 64)
			if err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("install size: %w", err))
			}
		}
	}

	if tokens := doc.First("download"); len(tokens) > 0 {
		if bc.Download, err = ngdp.ParseKey(tokens[0]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("download: %w", err))
		}
		if len(tokens) > 1 {
			bc.DownloadSize, err = strconv.ParseUint(tokens[1], 10, 64)
			if err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("download size: %w", err))
			}
		}
	}

	if tokens := doc.First("encoding"); len(tokens) > 0 {
		if bc.Encoding.ContentKey, err = ngdp.ParseKey(tokens[0]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("encoding content key: %w", err))
		}
		if len(tokens) > 1 {
			if bc.Encoding.EncodedKey, err = ngdp.ParseKey(tokens[1]); err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("encoding encoded key: %w", err))
			}
		}
	}

	if tokens := doc.First("patch"); len(tokens) > 0 {
		bc.HasPatch = true
		if bc.Patch, err = ngdp.ParseKey(tokens[0]); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch: %w", err))
		}
		if len(tokens) > 1 {
			bc.PatchSize, err = strconv.ParseUint(tokens[1], 10, 64)
			if err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch size: %w", err))
			}
		}
	}

	if patchConfig := doc.Value("patch-config"); patchConfig != "" {
		if bc.PatchConfig, err = ngdp.ParseKey(patchConfig); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-config: %w", err))
		}
	}

	return bc, nil
}
