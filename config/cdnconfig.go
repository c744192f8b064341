package config

import (
	"fmt"
	"io"

	"keg/ngdp"
)

// CDNConfig is the typed view over a parsed cdn-config document.
type CDNConfig struct {
	Archives     []ngdp.Key
	ArchiveGroup ngdp.Key
	HasArchiveGroup bool

	PatchArchives     []ngdp.Key
	PatchArchiveGroup ngdp.Key
	HasPatchArchiveGroup bool
}

// ParseCDNConfig parses and extracts a cdn-config document.
func ParseCDNConfig(r io.Reader) (*CDNConfig, error) {
	const op = "config.ParseCDNConfig"
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}

	cc := &CDNConfig{}

	if tokens := doc.First("archives"); len(tokens) > 0 {
		cc.Archives, err = parseKeyList(tokens)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("archives: %w", err))
		}
	}

	if ag := doc.Value("archive-group"); ag != "" {
		cc.HasArchiveGroup = true
		if cc.ArchiveGroup, err = ngdp.ParseKey(ag); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("archive-group: %w", err))
		}
	}

	if tokens := doc.First("patch-archives"); len(tokens) > 0 {
		cc.PatchArchives, err = parseKeyList(tokens)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-archives: %w", err))
		}
	}

	if pag := doc.Value("patch-archive-group"); pag != "" {
		cc.HasPatchArchiveGroup = true
		if cc.PatchArchiveGroup, err = ngdp.ParseKey(pag); err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("patch-archive-group: %w", err))
		}
	}

	return cc, nil
}

func parseKeyList(tokens []string) ([]ngdp.Key, error) {
	keys := make([]ngdp.Key, len(tokens))
	for i, t := range tokens {
		k, err := ngdp.ParseKey(t)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		keys[i] = k
	}
	return keys, nil
}
