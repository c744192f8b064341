package fetch

import (
	"strings"

	"keg/cdn"
	"keg/ngdp"
)

// HostList binds a space-separated PSV cell (the cdns catalog's Hosts and
// Servers columns) into a slice of hostnames.
type HostList []string

// UnmarshalText implements encoding.TextUnmarshaler for psvtag.
func (h *HostList) UnmarshalText(text []byte) error {
	*h = strings.Fields(string(text))
	return nil
}

// VersionRow is one row of the Versions catalog table.
type VersionRow struct {
	Region        string
	BuildConfig   ngdp.Key
	CDNConfig     ngdp.Key
	KeyRing       ngdp.Key
	BuildID       int64 `psv:"BuildId"`
	VersionsName  string
	ProductConfig ngdp.Key
}

// CDNRow is one row of the CDNs catalog table.
type CDNRow struct {
	Name       string
	Path       string
	Hosts      HostList
	Servers    HostList
	ConfigPath string
}

// BGDLRow is one row of the background-download catalog, which shares
// the versions catalog's schema.
type BGDLRow struct {
	Region        string
	BuildConfig   ngdp.Key
	CDNConfig     ngdp.Key
	KeyRing       ngdp.Key
	BuildID       int64 `psv:"BuildId"`
	VersionsName  string
	ProductConfig ngdp.Key
}

// BlobRow is one row of the blobs catalog: a region and the content key
// of that region's blob, which itself indexes the game/install blobs.
type BlobRow struct {
	Region string
	Blobs  ngdp.Key
}

// Info converts a decoded catalog row into the cdn package's selection type.
func (r CDNRow) Info() cdn.Info {
	return cdn.Info{
		Name:       r.Name,
		Path:       r.Path,
		Hosts:      r.Hosts,
		Servers:    r.Servers,
		ConfigPath: r.ConfigPath,
	}
}
