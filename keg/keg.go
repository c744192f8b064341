// Package keg is the public facade tying the object store, catalog
// side-store, archive-group cache, and fetch planner together into the
// operations a caller actually wants: list versions, pick CDNs, fetch a
// build, and install files from it. CLI dispatch, config persistence,
// and human-readable output belong to a caller (cmd/kegctl is one); this
// package is the library.
package keg

import (
	"context"
	"fmt"
	"log/slog"

	badger4 "github.com/ipfs/go-ds-badger4"

	"keg/archive"
	"keg/catalog"
	"keg/cdn"
	"keg/fetch"
	"keg/ngdp"
	"keg/objectstore"
)

// Config configures a Client's on-disk layout and CDN selection policy.
type Config struct {
	// Remote is the NGDP product remote base, e.g.
	// "http://us.patch.battle.net:1119/wow".
	Remote string

	// StoreDir roots the local object store, catalog database, and
	// archive-group cache. Subdirectories are created as needed.
	StoreDir string

	// ForcedCDNURL and PreferredCDNs tune fetch.Options' CDN selection.
	ForcedCDNURL  string
	PreferredCDNs []string

	// Concurrency bounds bulk-download parallelism; <= 0 uses
	// fetch.DefaultConcurrency.
	Concurrency int

	// DisableCatalog skips opening the SQLite side-store (fetch planning
	// still works; catalog responses are simply not cached across runs).
	DisableCatalog bool
	// DisableGroupCache skips opening the badger-backed archive-group
	// cache (archive groups are rebuilt from indices every run).
	DisableGroupCache bool

	// Logger receives the planner's warning records. nil uses
	// slog.Default().
	Logger *slog.Logger
}

// Client is an opened KEG store bound to one remote.
type Client struct {
	cfg     Config
	store   *objectstore.Store
	catalog *catalog.Store
	groups  *archive.GroupCache
	planner *fetch.Planner
}

// Open initializes (or reopens) a Client per cfg. The caller must Close
// it when done.
func Open(cfg Config) (*Client, error) {
	const op = "keg.Open"

	if cfg.Remote == "" {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("Remote is required"))
	}
	if cfg.StoreDir == "" {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("StoreDir is required"))
	}

	store, err := objectstore.Open(cfg.StoreDir+"/objects", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: opening object store: %w", op, err)
	}

	c := &Client{cfg: cfg, store: store}

	if !cfg.DisableCatalog {
		cat, err := catalog.Open(cfg.StoreDir + "/catalog.db")
		if err != nil {
			return nil, fmt.Errorf("%s: opening catalog: %w", op, err)
		}
		c.catalog = cat
	}

	if !cfg.DisableGroupCache {
		groups, err := archive.OpenGroupCache(cfg.StoreDir+"/groupcache", &badger4.DefaultOptions)
		if err != nil {
			return nil, fmt.Errorf("%s: opening archive-group cache: %w", op, err)
		}
		c.groups = groups
	}

	c.planner = fetch.NewPlanner(cfg.Remote, store, c.catalog, c.groups, fetch.Options{
		ForcedCDNURL:  cfg.ForcedCDNURL,
		PreferredCDNs: cfg.PreferredCDNs,
		Concurrency:   cfg.Concurrency,
		Logger:        cfg.Logger,
	})

	return c, nil
}

// Close releases the underlying store handles.
func (c *Client) Close() error {
	var firstErr error
	if c.catalog != nil {
		if err := c.catalog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.groups != nil {
		if err := c.groups.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Store exposes the underlying object store, for callers that need
// direct existence checks or a Repair sweep outside of a Fetch call.
func (c *Client) Store() *objectstore.Store { return c.store }

// Versions lists the remote's versions catalog.
func (c *Client) Versions(ctx context.Context) ([]fetch.VersionRow, error) {
	return c.planner.FetchVersions(ctx)
}

// CDNs lists the remote's cdns catalog.
func (c *Client) CDNs(ctx context.Context) ([]fetch.CDNRow, error) {
	return c.planner.FetchCDNs(ctx)
}

// ResolveCDN applies the configured CDN selection policy against the
// remote's cdns catalog.
func (c *Client) ResolveCDN(ctx context.Context) (cdn.Resolved, error) {
	return c.planner.ResolveCDN(ctx)
}

// Fetch runs a complete fetch plan for versions: CDN resolution, configs,
// archive indices, and (unless opts.MetadataOnly) archive bodies, loose
// files, and patches.
func (c *Client) Fetch(ctx context.Context, versions []fetch.VersionRow, opts fetch.RunOptions) (*fetch.Result, error) {
	return c.planner.Run(ctx, versions, opts)
}

// Install materializes selected files of build's install table under
// destDir. build must come from a prior Fetch result.
func (c *Client) Install(ctx context.Context, build *fetch.Build, destDir string, wantTags ...string) (*fetch.InstallResult, error) {
	return c.planner.Install(ctx, build, destDir, wantTags...)
}

// Repair runs the integrity-repair sweep over the local object store.
func (c *Client) Repair(ctx context.Context, fullVerify bool) (*fetch.RepairResult, error) {
	return c.planner.Repair(ctx, fullVerify)
}
