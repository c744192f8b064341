// Package fetch is the fetch planner: it resolves a remote to a CDN,
// walks the metadata DAG for a set of versions (configs, archive
// indices, archive groups, encoding/install tables), downloads whatever
// is missing locally with per-key dedup and bounded concurrency, and
// exposes an Install operation that materializes selected files on disk.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"keg/archive"
	"keg/blte"
	"keg/catalog"
	"keg/cdn"
	"keg/config"
	"keg/encoding"
	"keg/install"
	"keg/ngdp"
	"keg/objectstore"
	"keg/psv"
	"keg/psvtag"
)

// DefaultConcurrency bounds bulk-download parallelism when Options does
// not override it.
const DefaultConcurrency = 8

// Options configures a Planner's CDN selection and download behavior.
type Options struct {
	ForcedCDNURL  string
	PreferredCDNs []string
	Concurrency   int

	// Logger receives a structured record for every warning the plan
	// emits. nil uses slog.Default().
	Logger *slog.Logger
}

// Planner drives the fetch plan against one remote.
type Planner struct {
	cdn     *cdn.Client
	store   *objectstore.Store
	catalog *catalog.Store
	groups  *archive.GroupCache
	logger  *slog.Logger

	concurrency  int
	forcedURL    string
	preferredCDN []string

	sf singleflight.Group
}

// NewPlanner creates a Planner for remote, persisting objects in store
// and cached catalog rows in cat. groups may be nil to disable the
// archive-group disk cache.
func NewPlanner(remote string, store *objectstore.Store, cat *catalog.Store, groups *archive.GroupCache, opts Options) *Planner {
	return NewPlannerWithClient(cdn.New(remote), store, cat, groups, opts)
}

// NewPlannerWithClient is NewPlanner for callers that already built (or
// want to substitute, in tests) a *cdn.Client.
func NewPlannerWithClient(client *cdn.Client, store *objectstore.Store, cat *catalog.Store, groups *archive.GroupCache, opts Options) *Planner {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		cdn:          client,
		store:        store,
		catalog:      cat,
		groups:       groups,
		logger:       logger,
		concurrency:  concurrency,
		forcedURL:    opts.ForcedCDNURL,
		preferredCDN: opts.PreferredCDNs,
	}
}

// FetchVersions retrieves and parses the remote's versions catalog,
// caching the raw response and its decoded rows in the side-store.
func (p *Planner) FetchVersions(ctx context.Context) ([]VersionRow, error) {
	return fetchCatalogRows[VersionRow](ctx, p, "versions", "Versions")
}

// FetchCDNs retrieves and parses the remote's cdns catalog.
func (p *Planner) FetchCDNs(ctx context.Context) ([]CDNRow, error) {
	return fetchCatalogRows[CDNRow](ctx, p, "cdns", "CDNs")
}

// fetchCatalogRows fetches the catalog at path, decodes its PSV rows into
// T, and, when a side-store is configured, records the raw response and
// its rows under table.
func fetchCatalogRows[T any](ctx context.Context, p *Planner, path, table string) ([]T, error) {
	const opFmt = "fetch.Fetch%s"
	op := fmt.Sprintf(opFmt, table)

	body, err := p.cdn.FetchCatalog(ctx, path)
	if err != nil {
		return nil, err
	}

	doc, err := psv.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("parsing %s: %w", path, err))
	}

	var rows []T
	if err := psvtag.Unmarshal(doc, &rows); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("decoding %s: %w", path, err))
	}

	if p.catalog != nil {
		digest, err := p.catalog.RecordResponse(ctx, p.cdn.Remote(), path, body, catalog.SourceNetwork)
		if err == nil {
			_ = p.catalog.RecordRows(ctx, p.cdn.Remote(), digest, table, doc.Rows)
		}
	}

	return rows, nil
}

// FetchBGDL retrieves and parses the remote's background-download
// catalog. bgdl is optional: a remote that doesn't publish one 404s, and
// that 404 is reported as zero rows rather than an error.
func (p *Planner) FetchBGDL(ctx context.Context) ([]BGDLRow, error) {
	rows, err := fetchCatalogRows[BGDLRow](ctx, p, "bgdl", "BGDL")
	if ngdp.IsKind(err, ngdp.NotFound) {
		return nil, nil
	}
	return rows, err
}

// FetchBlobs retrieves and parses the remote's blobs catalog, then the
// game and install blob catalogs it indexes. All three are optional;
// each missing one is reported as zero rows rather than an error.
func (p *Planner) FetchBlobs(ctx context.Context) ([]BlobRow, error) {
	rows, err := fetchCatalogRows[BlobRow](ctx, p, "blobs", "Blobs")
	if ngdp.IsKind(err, ngdp.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	blobCatalogs := []struct{ path, table string }{
		{"blob/game", "BlobGame"},
		{"blob/install", "BlobInstall"},
	}
	for _, bc := range blobCatalogs {
		if _, err := p.fetchOptionalRaw(ctx, bc.path, bc.table); err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// fetchOptionalRaw retrieves and caches an optional catalog response that
// has no dedicated row type (the game/install blob catalogs), tolerating
// a 404 by returning ok=false instead of an error.
func (p *Planner) fetchOptionalRaw(ctx context.Context, path, table string) (ok bool, err error) {
	body, err := p.cdn.FetchCatalog(ctx, path)
	if ngdp.IsKind(err, ngdp.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.catalog != nil {
		if doc, perr := psv.Parse(bytes.NewReader(body)); perr == nil {
			digest, rerr := p.catalog.RecordResponse(ctx, p.cdn.Remote(), path, body, catalog.SourceNetwork)
			if rerr == nil {
				_ = p.catalog.RecordRows(ctx, p.cdn.Remote(), digest, table, doc.Rows)
			}
		} else {
			_, _ = p.catalog.RecordResponse(ctx, p.cdn.Remote(), path, body, catalog.SourceNetwork)
		}
	}
	return true, nil
}

// ResolveCDN fetches the cdns catalog and applies the selection policy.
func (p *Planner) ResolveCDN(ctx context.Context) (cdn.Resolved, error) {
	rows, err := p.FetchCDNs(ctx)
	if err != nil {
		return cdn.Resolved{}, err
	}
	infos := make([]cdn.Info, len(rows))
	for i, r := range rows {
		infos[i] = r.Info()
	}
	return cdn.SelectCDN(infos, p.forcedURL, p.preferredCDN)
}

// Build is one logical build identified by its (build_config, cdn_config,
// product_config) tuple, with the parsed configs attached once fetched.
type Build struct {
	BuildConfigKey   ngdp.Key
	CDNConfigKey     ngdp.Key
	ProductConfigKey ngdp.Key

	BuildConfig *config.BuildConfig
	CDNConfig   *config.CDNConfig
	PatchConfig *config.PatchConfig

	Encoding *encoding.Table
	Groups   *archive.Group
}

// Result summarizes a completed plan run.
type Result struct {
	// RunID identifies this plan invocation, for correlating log lines
	// and warnings across a concurrent run.
	RunID string

	CDN      cdn.Resolved
	Builds   []*Build
	Warnings []string

	// BGDL and Blobs are the optional background-download and blobs
	// catalogs, nil when the remote doesn't publish them.
	BGDL  []BGDLRow
	Blobs []BlobRow

	FetchedConfigs  int
	FetchedIndices  int
	FetchedArchives int
	FetchedLoose    int
	FetchedPatches  int

	// BytesFetched sums the size of every object actually written to the
	// store during this run (a cache hit contributes nothing).
	BytesFetched int64
}

// warn records a non-fatal problem on result and logs it, tagged with
// the run's RunID so concurrent runs' log lines stay distinguishable.
func (p *Planner) warn(result *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	result.Warnings = append(result.Warnings, msg)
	p.logger.Warn(msg, "run_id", result.RunID)
}

// RunOptions tunes one Plan invocation.
type RunOptions struct {
	// MetadataOnly stops the plan after configs and indices are fetched,
	// per spec step 6: no archive bodies, loose files, or patches.
	MetadataOnly bool
}

// dedupeBuilds collapses version rows sharing a (build_config, cdn_config,
// product_config) tuple to one logical build, preserving first-seen order.
func dedupeBuilds(versions []VersionRow) []*Build {
	seen := make(map[[3]ngdp.Key]struct{})
	var out []*Build
	for _, v := range versions {
		tuple := [3]ngdp.Key{v.BuildConfig, v.CDNConfig, v.ProductConfig}
		if _, ok := seen[tuple]; ok {
			continue
		}
		seen[tuple] = struct{}{}
		out = append(out, &Build{
			BuildConfigKey:   v.BuildConfig,
			CDNConfigKey:     v.CDNConfig,
			ProductConfigKey: v.ProductConfig,
		})
	}
	return out
}

// Run executes the full fetch plan for versions: resolve the CDN, fetch
// the optional bgdl and blobs catalogs, fetch and parse configs, fetch
// archive indices, and (unless MetadataOnly) fetch archive bodies, loose
// files, and patch bodies, merging each build's archive group along the
// way. A missing (404) bgdl or blobs catalog is skipped without a
// warning; any other failure fetching either is recorded as a warning,
// not an error.
func (p *Planner) Run(ctx context.Context, versions []VersionRow, opts RunOptions) (*Result, error) {
	resolvedCDN, err := p.ResolveCDN(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), CDN: resolvedCDN, Builds: dedupeBuilds(versions)}

	bgdl, err := p.FetchBGDL(ctx)
	if err != nil {
		p.warn(result, "fetching bgdl: %v", err)
	}
	result.BGDL = bgdl

	blobs, err := p.FetchBlobs(ctx)
	if err != nil {
		p.warn(result, "fetching blobs: %v", err)
	}
	result.Blobs = blobs

	if len(result.Builds) == 0 {
		return result, nil
	}

	if err := p.fetchConfigs(ctx, result); err != nil {
		return result, err
	}
	if err := p.parseConfigs(ctx, result); err != nil {
		return result, err
	}
	if err := p.fetchPatchConfigs(ctx, result); err != nil {
		return result, err
	}
	if err := p.fetchIndices(ctx, result); err != nil {
		return result, err
	}
	if opts.MetadataOnly {
		return result, nil
	}
	if err := p.fetchArchiveBodies(ctx, result); err != nil {
		return result, err
	}
	if err := p.buildArchiveGroups(ctx, result); err != nil {
		return result, err
	}
	if err := p.fetchEncodingAndLoose(ctx, result); err != nil {
		return result, err
	}
	if err := p.fetchInstallEntries(ctx, result); err != nil {
		return result, err
	}
	if err := p.fetchPatchFiles(ctx, result); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Planner) fetchConfigs(ctx context.Context, result *Result) error {
	keys := newKeySet()
	for _, b := range result.Builds {
		keys.addIfAbsent(b.BuildConfigKey, func(k ngdp.Key) bool { return p.store.HasConfig(k) })
		keys.addIfAbsent(b.CDNConfigKey, func(k ngdp.Key) bool { return p.store.HasConfig(k) })
	}
	n, err := p.downloadSet(ctx, result, keys.slice(), ngdp.KindConfig, cdn.KindConfig, false)
	result.FetchedConfigs += n
	return err
}

func (p *Planner) parseConfigs(ctx context.Context, result *Result) error {
	const op = "fetch.parseConfigs"
	for _, b := range result.Builds {
		bc, err := p.readBuildConfig(b.BuildConfigKey)
		if err != nil {
			return ngdp.New(ngdp.Malformed, op, err)
		}
		cc, err := p.readCDNConfig(b.CDNConfigKey)
		if err != nil {
			return ngdp.New(ngdp.Malformed, op, err)
		}
		b.BuildConfig = bc
		b.CDNConfig = cc
	}
	return nil
}

func (p *Planner) readBuildConfig(key ngdp.Key) (*config.BuildConfig, error) {
	r, err := p.store.Open(ngdp.KindConfig, key)
	if err != nil {
		return nil, fmt.Errorf("reading build-config %s: %w", key, err)
	}
	defer r.Close()
	return config.ParseBuildConfig(r)
}

func (p *Planner) readCDNConfig(key ngdp.Key) (*config.CDNConfig, error) {
	r, err := p.store.Open(ngdp.KindConfig, key)
	if err != nil {
		return nil, fmt.Errorf("reading cdn-config %s: %w", key, err)
	}
	defer r.Close()
	return config.ParseCDNConfig(r)
}

func (p *Planner) fetchPatchConfigs(ctx context.Context, result *Result) error {
	keys := newKeySet()
	for _, b := range result.Builds {
		if b.BuildConfig.HasPatch && !b.BuildConfig.PatchConfig.IsZero() {
			keys.addIfAbsent(b.BuildConfig.PatchConfig, func(k ngdp.Key) bool { return p.store.HasConfig(k) })
		}
	}
	n, err := p.downloadSet(ctx, result, keys.slice(), ngdp.KindConfig, cdn.KindConfig, false)
	result.FetchedConfigs += n
	if err != nil {
		return err
	}
	for _, b := range result.Builds {
		if !b.BuildConfig.HasPatch || b.BuildConfig.PatchConfig.IsZero() {
			continue
		}
		r, err := p.store.Open(ngdp.KindConfig, b.BuildConfig.PatchConfig)
		if err != nil {
			return fmt.Errorf("fetch.fetchPatchConfigs: %w", err)
		}
		pc, err := config.ParsePatchConfig(r)
		r.Close()
		if err != nil {
			return err
		}
		b.PatchConfig = pc
	}
	return nil
}

// fetchIndices downloads the archives set and the distinct patch-archives
// set, resolving Open Question (i): the two are tracked separately rather
// than sharing one variable.
func (p *Planner) fetchIndices(ctx context.Context, result *Result) error {
	archiveKeys := newKeySet()
	patchIndexKeys := newKeySet()
	for _, b := range result.Builds {
		for _, k := range b.CDNConfig.Archives {
			archiveKeys.addIfAbsent(k, func(k ngdp.Key) bool { return p.store.HasIndex(k) })
		}
		for _, k := range b.CDNConfig.PatchArchives {
			patchIndexKeys.addIfAbsent(k, func(k ngdp.Key) bool { return p.store.HasPatchIndex(k) })
		}
	}
	n1, err := p.downloadSet(ctx, result, archiveKeys.slice(), ngdp.KindIndex, cdn.KindData, true)
	result.FetchedIndices += n1
	if err != nil {
		return err
	}
	n2, err := p.downloadSet(ctx, result, patchIndexKeys.slice(), ngdp.KindPatchIndex, cdn.KindPatch, true)
	result.FetchedIndices += n2
	return err
}

func (p *Planner) fetchArchiveBodies(ctx context.Context, result *Result) error {
	keys := newKeySet()
	for _, b := range result.Builds {
		for _, k := range b.CDNConfig.Archives {
			keys.addIfAbsent(k, func(k ngdp.Key) bool { return p.store.HasData(k) })
		}
	}
	n, err := p.downloadSet(ctx, result, keys.slice(), ngdp.KindData, cdn.KindData, false)
	result.FetchedArchives += n
	return err
}

// buildArchiveGroups merges (or loads from cache) each build's archive
// group index, per spec.md §4.D: first occurrence wins on duplicate keys.
func (p *Planner) buildArchiveGroups(ctx context.Context, result *Result) error {
	const op = "fetch.buildArchiveGroups"
	for _, b := range result.Builds {
		if b.CDNConfig.HasArchiveGroup && p.groups != nil {
			if g, ok, err := p.groups.Load(ctx, b.CDNConfig.ArchiveGroup); err == nil && ok {
				b.Groups = g
				continue
			}
		}

		indices := make([]*archive.Index, len(b.CDNConfig.Archives))
		for i, k := range b.CDNConfig.Archives {
			r, err := p.store.Open(ngdp.KindIndex, k)
			if err != nil {
				return ngdp.New(ngdp.Malformed, op, fmt.Errorf("opening index %s: %w", k, err))
			}
			data, err := io.ReadAll(r)
			r.Close()
			if err != nil {
				return ngdp.New(ngdp.Malformed, op, fmt.Errorf("reading index %s: %w", k, err))
			}
			idx, err := archive.ParseIndex(data)
			if err != nil {
				return err
			}
			indices[i] = idx
		}
		group := archive.Merge(b.CDNConfig.Archives, indices)
		b.Groups = group

		if b.CDNConfig.HasArchiveGroup && p.groups != nil {
			if err := p.groups.Store(ctx, b.CDNConfig.ArchiveGroup, group); err != nil {
				p.warn(result, "caching archive group %s: %v", b.CDNConfig.ArchiveGroup, err)
			}
		}
	}
	return nil
}

// fetchEncodingAndLoose fetches each build's encoding file directly (as
// the teacher's client does, bypassing the archive group for this one
// bootstrap object) and then ensures root/install/download are available
// either inside an archive (already downloaded) or as loose objects.
func (p *Planner) fetchEncodingAndLoose(ctx context.Context, result *Result) error {
	encodingKeys := newKeySet()
	for _, b := range result.Builds {
		if !b.BuildConfig.Encoding.EncodedKey.IsZero() {
			encodingKeys.addIfAbsent(b.BuildConfig.Encoding.EncodedKey, func(k ngdp.Key) bool { return p.store.HasData(k) })
		}
	}
	n, err := p.downloadSet(ctx, result, encodingKeys.slice(), ngdp.KindData, cdn.KindData, false)
	result.FetchedLoose += n
	if err != nil {
		return err
	}

	looseKeys := newKeySet()
	for _, b := range result.Builds {
		if !b.BuildConfig.Encoding.EncodedKey.IsZero() {
			tbl, err := p.readEncoding(b.BuildConfig.Encoding.EncodedKey)
			if err != nil {
				return err
			}
			b.Encoding = tbl
		}
		for _, ck := range []ngdp.Key{b.BuildConfig.Root, b.BuildConfig.Install, b.BuildConfig.Download} {
			if ck.IsZero() || b.Encoding == nil {
				continue
			}
			ek, ok := b.Encoding.Lookup(ck)
			if !ok {
				continue
			}
			if _, inArchive := b.Groups.Get(ek.EncodedKey); inArchive {
				continue
			}
			looseKeys.addIfAbsent(ek.EncodedKey, func(k ngdp.Key) bool { return p.store.HasData(k) })
		}
	}
	n2, err := p.downloadSet(ctx, result, looseKeys.slice(), ngdp.KindData, cdn.KindData, false)
	result.FetchedLoose += n2
	return err
}

// fetchInstallEntries parses each build's now-locally-available install
// file and queues the encoded keys of every entry it names that is
// neither loose nor resolvable through the build's archive group. The
// encoding file lists every content key the build knows about, but only
// the install file's entries are the ones a plain fetch (as opposed to
// Install) needs to materialize ahead of time.
func (p *Planner) fetchInstallEntries(ctx context.Context, result *Result) error {
	keys := newKeySet()
	for _, b := range result.Builds {
		if b.BuildConfig.Install.IsZero() || b.Encoding == nil {
			continue
		}
		installEntry, ok := b.Encoding.Lookup(b.BuildConfig.Install)
		if !ok {
			continue
		}
		raw, err := p.readResolved(b, installEntry.EncodedKey)
		if err != nil {
			continue
		}
		if isBLTE(raw) {
			var buf bytes.Buffer
			if err := blte.Decode(bytes.NewReader(raw), &buf); err != nil {
				continue
			}
			raw = buf.Bytes()
		}
		tbl, err := install.Parse(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		for _, e := range tbl.Entries {
			ek, ok := b.Encoding.Lookup(e.ContentKey)
			if !ok {
				continue
			}
			if _, inArchive := b.Groups.Get(ek.EncodedKey); inArchive {
				continue
			}
			keys.addIfAbsent(ek.EncodedKey, func(k ngdp.Key) bool { return p.store.HasData(k) })
		}
	}
	n, err := p.downloadSet(ctx, result, keys.slice(), ngdp.KindData, cdn.KindData, false)
	result.FetchedLoose += n
	return err
}

func (p *Planner) readEncoding(key ngdp.Key) (*encoding.Table, error) {
	r, err := p.store.Open(ngdp.KindData, key)
	if err != nil {
		return nil, fmt.Errorf("fetch.readEncoding: opening %s: %w", key, err)
	}
	defer r.Close()
	return encoding.Parse(r)
}

func (p *Planner) fetchPatchFiles(ctx context.Context, result *Result) error {
	keys := newKeySet()
	for _, b := range result.Builds {
		if b.PatchConfig == nil {
			continue
		}
		for _, entry := range b.PatchConfig.Entries {
			keys.addIfAbsent(entry.PatchKey, func(k ngdp.Key) bool { return p.store.HasPatch(k) })
		}
	}
	n, err := p.downloadSet(ctx, result, keys.slice(), ngdp.KindPatch, cdn.KindPatch, false)
	result.FetchedPatches += n
	return err
}

// keySet is an insertion-ordered set of content keys, used to build each
// "to-fetch" collection the plan computes per spec.md §4.E.
type keySet struct {
	seen  map[ngdp.Key]struct{}
	order []ngdp.Key
}

func newKeySet() *keySet {
	return &keySet{seen: make(map[ngdp.Key]struct{})}
}

// addIfAbsent adds key to the set unless it is zero, already present in
// the set, or present() reports it already exists in the object store.
func (s *keySet) addIfAbsent(key ngdp.Key, present func(ngdp.Key) bool) {
	if key.IsZero() {
		return
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	if present(key) {
		return
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
}

func (s *keySet) slice() []ngdp.Key {
	return s.order
}

// downloadSet fetches every key in keys that is still missing from the
// store, bounded to p.concurrency concurrent downloads and deduplicated
// per key via singleflight. Network and not-found failures are recorded
// as warnings and skipped; integrity failures abort the whole set.
func (p *Planner) downloadSet(ctx context.Context, result *Result, keys []ngdp.Key, storeKind ngdp.ContentKind, urlKind cdn.ObjectKind, isIndex bool) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var mu sync.Mutex
	var fetched int32

	for _, key := range keys {
		key := key
		g.Go(func() error {
			sfKey := fmt.Sprintf("%d:%s:%t", storeKind, key, isIndex)
			_, err, _ := p.sf.Do(sfKey, func() (any, error) {
				if p.store.Has(storeKind, key) {
					return nil, nil
				}

				var rc io.ReadCloser
				var ferr error
				if isIndex {
					rc, ferr = p.cdn.FetchIndex(gctx, result.CDN, urlKind, key)
				} else {
					rc, ferr = p.cdn.FetchObject(gctx, result.CDN, urlKind, key)
				}
				if ferr != nil {
					if ngdp.IsKind(ferr, ngdp.NetworkError) || ngdp.IsKind(ferr, ngdp.NotFound) {
						mu.Lock()
						p.warn(result, "fetch %s %s: %v", storeKind, key, ferr)
						mu.Unlock()
						return nil, nil
					}
					return nil, ferr
				}
				defer rc.Close()

				counting := &countingReader{r: rc}
				if werr := p.store.Write(storeKind, key, counting); werr != nil {
					if ngdp.IsKind(werr, ngdp.IntegrityError) {
						return nil, werr
					}
					mu.Lock()
					p.warn(result, "write %s %s: %v", storeKind, key, werr)
					mu.Unlock()
					return nil, nil
				}
				atomic.AddInt32(&fetched, 1)
				atomic.AddInt64(&result.BytesFetched, counting.n)
				return nil, nil
			})
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return int(fetched), err
	}
	return int(fetched), nil
}

// countingReader tallies bytes read, so downloadSet can report total
// transfer size without a second pass over the written object.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
