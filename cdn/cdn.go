// Package cdn wraps HTTP access to an NGDP remote: fetching the raw
// catalog responses (versions, cdns, bgdl, blobs), selecting a CDN
// from the cdns catalog, and constructing/fetching config, data, and
// patch object URLs under the selected CDN's path.
package cdn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"keg/ngdp"
)

// Getter and Doer are the two *http.Client methods a substitute transport
// must provide, split out purely so tests can substitute a fake one. The
// client itself issues every request through Do.
type Getter interface {
	Get(url string) (*http.Response, error)
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// httpClient is the minimal surface Client needs from *http.Client.
type httpClient interface {
	Getter
	Doer
}

// Info describes one row of the cdns catalog.
type Info struct {
	Name       string
	Path       string
	Hosts      []string
	Servers    []string
	ConfigPath string
}

// Resolved is a CDN selection ready for URL construction: a server
// (scheme://host) paired with the path prefix under it.
type Resolved struct {
	Server string
	Path   string
}

// Client issues HTTP requests against an NGDP remote.
type Client struct {
	remote string
	http   httpClient
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.DefaultClient.
func WithHTTPClient(c httpClient) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a Client for the given remote base URL (e.g.
// "http://us.patch.battle.net:1119/wow").
func New(remote string, opts ...Option) *Client {
	c := &Client{
		remote: strings.TrimRight(remote, "/"),
		http:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remote returns the client's configured remote base URL.
func (c *Client) Remote() string { return c.remote }

// FetchCatalog retrieves <remote>/<path> (path is one of "versions",
// "cdns", "bgdl", "blobs", or "blob/<name>") and returns its raw body.
// A 404 is reported as ngdp.NotFound so callers can distinguish an
// absent optional catalog from a transport failure.
func (c *Client) FetchCatalog(ctx context.Context, path string) ([]byte, error) {
	const op = "cdn.FetchCatalog"
	u := c.remote + "/" + path
	return c.get(ctx, op, u)
}

// SelectCDN implements the selection policy: a forced URL wins outright;
// otherwise the first catalog entry whose Name matches (case-insensitive)
// an entry in preferred; otherwise the first catalog entry.
func SelectCDN(catalog []Info, forcedURL string, preferred []string) (Resolved, error) {
	const op = "cdn.SelectCDN"

	if forcedURL != "" {
		u, err := url.Parse(forcedURL)
		if err != nil {
			return Resolved{}, ngdp.New(ngdp.Malformed, op, fmt.Errorf("parsing forced CDN URL: %w", err))
		}
		if u.Scheme == "" || u.Host == "" || u.Path == "" {
			return Resolved{}, ngdp.Newf(ngdp.Malformed, op, "forced CDN URL %q missing scheme, host, or path", forcedURL)
		}
		return Resolved{Server: u.Scheme + "://" + u.Host, Path: strings.TrimLeft(u.Path, "/")}, nil
	}

	if len(catalog) == 0 {
		return Resolved{}, ngdp.New(ngdp.NotFound, op, fmt.Errorf("cdns catalog is empty"))
	}

	for _, want := range preferred {
		for _, entry := range catalog {
			if strings.EqualFold(entry.Name, want) {
				return resolveEntry(entry)
			}
		}
	}

	return resolveEntry(catalog[0])
}

func resolveEntry(entry Info) (Resolved, error) {
	const op = "cdn.SelectCDN"
	if len(entry.Hosts) == 0 {
		return Resolved{}, ngdp.Newf(ngdp.Malformed, op, "cdn %q advertises no hosts", entry.Name)
	}
	return Resolved{Server: "http://" + entry.Hosts[0], Path: entry.Path}, nil
}

// ObjectKind selects the subdirectory a content key's object lives under.
type ObjectKind string

const (
	KindConfig ObjectKind = "config"
	KindData   ObjectKind = "data"
	KindPatch  ObjectKind = "patch"
)

// ObjectURL constructs the URL for a config/data/patch object (or,
// with suffix ".index", its archive index) under a resolved CDN.
func ObjectURL(cdn Resolved, kind ObjectKind, key ngdp.Key, suffix string) string {
	dir1, dir2, full := key.Partition()
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s%s", cdn.Server, cdn.Path, kind, dir1, dir2, full, suffix)
}

// FetchObject GETs the object identified by key under kind, returning
// its body stream. The caller must close it.
func (c *Client) FetchObject(ctx context.Context, cdn Resolved, kind ObjectKind, key ngdp.Key) (io.ReadCloser, error) {
	const op = "cdn.FetchObject"
	u := ObjectURL(cdn, kind, key, "")
	return c.getStream(ctx, op, u)
}

// FetchIndex GETs the `.index` sidecar for an archive key.
func (c *Client) FetchIndex(ctx context.Context, cdn Resolved, kind ObjectKind, key ngdp.Key) (io.ReadCloser, error) {
	const op = "cdn.FetchIndex"
	u := ObjectURL(cdn, kind, key, ".index")
	return c.getStream(ctx, op, u)
}

// FetchRange performs a ranged GET over a data object, used to extract
// a single archive-group entry without downloading the whole archive.
func (c *Client) FetchRange(ctx context.Context, cdn Resolved, kind ObjectKind, key ngdp.Key, offset, size uint32) (io.ReadCloser, error) {
	const op = "cdn.FetchRange"
	u := ObjectURL(cdn, kind, key, "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ngdp.New(ngdp.NetworkError, op, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, uint64(offset)+uint64(size)-1))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ngdp.New(ngdp.NetworkError, op, err)
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, ngdp.Newf(ngdp.NetworkError, op, "%s: unexpected status %s", u, resp.Status)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, op, u string) ([]byte, error) {
	rc, err := c.getStream(ctx, op, u)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, ngdp.New(ngdp.NetworkError, op, fmt.Errorf("reading %s: %w", u, err))
	}
	return body, nil
}

func (c *Client) getStream(ctx context.Context, op, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ngdp.New(ngdp.NetworkError, op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ngdp.New(ngdp.NetworkError, op, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ngdp.Newf(ngdp.NotFound, op, "%s: not found", u)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, ngdp.Newf(ngdp.NetworkError, op, "%s: unexpected status %s", u, resp.Status)
	}
	return resp.Body, nil
}
