// Package upstream resolves gateway requests to origin URLs and fetches
// them over the network.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"edgecache/config"
	"edgecache/internal/core"
)

// ProxyPrefix marks request paths that carry an absolute URL to fetch
// (CDN passthrough), e.g. /proxy/https://fonts.googleapis.com/css2?....
const ProxyPrefix = "/proxy/"

// maxResponseBody caps snapshot sizes (32MB). Larger bodies are truncated
// fetches and returned as errors rather than half-cached.
const maxResponseBody = 32 * 1024 * 1024

// requestHeaders are the client headers forwarded upstream.
var requestHeaders = []string{"Accept", "Accept-Language", "User-Agent", "If-None-Match", "If-Modified-Since"}

// hopHeaders are stripped from snapshots per RFC 9110 §7.6.1.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Fetcher resolves and performs upstream fetches.
type Fetcher struct {
	client  *http.Client
	origin  *url.URL
	allowed map[string]bool
}

// New creates a Fetcher for the configured origin. The origin may be empty
// when the gateway serves only absolute passthrough URLs.
func New(cfg config.UpstreamConfig, client *http.Client) (*Fetcher, error) {
	f := &Fetcher{
		client:  client,
		allowed: make(map[string]bool, len(cfg.AllowedHosts)),
	}
	if cfg.Origin != "" {
		origin, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream origin %q: %w", cfg.Origin, err)
		}
		if origin.Scheme == "" || origin.Host == "" {
			return nil, fmt.Errorf("upstream origin %q must include scheme and host", cfg.Origin)
		}
		f.origin = origin
	}
	for _, host := range cfg.AllowedHosts {
		f.allowed[strings.ToLower(host)] = true
	}
	return f, nil
}

// Resolve maps an incoming request to the upstream URL string used both as
// the cache key and as the fetch target. Paths under ProxyPrefix carry an
// absolute URL restricted to the allowed host list; everything else
// resolves against the origin.
func (f *Fetcher) Resolve(req *http.Request) (string, error) {
	if raw, ok := strings.CutPrefix(req.URL.Path, ProxyPrefix); ok {
		if req.URL.RawQuery != "" {
			raw += "?" + req.URL.RawQuery
		}
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return "", core.NewInvalidRequestError("proxy path must carry an absolute URL", err)
		}
		if !f.allowed[strings.ToLower(target.Hostname())] {
			return "", core.NewInvalidRequestError("host not allowed: "+target.Hostname(), nil)
		}
		return target.String(), nil
	}

	if f.origin == nil {
		return "", core.NewInvalidRequestError("no upstream origin configured", nil)
	}
	target := *f.origin
	target.Path = singleJoin(f.origin.Path, req.URL.Path)
	target.RawQuery = req.URL.RawQuery
	return target.String(), nil
}

// Fetch performs a single network attempt for the resolved URL and returns
// an immutable snapshot. Transport failures are errors; HTTP error statuses
// are valid snapshots; the strategy layer decides what to cache.
func (f *Fetcher) Fetch(ctx context.Context, req *http.Request) (*core.Response, error) {
	target, err := f.Resolve(req)
	if err != nil {
		return nil, err
	}
	return f.FetchURL(ctx, target, req.Header)
}

// FetchURL fetches an already-resolved URL. Used by the warmup path, which
// has no inbound request to resolve from.
func (f *Fetcher) FetchURL(ctx context.Context, target string, inbound http.Header) (*core.Response, error) {
	upReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, core.NewUpstreamError("failed to build upstream request", err)
	}
	for _, h := range requestHeaders {
		if v := inbound.Get(h); v != "" {
			upReq.Header.Set(h, v)
		}
	}

	resp, err := f.client.Do(upReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.NewTimeoutError("upstream fetch timed out", err)
		}
		return nil, core.NewUpstreamError("upstream fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, core.NewUpstreamError("failed to read upstream body", err)
	}
	if len(body) > maxResponseBody {
		return nil, core.NewUpstreamError("upstream body exceeds snapshot limit", nil)
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}

	return &core.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
		Source:     core.SourceNetwork,
	}, nil
}

func singleJoin(a, b string) string {
	switch {
	case a == "":
		return b
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	default:
		return a + b
	}
}
