// Package fallback supplies degraded responses when both the network and
// the cache have failed. The goal is that a client never sees a raw
// connection error: HTML requests get the offline page, image requests get
// a placeholder, everything else gets a plain-text 503.
package fallback

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"edgecache/config"
	"edgecache/internal/cachestore"
	"edgecache/internal/core"
)

//go:embed assets/offline.html
var defaultPage []byte

//go:embed assets/offline.svg
var defaultImage []byte

// Well-known keys for the offline assets inside the offline namespace.
const (
	pageKey  = "edgecache:offline-page"
	imageKey = "edgecache:offline-image"
)

// HeaderServedFrom marks responses that came out of the fallback path.
const HeaderServedFrom = "X-Served-From"

// Provider implements core.FallbackProvider backed by the offline cache
// namespace, with embedded assets as a last resort.
type Provider struct {
	store cachestore.Store
	ns    core.Namespaces
	page  []byte
	image []byte
}

// New creates a Provider. Configured asset paths override the embedded
// defaults; a missing override file is a warning, not a failure.
func New(store cachestore.Store, ns core.Namespaces, cfg config.FallbackConfig) *Provider {
	p := &Provider{
		store: store,
		ns:    ns,
		page:  defaultPage,
		image: defaultImage,
	}
	if cfg.PagePath != "" {
		if data, err := os.ReadFile(cfg.PagePath); err == nil {
			p.page = data
		} else {
			slog.Warn("failed to read offline page override, using embedded default",
				"path", cfg.PagePath, "error", err)
		}
	}
	if cfg.ImagePath != "" {
		if data, err := os.ReadFile(cfg.ImagePath); err == nil {
			p.image = data
		} else {
			slog.Warn("failed to read offline image override, using embedded default",
				"path", cfg.ImagePath, "error", err)
		}
	}
	return p
}

// Seed writes the offline page and placeholder image into the offline
// namespace. Called at install time; each asset is stored independently.
func (p *Provider) Seed(ctx context.Context) error {
	page := &core.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       p.page,
	}
	if err := p.store.Set(ctx, p.ns.Offline(), pageKey, page); err != nil {
		return fmt.Errorf("failed to seed offline page: %w", err)
	}

	image := &core.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/svg+xml"}},
		Body:       p.image,
	}
	if err := p.store.Set(ctx, p.ns.Offline(), imageKey, image); err != nil {
		return fmt.Errorf("failed to seed offline image: %w", err)
	}
	return nil
}

// Fallback inspects the failed request's Accept header to decide the
// fallback shape: HTML document requests receive the offline page, image
// requests the placeholder icon, anything else a synthetic 503.
func (p *Provider) Fallback(ctx context.Context, req *http.Request) *core.Response {
	accept := req.Header.Get("Accept")

	switch {
	case strings.Contains(accept, "text/html"):
		return p.fromOfflineCache(ctx, pageKey, p.page, "text/html; charset=utf-8")
	case strings.Contains(accept, "image/"):
		return p.fromOfflineCache(ctx, imageKey, p.image, "image/svg+xml")
	default:
		return unavailable()
	}
}

// fromOfflineCache reads a seeded asset, falling back to the embedded copy
// if the store read fails for any reason.
func (p *Provider) fromOfflineCache(ctx context.Context, key string, embedded []byte, contentType string) *core.Response {
	resp, err := p.store.Get(ctx, p.ns.Offline(), key)
	if err != nil || resp == nil {
		if err != nil {
			slog.Warn("offline cache read failed, serving embedded asset", "key", key, "error", err)
		}
		resp = &core.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{contentType}},
			Body:       embedded,
		}
	}
	resp.Source = core.SourceFallback
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(HeaderServedFrom, "offline-fallback")
	return resp
}

// unavailable builds the catch-all synthetic 503.
func unavailable() *core.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Retry-After", "300")
	header.Set(HeaderServedFrom, "offline-fallback")
	return &core.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     header,
		Body:       []byte("Service temporarily unavailable. Please try again later.\n"),
		StoredAt:   time.Time{},
		Source:     core.SourceFallback,
	}
}
