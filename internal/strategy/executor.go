// Package strategy executes the four fetch strategies against the cache
// store and the upstream fetcher.
//
// All strategies treat network errors as recoverable: they degrade to the
// cache, then to the offline fallback, and never surface a transport error
// to the client. A strategy makes a single network attempt per invocation;
// there is no retry with backoff.
package strategy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"edgecache/internal/cachestore"
	"edgecache/internal/core"
	"edgecache/internal/observability"
	"edgecache/internal/rules"
)

// Executor serves classified requests.
type Executor struct {
	store    cachestore.Store
	fetcher  core.Fetcher
	fallback core.FallbackProvider

	// networkFirstTimeout bounds the network attempt in the network-first
	// strategy. The timeout cancels the in-flight fetch; it is not a
	// fire-and-forget race.
	networkFirstTimeout time.Duration

	// revalidateTimeout bounds background revalidation fetches, which run
	// on a detached context so a client disconnect does not abort them.
	revalidateTimeout time.Duration
}

// Config holds executor tuning.
type Config struct {
	NetworkFirstTimeout time.Duration
	RevalidateTimeout   time.Duration
}

// New creates an Executor.
func New(store cachestore.Store, fetcher core.Fetcher, fallback core.FallbackProvider, cfg Config) *Executor {
	if cfg.NetworkFirstTimeout <= 0 {
		cfg.NetworkFirstTimeout = 4 * time.Second
	}
	if cfg.RevalidateTimeout <= 0 {
		cfg.RevalidateTimeout = 15 * time.Second
	}
	return &Executor{
		store:               store,
		fetcher:             fetcher,
		fallback:            fallback,
		networkFirstTimeout: cfg.NetworkFirstTimeout,
		revalidateTimeout:   cfg.RevalidateTimeout,
	}
}

// Execute serves req through the rule's strategy. url is the resolved
// upstream URL, which doubles as the cache key. The returned response is
// never nil.
func (e *Executor) Execute(ctx context.Context, req *http.Request, url string, rule rules.Rule) *core.Response {
	var resp *core.Response
	switch rule.Strategy {
	case core.StrategyCacheFirst:
		resp = e.cacheFirst(ctx, req, url, rule.Namespace)
	case core.StrategyNetworkFirst:
		resp = e.networkFirst(ctx, req, url, rule.Namespace)
	case core.StrategyStaleWhileRevalidate:
		resp = e.staleWhileRevalidate(ctx, req, url, rule.Namespace)
	case core.StrategyNetworkOnly:
		resp = e.networkOnly(ctx, req)
	default:
		// Unreachable with a validated rule set; degrade like network-only.
		resp = e.networkOnly(ctx, req)
	}

	observability.RequestsTotal.WithLabelValues(string(rule.Strategy), string(resp.Source)).Inc()
	if resp.Source == core.SourceFallback {
		observability.FallbacksTotal.WithLabelValues(string(rule.Strategy)).Inc()
	}
	return resp
}

// cacheFirst returns the cached entry if present; otherwise it fetches,
// stores a copy and returns the network response. Network failure with no
// entry delegates to the fallback provider.
func (e *Executor) cacheFirst(ctx context.Context, req *http.Request, url, namespace string) *core.Response {
	if cached := e.lookup(ctx, namespace, url); cached != nil {
		return cached
	}

	resp, err := e.fetch(ctx, req)
	if err != nil {
		slog.Debug("cache-first network failure with no cache entry", "url", url, "error", err)
		return e.fallback.Fallback(ctx, req)
	}
	e.storeCopy(ctx, namespace, url, resp)
	return resp
}

// networkFirst attempts the network within a timeout; success refreshes the
// cache. Timeout or failure falls back to the cached entry, then to the
// fallback provider. The timeout cancels the underlying fetch.
func (e *Executor) networkFirst(ctx context.Context, req *http.Request, url, namespace string) *core.Response {
	fetchCtx, cancel := context.WithTimeout(ctx, e.networkFirstTimeout)
	defer cancel()

	resp, err := e.fetch(fetchCtx, req)
	if err == nil {
		e.storeCopy(ctx, namespace, url, resp)
		return resp
	}
	slog.Debug("network-first falling back to cache", "url", url, "error", err)

	if cached := e.lookup(ctx, namespace, url); cached != nil {
		return cached
	}
	return e.fallback.Fallback(ctx, req)
}

// staleWhileRevalidate returns the cached entry immediately when present
// and refreshes it in the background; the refreshed copy silently replaces
// the entry for next time. With no entry, the request waits on the network.
func (e *Executor) staleWhileRevalidate(ctx context.Context, req *http.Request, url, namespace string) *core.Response {
	cached := e.lookup(ctx, namespace, url)
	if cached != nil {
		e.revalidate(req.Clone(context.WithoutCancel(ctx)), url, namespace)
		return cached
	}

	resp, err := e.fetch(ctx, req)
	if err != nil {
		slog.Debug("stale-while-revalidate network failure with no cache entry", "url", url, "error", err)
		return e.fallback.Fallback(ctx, req)
	}
	e.storeCopy(ctx, namespace, url, resp)
	return resp
}

// networkOnly always fetches and never touches any cache. Used for
// endpoints where staleness is unacceptable; a failure still degrades to
// the fallback provider rather than a transport error.
func (e *Executor) networkOnly(ctx context.Context, req *http.Request) *core.Response {
	resp, err := e.fetch(ctx, req)
	if err != nil {
		slog.Debug("network-only fetch failed", "path", req.URL.Path, "error", err)
		return e.fallback.Fallback(ctx, req)
	}
	return resp
}

// revalidate refreshes a cache entry in the background. Errors are logged
// and swallowed; the stale entry simply stays in place.
func (e *Executor) revalidate(req *http.Request, url, namespace string) {
	go func() {
		ctx, cancel := context.WithTimeout(req.Context(), e.revalidateTimeout)
		defer cancel()

		resp, err := e.fetch(ctx, req)
		if err != nil {
			slog.Debug("background revalidation failed", "url", url, "error", err)
			return
		}
		e.storeCopy(ctx, namespace, url, resp)
	}()
}

// lookup reads the cache and records hit/miss metrics. Read errors count
// as misses; a degraded store must not break request serving.
func (e *Executor) lookup(ctx context.Context, namespace, url string) *core.Response {
	cached, err := e.store.Get(ctx, namespace, url)
	if err != nil {
		slog.Warn("cache read failed", "namespace", namespace, "url", url, "error", err)
		observability.CacheLookups.WithLabelValues(namespace, observability.LookupMiss).Inc()
		return nil
	}
	if cached == nil {
		observability.CacheLookups.WithLabelValues(namespace, observability.LookupMiss).Inc()
		return nil
	}
	observability.CacheLookups.WithLabelValues(namespace, observability.LookupHit).Inc()
	return cached
}

// fetch wraps the upstream fetch with latency metrics.
func (e *Executor) fetch(ctx context.Context, req *http.Request) (*core.Response, error) {
	start := time.Now()
	resp, err := e.fetcher.Fetch(ctx, req)
	outcome := "ok"
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	observability.UpstreamDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return resp, err
}

// storeCopy writes a snapshot when the response is cacheable (2xx). Write
// failures are logged, never surfaced; the response is already in hand.
func (e *Executor) storeCopy(ctx context.Context, namespace, url string, resp *core.Response) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}
	if err := e.store.Set(ctx, namespace, url, resp.Clone()); err != nil {
		slog.Warn("cache write failed", "namespace", namespace, "url", url, "error", err)
	}
}
