// Package core provides shared types and interfaces for the caching gateway.
package core

import (
	"context"
	"net/http"
	"time"
)

// Strategy selects how a request is served against the cache and the network.
type Strategy string

const (
	// StrategyCacheFirst serves from cache when present, otherwise fetches
	// and populates the cache.
	StrategyCacheFirst Strategy = "cache-first"
	// StrategyNetworkFirst attempts the network within a timeout before
	// falling back to the cache.
	StrategyNetworkFirst Strategy = "network-first"
	// StrategyStaleWhileRevalidate serves the cached copy immediately while
	// refreshing it in the background.
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	// StrategyNetworkOnly always fetches and never touches the cache.
	StrategyNetworkOnly Strategy = "network-only"
)

// Valid reports whether s is one of the four known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCacheFirst, StrategyNetworkFirst, StrategyStaleWhileRevalidate, StrategyNetworkOnly:
		return true
	}
	return false
}

// Source identifies where a response was served from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "offline-fallback"
)

// Response is an immutable snapshot of an HTTP response, suitable for
// storing in a cache and replaying to a client.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// StoredAt is the time the snapshot was written to the cache.
	// Zero for responses fresh from the network.
	StoredAt time.Time

	// Source records where this response came from.
	Source Source
}

// Clone returns a deep copy of the response. Snapshots handed to concurrent
// writers must not share header maps or body slices.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cp := &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		StoredAt:   r.StoredAt,
		Source:     r.Source,
	}
	if r.Body != nil {
		cp.Body = make([]byte, len(r.Body))
		copy(cp.Body, r.Body)
	}
	return cp
}

// Fetcher performs the upstream network fetch for a request.
// Implementations must honor context cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// FallbackProvider supplies a degraded response when both the network and
// the cache have failed to produce one.
type FallbackProvider interface {
	Fallback(ctx context.Context, req *http.Request) *Response
}
