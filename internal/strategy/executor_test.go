package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgecache/internal/cachestore"
	"edgecache/internal/core"
	"edgecache/internal/rules"
)

const testURL = "https://app.example.org/src/styles/main.css"

// stubFetcher is a scriptable core.Fetcher.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	resp  *core.Response
	err   error
	// delay makes the fetch wait, honoring cancellation, to exercise the
	// network-first timeout path.
	delay time.Duration
}

func (f *stubFetcher) Fetch(ctx context.Context, req *http.Request) (*core.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp.Clone(), nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubFallback marks its responses so tests can tell them apart.
type stubFallback struct{}

func (stubFallback) Fallback(ctx context.Context, req *http.Request) *core.Response {
	return &core.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("offline"),
		Source:     core.SourceFallback,
	}
}

// countingStore wraps a store and counts reads and writes.
type countingStore struct {
	cachestore.Store
	mu   sync.Mutex
	gets int
	sets int
}

func (s *countingStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Store.Get(ctx, namespace, url)
}

func (s *countingStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.Store.Set(ctx, namespace, url, resp)
}

func networkResponse(body string) *core.Response {
	return &core.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/css"}},
		Body:       []byte(body),
		Source:     core.SourceNetwork,
	}
}

func newExecutor(store cachestore.Store, fetcher core.Fetcher) *Executor {
	return New(store, fetcher, stubFallback{}, Config{
		NetworkFirstTimeout: 50 * time.Millisecond,
		RevalidateTimeout:   time.Second,
	})
}

func testRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/src/styles/main.css", nil)
}

func TestCacheFirstIdempotent(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{resp: networkResponse("body { margin: 0 }")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyCacheFirst, Namespace: "ns"}

	first := e.Execute(context.Background(), testRequest(), testURL, rule)
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, core.SourceNetwork, first.Source)

	// Repeating the fetch with no network change yields a byte-identical
	// response, served from cache after the first write.
	second := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, core.SourceCache, second.Source)
	assert.Equal(t, 1, fetcher.callCount(), "second request must not hit the network")
}

func TestCacheFirstFallsBackWhenOffline(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{err: errors.New("dial tcp: no route to host")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyCacheFirst, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceFallback, resp.Source)
}

func TestNetworkFirstRefreshesCache(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{resp: networkResponse("fresh")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkFirst, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceNetwork, resp.Source)

	cached, err := store.Get(context.Background(), "ns", testURL)
	require.NoError(t, err)
	require.NotNil(t, cached, "success must refresh the cache")
	assert.Equal(t, []byte("fresh"), cached.Body)
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	// A previously cached CSS file while offline: network attempt fails,
	// the cached copy is served rather than the offline fallback.
	store := cachestore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "ns", testURL, networkResponse("cached css")))

	fetcher := &stubFetcher{err: errors.New("offline")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkFirst, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceCache, resp.Source)
	assert.Equal(t, []byte("cached css"), resp.Body)
}

func TestNetworkFirstTimeoutCancelsAndServesCache(t *testing.T) {
	store := cachestore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "ns", testURL, networkResponse("cached")))

	// Upstream far slower than the 50ms strategy timeout
	fetcher := &stubFetcher{resp: networkResponse("slow"), delay: 2 * time.Second}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkFirst, Namespace: "ns"}

	start := time.Now()
	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	elapsed := time.Since(start)

	assert.Equal(t, core.SourceCache, resp.Source)
	assert.Equal(t, []byte("cached"), resp.Body)
	assert.Less(t, elapsed, time.Second, "timeout must cut the wait short")
}

func TestNetworkFirstFallbackWhenNoCache(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{err: errors.New("offline")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkFirst, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceFallback, resp.Source)
}

func TestStaleWhileRevalidateServesStaleAndRefreshes(t *testing.T) {
	store := cachestore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "ns", testURL, networkResponse("stale")))

	fetcher := &stubFetcher{resp: networkResponse("refreshed")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyStaleWhileRevalidate, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceCache, resp.Source)
	assert.Equal(t, []byte("stale"), resp.Body, "the stale copy is returned immediately")

	// The background refresh silently replaces the entry for next time
	require.Eventually(t, func() bool {
		cached, err := store.Get(context.Background(), "ns", testURL)
		return err == nil && cached != nil && string(cached.Body) == "refreshed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleWhileRevalidateWaitsOnMiss(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{resp: networkResponse("first")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyStaleWhileRevalidate, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, core.SourceNetwork, resp.Source)
	assert.Equal(t, []byte("first"), resp.Body)

	cached, err := store.Get(context.Background(), "ns", testURL)
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestNetworkOnlyNeverTouchesCache(t *testing.T) {
	store := &countingStore{Store: cachestore.NewMemoryStore()}
	fetcher := &stubFetcher{resp: networkResponse(`{"ok":true}`)}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkOnly}

	resp := e.Execute(context.Background(), testRequest(), "https://us-central1-x.cloudfunctions.net/fn", rule)
	assert.Equal(t, core.SourceNetwork, resp.Source)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.gets, "network-only must not read the cache")
	assert.Zero(t, store.sets, "network-only must not write the cache")
}

func TestNetworkOnlyDegradesToFallback(t *testing.T) {
	store := &countingStore{Store: cachestore.NewMemoryStore()}
	fetcher := &stubFetcher{err: errors.New("offline")}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyNetworkOnly}

	resp := e.Execute(context.Background(), testRequest(), "https://us-central1-x.cloudfunctions.net/fn", rule)
	assert.Equal(t, core.SourceFallback, resp.Source)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.gets)
	assert.Zero(t, store.sets)
}

func TestErrorStatusesAreNotCached(t *testing.T) {
	store := cachestore.NewMemoryStore()
	fetcher := &stubFetcher{resp: &core.Response{
		StatusCode: http.StatusNotFound,
		Body:       []byte("not found"),
		Source:     core.SourceNetwork,
	}}
	e := newExecutor(store, fetcher)
	rule := rules.Rule{Strategy: core.StrategyCacheFirst, Namespace: "ns"}

	resp := e.Execute(context.Background(), testRequest(), testURL, rule)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "error statuses pass through")

	cached, err := store.Get(context.Background(), "ns", testURL)
	require.NoError(t, err)
	assert.Nil(t, cached, "non-2xx snapshots must not be cached")
}
