package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgecache/config"
	"edgecache/internal/core"
)

func newOriginFetcher(t *testing.T, origin string, allowed ...string) *Fetcher {
	t.Helper()
	f, err := New(config.UpstreamConfig{Origin: origin, AllowedHosts: allowed}, http.DefaultClient)
	require.NoError(t, err)
	return f
}

func TestNewRejectsBadOrigin(t *testing.T) {
	_, err := New(config.UpstreamConfig{Origin: "example.org/no-scheme"}, http.DefaultClient)
	assert.Error(t, err)
}

func TestResolveJoinsAgainstOrigin(t *testing.T) {
	tests := []struct {
		origin string
		path   string
		query  string
		want   string
	}{
		{"https://app.example.org", "/src/app.js", "", "https://app.example.org/src/app.js"},
		{"https://app.example.org/", "/src/app.js", "", "https://app.example.org/src/app.js"},
		{"https://app.example.org/base", "/img/x.png", "w=64", "https://app.example.org/base/img/x.png?w=64"},
	}
	for _, tt := range tests {
		f := newOriginFetcher(t, tt.origin)
		req := httptest.NewRequest(http.MethodGet, tt.path+querySuffix(tt.query), nil)
		got, err := f.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func querySuffix(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

func TestResolveProxyPrefix(t *testing.T) {
	f := newOriginFetcher(t, "https://app.example.org", "fonts.googleapis.com")

	req := httptest.NewRequest(http.MethodGet, "/proxy/https://fonts.googleapis.com/css2?family=Inter", nil)
	got, err := f.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "https://fonts.googleapis.com/css2?family=Inter", got)
}

func TestResolveProxyRejectsUnknownHost(t *testing.T) {
	f := newOriginFetcher(t, "https://app.example.org", "fonts.googleapis.com")

	req := httptest.NewRequest(http.MethodGet, "/proxy/https://evil.example.com/x", nil)
	_, err := f.Resolve(req)
	require.Error(t, err)

	var gw *core.GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, http.StatusBadRequest, gw.HTTPStatusCode())
}

func TestResolveProxyRejectsRelativeURL(t *testing.T) {
	f := newOriginFetcher(t, "https://app.example.org")

	req := httptest.NewRequest(http.MethodGet, "/proxy/not-a-url", nil)
	_, err := f.Resolve(req)
	assert.Error(t, err)
}

func TestResolveWithoutOrigin(t *testing.T) {
	f, err := New(config.UpstreamConfig{AllowedHosts: []string{"fonts.googleapis.com"}}, http.DefaultClient)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	_, err = f.Resolve(req)
	assert.Error(t, err, "non-proxy paths need a configured origin")
}

func TestFetchSnapshotsResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"), "client headers are forwarded")
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("body { margin: 0 }"))
	}))
	defer ts.Close()

	f := newOriginFetcher(t, ts.URL)
	req := httptest.NewRequest(http.MethodGet, "/main.css", nil)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/css", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Keep-Alive"), "hop-by-hop headers are stripped")
	assert.Equal(t, []byte("body { margin: 0 }"), resp.Body)
	assert.Equal(t, core.SourceNetwork, resp.Source)
}

func TestFetchErrorStatusIsASnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	f := newOriginFetcher(t, ts.URL)
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err, "an HTTP error status is still a valid snapshot")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchTimeoutIsTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	f := newOriginFetcher(t, ts.URL)
	req := httptest.NewRequest(http.MethodGet, "/slow", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, req)
	require.Error(t, err)

	var gw *core.GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, core.ErrorTypeTimeout, gw.Type)
}

func TestFetchTransportFailureIsAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening anymore

	f := newOriginFetcher(t, ts.URL)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	_, err := f.Fetch(context.Background(), req)
	assert.Error(t, err)
}
