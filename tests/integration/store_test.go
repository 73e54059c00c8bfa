//go:build integration

package integration

import (
	"context"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgecache/config"
	"edgecache/internal/cachestore"
	"edgecache/internal/core"
	"edgecache/internal/events"
	"edgecache/internal/fallback"
	"edgecache/internal/lifecycle"
)

// newBackends builds one store per persistent backend under test. Each test
// gets fresh stores; namespaces are prefixed per test to avoid collisions
// within the shared containers.
func newBackends(t *testing.T) map[string]cachestore.Store {
	t.Helper()

	pg, err := cachestore.NewPostgresStore(testCtx, pgURL, 5, true)
	require.NoError(t, err, "failed to connect to PostgreSQL")
	t.Cleanup(func() { _ = pg.Close() })

	mg, err := cachestore.NewMongoStore(testCtx, mongoURL, "edgecache_test", true)
	require.NoError(t, err, "failed to connect to MongoDB")
	t.Cleanup(func() { _ = mg.Close() })

	sq, err := cachestore.NewSQLiteStore(filepath.Join(t.TempDir(), "edgecache.db"), true)
	require.NoError(t, err, "failed to open SQLite store")
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]cachestore.Store{
		"postgres": pg,
		"mongodb":  mg,
		"sqlite":   sq,
	}
}

func nsFor(t *testing.T, logical string) string {
	return "edgecache-" + strings.ToLower(t.Name()) + "-" + logical
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ns := nsFor(t, "main")
			url := "https://app.example.org/src/app.js"

			// Miss is nil, nil
			got, err := store.Get(ctx, ns, url)
			require.NoError(t, err)
			assert.Nil(t, got)

			resp := &core.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"application/javascript"}},
				Body:       []byte(strings.Repeat("export const x = 1;\n", 200)),
			}
			require.NoError(t, store.Set(ctx, ns, url, resp))

			got, err = store.Get(ctx, ns, url)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, resp.Body, got.Body)
			assert.Equal(t, "application/javascript", got.Header.Get("Content-Type"))
			assert.Equal(t, core.SourceCache, got.Source)
			assert.False(t, got.StoredAt.IsZero())

			// Overwrite wins
			resp2 := &core.Response{StatusCode: http.StatusOK, Body: []byte("v2")}
			require.NoError(t, store.Set(ctx, ns, url, resp2))
			got, err = store.Get(ctx, ns, url)
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got.Body)

			// Delete is idempotent
			require.NoError(t, store.Delete(ctx, ns, url))
			require.NoError(t, store.Delete(ctx, ns, url))
			got, err = store.Get(ctx, ns, url)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStoreNamespaceSweep(t *testing.T) {
	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stale := nsFor(t, "main-v1.14.0")
			current := nsFor(t, "main-v1.15.2")

			body := &core.Response{StatusCode: http.StatusOK, Body: []byte("x")}
			require.NoError(t, store.Set(ctx, stale, "a", body))
			require.NoError(t, store.Set(ctx, stale, "b", body))
			require.NoError(t, store.Set(ctx, current, "c", body))

			names, err := store.Namespaces(ctx)
			require.NoError(t, err)
			assert.True(t, slices.Contains(names, stale))
			assert.True(t, slices.Contains(names, current))

			require.NoError(t, store.DeleteNamespace(ctx, stale))

			got, err := store.Get(ctx, stale, "a")
			require.NoError(t, err)
			assert.Nil(t, got, "entries in a deleted namespace are gone")

			got, err = store.Get(ctx, current, "c")
			require.NoError(t, err)
			assert.NotNil(t, got, "other namespaces are untouched")

			names, err = store.Namespaces(ctx)
			require.NoError(t, err)
			assert.False(t, slices.Contains(names, stale))
		})
	}
}

// TestActivateSweepAgainstPostgres runs the real activation sweep against a
// persistent backend.
func TestActivateSweepAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	pg, err := cachestore.NewPostgresStore(testCtx, pgURL, 5, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	ns := core.Namespaces{Prefix: "sweeptest", Version: "2.0.0"}
	body := &core.Response{StatusCode: http.StatusOK, Body: []byte("x")}
	require.NoError(t, pg.Set(ctx, ns.Main(), "a", body))
	require.NoError(t, pg.Set(ctx, "sweeptest-main-v1.0.0", "b", body))
	require.NoError(t, pg.Set(ctx, "sweeptest-google-fonts", "c", body))

	fb := fallback.New(pg, ns, config.FallbackConfig{})
	m := lifecycle.New(pg, ns, nil, fb, events.NewHub(), nil, []string{"google-fonts"})
	require.NoError(t, m.Activate(ctx))

	got, err := pg.Get(ctx, "sweeptest-main-v1.0.0", "b")
	require.NoError(t, err)
	assert.Nil(t, got, "stale version swept")

	got, err = pg.Get(ctx, ns.Main(), "a")
	require.NoError(t, err)
	assert.NotNil(t, got, "current version kept")

	got, err = pg.Get(ctx, "sweeptest-google-fonts", "c")
	require.NoError(t, err)
	assert.NotNil(t, got, "pinned namespace kept")
}
