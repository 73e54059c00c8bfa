// Package lifecycle manages cache installation and activation.
//
// Install prefetches the core assets and seeds the offline namespace.
// Activate sweeps namespaces whose names no longer match the current
// version set. This is the sole eviction mechanism; there is no size-based or
// LRU eviction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"edgecache/internal/cachestore"
	"edgecache/internal/core"
	"edgecache/internal/events"
	"edgecache/internal/observability"
)

// seeder is the part of the fallback provider install depends on.
type seeder interface {
	Seed(ctx context.Context) error
}

// urlFetcher is the part of the upstream fetcher install depends on.
type urlFetcher interface {
	FetchURL(ctx context.Context, target string, inbound http.Header) (*core.Response, error)
}

// Manager runs the install and activate phases and owns the sync queue.
type Manager struct {
	store    cachestore.Store
	ns       core.Namespaces
	fetcher  urlFetcher
	seeder   seeder
	hub      *events.Hub
	coreURLs []string
	pinned   []string
	queue    *SyncQueue
}

// New creates a Manager.
func New(store cachestore.Store, ns core.Namespaces, fetcher urlFetcher, s seeder, hub *events.Hub, coreURLs, pinned []string) *Manager {
	return &Manager{
		store:    store,
		ns:       ns,
		fetcher:  fetcher,
		seeder:   s,
		hub:      hub,
		coreURLs: coreURLs,
		pinned:   pinned,
		queue:    NewSyncQueue(),
	}
}

// Queue exposes the background sync queue.
func (m *Manager) Queue() *SyncQueue {
	return m.queue
}

// Install prefetches the core URLs into the main namespace and seeds the
// offline namespace. Each asset is handled independently: a failure logs a
// warning and does not abort installation, so a single missing asset never
// blocks the install.
func (m *Manager) Install(ctx context.Context) error {
	if err := m.seeder.Seed(ctx); err != nil {
		// The embedded copies still back the fallback path.
		slog.Warn("failed to seed offline namespace", "error", err)
	}

	cached := 0
	for _, target := range m.coreURLs {
		resp, err := m.fetcher.FetchURL(ctx, target, http.Header{})
		if err != nil {
			slog.Warn("failed to prefetch core asset", "url", target, "error", err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Warn("core asset returned non-success status", "url", target, "status", resp.StatusCode)
			continue
		}
		if err := m.store.Set(ctx, m.ns.Main(), target, resp); err != nil {
			slog.Warn("failed to cache core asset", "url", target, "error", err)
			continue
		}
		cached++
	}

	slog.Info("install complete", "core_assets_cached", cached, "core_assets_total", len(m.coreURLs))
	return nil
}

// Activate deletes every namespace whose name is not in the current version
// set and does not contain a pinned substring. Deletion failures are logged
// and aggregated rather than aborting the sweep.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.store.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate cache namespaces: %w", err)
	}

	current := m.ns.Current()
	var errs []error
	deleted := 0
	for _, name := range names {
		if slices.Contains(current, name) || m.isPinned(name) {
			continue
		}
		if err := m.store.DeleteNamespace(ctx, name); err != nil {
			slog.Warn("failed to delete stale namespace", "namespace", name, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		slog.Info("deleted stale cache namespace", "namespace", name)
		observability.SweptNamespaces.Inc()
		deleted++
	}

	slog.Info("activate complete", "deleted", deleted, "kept", len(names)-deleted)
	return errors.Join(errs...)
}

// SkipWaiting re-runs activation immediately and broadcasts SW_UPDATED.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	err := m.Activate(ctx)
	m.hub.Broadcast(events.TypeUpdated, nil)
	return err
}

// ClearAll deletes every namespace, pinned ones included.
func (m *Manager) ClearAll(ctx context.Context) error {
	names, err := m.store.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate cache namespaces: %w", err)
	}
	var errs []error
	for _, name := range names {
		if err := m.store.DeleteNamespace(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	slog.Info("cleared all cache namespaces", "count", len(names))
	return errors.Join(errs...)
}

// FlushSync drains the sync queue as one batch and broadcasts SYNC_COMPLETE
// with the batch outcome. An empty queue is a successful zero-count batch.
func (m *Manager) FlushSync(ctx context.Context) (int, error) {
	start := time.Now()
	batch := m.queue.Drain()

	// Delivery of queued analytics events is deliberately disabled; the
	// batch is counted and dropped. The queue machinery stays wired so
	// enabling delivery is a local change.
	count := len(batch)

	duration := time.Since(start)
	observability.SyncBatches.WithLabelValues("ok").Inc()
	m.hub.Broadcast(events.TypeSyncComplete, map[string]any{
		"success":     true,
		"count":       count,
		"duration_ms": duration.Milliseconds(),
	})
	slog.Info("background sync complete", "count", count, "duration", duration)
	return count, nil
}

// RunSyncLoop flushes the queue on the given interval until ctx is done.
func (m *Manager) RunSyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.FlushSync(ctx); err != nil {
				slog.Warn("periodic sync flush failed", "error", err)
			}
		}
	}
}

func (m *Manager) isPinned(name string) bool {
	for _, sub := range m.pinned {
		if sub != "" && strings.Contains(name, sub) {
			return true
		}
	}
	return false
}
