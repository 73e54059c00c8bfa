// Package app provides the main application struct for centralized
// dependency management and lifecycle control of the edgecache gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"edgecache/config"
	"edgecache/internal/cachestore"
	"edgecache/internal/core"
	"edgecache/internal/events"
	"edgecache/internal/fallback"
	"edgecache/internal/httpclient"
	"edgecache/internal/lifecycle"
	"edgecache/internal/rules"
	"edgecache/internal/server"
	"edgecache/internal/strategy"
	"edgecache/internal/upstream"
	"edgecache/internal/version"
)

// App represents the gateway with all its dependencies.
type App struct {
	config    *config.Config
	store     cachestore.Store
	hub       *events.Hub
	lifecycle *lifecycle.Manager
	server    *server.Server

	syncCancel context.CancelFunc

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates an App with all dependencies initialized and the install and
// activate phases completed. The caller must call Shutdown to release
// resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cacheVersion := cfg.Cache.Version
	if cacheVersion == "" {
		cacheVersion = version.Version
	}
	ns := core.Namespaces{Prefix: cfg.Cache.Prefix, Version: cacheVersion}

	store, err := cachestore.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache store: %w", err)
	}

	app := &App{
		config: cfg,
		store:  store,
		hub:    events.NewHub(),
	}

	clientCfg := httpclient.DefaultConfig()
	if cfg.Upstream.Timeout > 0 {
		clientCfg.Timeout = cfg.Upstream.Timeout
	}
	client := httpclient.NewHTTPClient(&clientCfg)

	fetcher, err := upstream.New(cfg.Upstream, client)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to initialize upstream fetcher: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize upstream fetcher: %w", err)
	}

	fb := fallback.New(store, ns, cfg.Fallback)

	matcher, err := rules.New(cfg.Rules, ns)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to compile routing rules: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to compile routing rules: %w", err)
	}

	executor := strategy.New(store, fetcher, fb, strategy.Config{
		NetworkFirstTimeout: cfg.Cache.NetworkFirstTimeout,
		RevalidateTimeout:   cfg.Cache.RevalidateTimeout,
	})

	app.lifecycle = lifecycle.New(store, ns, fetcher, fb, app.hub, cfg.Warmup.CoreURLs, cfg.Cache.PinnedSubstrings)

	// Install, then activate: warm the caches and sweep stale namespaces
	if err := app.lifecycle.Install(ctx); err != nil {
		slog.Warn("install finished with errors", "error", err)
	}
	if err := app.lifecycle.Activate(ctx); err != nil {
		slog.Warn("activation sweep finished with errors", "error", err)
	}

	if cfg.Sync.Enabled {
		syncCtx, cancel := context.WithCancel(context.Background())
		app.syncCancel = cancel
		go app.lifecycle.RunSyncLoop(syncCtx, cfg.Sync.Interval)
		slog.Info("background sync enabled", "interval", cfg.Sync.Interval)
	}

	handler := server.NewHandler(matcher, executor, fetcher, app.lifecycle, app.hub)
	app.server = server.New(handler, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	app.logStartupInfo(ns)
	return app, nil
}

// Server exposes the HTTP server, mainly for httptest.
func (a *App) Server() *server.Server {
	return a.server
}

// Lifecycle exposes the lifecycle manager.
func (a *App) Lifecycle() *lifecycle.Manager {
	return a.lifecycle
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown tears down components in order: the sync loop stops, the event
// hub closes so streaming handlers return, the HTTP server drains, and
// finally the cache store closes. The hub must close before the server
// drain; event-stream handlers block on their subscriber channel, and
// http.Server.Shutdown does not cancel active request contexts.
// Idempotent; repeated calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down gateway...")

	var errs []error

	if a.syncCancel != nil {
		a.syncCancel()
	}

	if a.hub != nil {
		a.hub.Close()
	}

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("cache store close error", "error", err)
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("gateway shutdown complete")
	return nil
}

// logStartupInfo logs the effective configuration on startup.
func (a *App) logStartupInfo(ns core.Namespaces) {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("control API is unauthenticated - set EDGECACHE_MASTER_KEY to protect it")
	} else {
		slog.Info("control API authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("cache namespaces",
		"main", ns.Main(),
		"offline", ns.Offline(),
		"runtime", ns.Runtime(),
		"pinned", cfg.Cache.PinnedSubstrings,
	)

	if cfg.Upstream.Origin != "" {
		slog.Info("upstream configured", "origin", cfg.Upstream.Origin, "allowed_hosts", len(cfg.Upstream.AllowedHosts))
	} else {
		slog.Warn("no upstream origin configured - only proxy passthrough requests will resolve")
	}
}
