package cachestore

import (
	"context"
	"fmt"
	"log/slog"

	"edgecache/config"
)

// New constructs the Store selected by configuration.
// The caller must call Close on the returned store.
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		slog.Info("cache store initialized", "backend", "memory")
		return NewMemoryStore(), nil

	case "redis":
		store, err := NewRedisStore(cfg.Redis.URL, cfg.Redis.TTL, cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		slog.Info("cache store initialized", "backend", "redis")
		return store, nil

	case "sqlite":
		store, err := NewSQLiteStore(cfg.SQLite.Path, cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		slog.Info("cache store initialized", "backend", "sqlite", "path", cfg.SQLite.Path)
		return store, nil

	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns, cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		slog.Info("cache store initialized", "backend", "postgres")
		return store, nil

	case "mongodb":
		store, err := NewMongoStore(ctx, cfg.MongoDB.URL, cfg.MongoDB.Database, cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize mongodb store: %w", err)
		}
		slog.Info("cache store initialized", "backend", "mongodb", "database", cfg.MongoDB.Database)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
