package cachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"edgecache/internal/core"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	url       TEXT NOT NULL,
	data      BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_namespace ON cache_entries(namespace);
`

// PostgresStore implements Store on PostgreSQL for deployments that already
// run one and want the cache shared across gateway instances.
type PostgresStore struct {
	pool     *pgxpool.Pool
	compress bool
}

// NewPostgresStore creates a connection pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, url string, maxConns int, compress bool) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	} else {
		poolCfg.MaxConns = 10 // default
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &PostgresStore{pool: pool, compress: compress}, nil
}

// Get retrieves a snapshot.
func (s *PostgresStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM cache_entries WHERE namespace = $1 AND key = $2`,
		namespace, entryKey(url),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return decodeEntry(data)
}

// Set upserts a snapshot.
func (s *PostgresStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	data, err := encodeEntry(resp, s.compress)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cache_entries (namespace, key, url, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (namespace, key) DO UPDATE SET url = EXCLUDED.url, data = EXCLUDED.data, stored_at = NOW()`,
		namespace, entryKey(url), url, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *PostgresStore) Delete(ctx context.Context, namespace, url string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`,
		namespace, entryKey(url),
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Namespaces lists distinct namespaces with entries.
func (s *PostgresStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT namespace FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteNamespace removes every entry under the namespace.
func (s *PostgresStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE namespace = $1`, namespace)
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
