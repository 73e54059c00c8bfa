package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"edgecache/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	url       TEXT NOT NULL,
	data      BLOB NOT NULL,
	stored_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_namespace ON cache_entries(namespace);
`

// SQLiteStore implements Store on a local SQLite database, giving a
// single-node deployment a cache that survives restarts.
type SQLiteStore struct {
	db       *sql.DB
	compress bool
}

// NewSQLiteStore opens (or creates) the database at path.
// WAL mode is enabled for concurrent reads while writing.
func NewSQLiteStore(path string, compress bool) (*SQLiteStore, error) {
	if path == "" {
		path = ".cache/edgecache.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteStore{db: db, compress: compress}, nil
}

// Get retrieves a snapshot.
func (s *SQLiteStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, entryKey(url),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil // miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return decodeEntry(data)
}

// Set stores a snapshot, replacing any existing row for the key.
func (s *SQLiteStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	data, err := encodeEntry(resp, s.compress)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, url, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET url = excluded.url, data = excluded.data, stored_at = CURRENT_TIMESTAMP`,
		namespace, entryKey(url), url, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *SQLiteStore) Delete(ctx context.Context, namespace, url string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`,
		namespace, entryKey(url),
	)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Namespaces lists distinct namespaces with entries.
func (s *SQLiteStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT namespace FROM cache_entries`)
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
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
