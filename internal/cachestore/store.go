// Package cachestore provides namespaced storage of response snapshots.
// Supports in-memory, Redis, SQLite, PostgreSQL and MongoDB backends so a
// gateway can run standalone or share its cache across instances.
package cachestore

import (
	"context"

	"edgecache/internal/core"
)

// Store is a namespaced cache of response snapshots keyed by request URL.
//
// Implementations must be safe for concurrent use. Operations are atomic
// per key; there are no cross-key transactions. Concurrent writes to the
// same key resolve to last-write-wins, which is acceptable because entries
// are idempotent snapshots of static or semi-static resources.
type Store interface {
	// Get retrieves the snapshot stored under url in the given namespace.
	// Returns nil, nil on a cache miss. A miss is a normal branch, not
	// an error.
	Get(ctx context.Context, namespace, url string) (*core.Response, error)

	// Set stores a snapshot under url in the given namespace, replacing
	// any existing entry.
	Set(ctx context.Context, namespace, url string, resp *core.Response) error

	// Delete removes the entry for url from the given namespace.
	// Deleting a missing entry is not an error.
	Delete(ctx context.Context, namespace, url string) error

	// Namespaces lists every namespace currently holding at least one entry.
	Namespaces(ctx context.Context) ([]string, error)

	// DeleteNamespace removes a namespace and all of its entries.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases any resources held by the store.
	Close() error
}
