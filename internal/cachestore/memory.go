package cachestore

import (
	"context"
	"sync"
	"time"

	"edgecache/internal/core"
)

// MemoryStore implements Store with an in-process map.
// This is the default backend, suitable for single-instance deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*core.Response
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string]map[string]*core.Response),
	}
}

// Get retrieves a snapshot. The returned response is a copy; callers may
// mutate it freely.
func (s *MemoryStore) Get(ctx context.Context, namespace, url string) (*core.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.namespaces[namespace]
	if !ok {
		return nil, nil
	}
	resp, ok := entries[entryKey(url)]
	if !ok {
		return nil, nil
	}
	out := resp.Clone()
	out.Source = core.SourceCache
	return out, nil
}

// Set stores a snapshot, replacing any existing entry for the URL.
func (s *MemoryStore) Set(ctx context.Context, namespace, url string, resp *core.Response) error {
	cp := resp.Clone()
	if cp.StoredAt.IsZero() {
		cp.StoredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.namespaces[namespace]
	if !ok {
		entries = make(map[string]*core.Response)
		s.namespaces[namespace] = entries
	}
	entries[entryKey(url)] = cp
	return nil
}

// Delete removes the entry for url. Missing entries are ignored.
func (s *MemoryStore) Delete(ctx context.Context, namespace, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries, ok := s.namespaces[namespace]; ok {
		delete(entries, entryKey(url))
		if len(entries) == 0 {
			delete(s.namespaces, namespace)
		}
	}
	return nil
}

// Namespaces lists namespaces that hold at least one entry.
func (s *MemoryStore) Namespaces(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	return names, nil
}

// DeleteNamespace removes a namespace and all of its entries.
func (s *MemoryStore) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.namespaces, namespace)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
