// Package cache provides the long-lived cache service backing the fetcher's
// content and failure caches.
//
// The cache is an explicitly injected dependency rather than hidden global
// state: it is created once at process start and handed to the components
// that need it. Entries are idempotent once written, so concurrent writers
// racing on the same key are harmless.
//
// Backends:
//   - Memory: in-process map, the default for a single server instance
//   - File: JSON entry files on disk, used by the CLI across invocations
//   - Redis: shared cache for multi-instance deployments
//   - Null: disables caching entirely (tests, --no-cache)
package cache

import (
	"context"
	"time"
)

// Cache stores raw bytes under string keys with optional expiration.
//
// Get returns (data, true, nil) on a hit, (nil, false, nil) on a miss, and
// (nil, false, err) only for backend failures. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Namespaced wraps a Cache so that all keys are prefixed, isolating one
// consumer's keys from another's (e.g. "content:" vs "failed:").
func Namespaced(c Cache, prefix string) Cache {
	return &namespaced{inner: c, prefix: prefix}
}

type namespaced struct {
	inner  Cache
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.prefix+key, data, ttl)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Close() error { return n.inner.Close() }
