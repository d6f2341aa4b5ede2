package hasura

import (
	lru "github.com/hashicorp/golang-lru"
)

// FetchPolicy governs whether an operation reads from cache, network, or
// both. In a blocking call model the policies behave as follows:
//
//   - cache-first: a cache hit is returned without touching the network.
//   - cache-and-network: the network is always consulted and the cache
//     updated; a cached entry is returned when the network fails.
//   - network-only: the network is always consulted and the cache updated.
//   - no-cache: the cache is neither read nor written.
type FetchPolicy string

const (
	FetchPolicyCacheFirst      FetchPolicy = "cache-first"
	FetchPolicyCacheAndNetwork FetchPolicy = "cache-and-network"
	FetchPolicyNetworkOnly     FetchPolicy = "network-only"
	FetchPolicyNoCache         FetchPolicy = "no-cache"
)

// ErrorPolicy governs whether partial-success responses (data + errors) are
// surfaced together (all) or treated as failures (none).
type ErrorPolicy string

const (
	ErrorPolicyNone ErrorPolicy = "none"
	ErrorPolicyAll  ErrorPolicy = "all"
)

// RequestPolicy is the per-operation-kind pair of fetch and error policies.
type RequestPolicy struct {
	FetchPolicy FetchPolicy
	ErrorPolicy ErrorPolicy
}

// DefaultOptions holds the default request policies per operation kind.
// Mutations carry no fetch policy; they never read from or write to the
// cache.
type DefaultOptions struct {
	WatchQuery RequestPolicy
	Query      RequestPolicy
	Mutate     RequestPolicy
}

// CacheMode selects the cache implementation and the matching default
// request policies. The zero value defers to the environment's default.
type CacheMode string

const (
	CacheModeDefault CacheMode = ""
	CacheModeMemory  CacheMode = "memory"
	CacheModeNone    CacheMode = "none"
)

// Cache stores operation results keyed by operation digest. Implementations
// must be safe for concurrent use.
type Cache interface {
	Lookup(key string) (*Response, bool)
	Store(key string, resp *Response)
	Clear()
}

// defaultMemoryCacheSize bounds the in-memory cache; entries beyond it are
// evicted least-recently-used first.
const defaultMemoryCacheSize = 512

// MemoryCache is an LRU-bounded in-memory result cache.
type MemoryCache struct {
	lru *lru.Cache
}

// NewMemoryCache creates a memory cache holding up to size entries. A
// non-positive size falls back to the default capacity.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	// lru.New only fails for a non-positive size, which is guarded above.
	c, _ := lru.New(size)
	return &MemoryCache{lru: c}
}

func (c *MemoryCache) Lookup(key string) (*Response, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Response), true
}

func (c *MemoryCache) Store(key string, resp *Response) {
	c.lru.Add(key, resp)
}

func (c *MemoryCache) Clear() {
	c.lru.Purge()
}

// buildCache produces the cache instance for a mode. The none mode returns a
// nil cache: the no-cache fetch policy short-circuits every cache path, so
// no store needs to be allocated.
func buildCache(mode CacheMode) Cache {
	if mode == CacheModeMemory {
		return NewMemoryCache(defaultMemoryCacheSize)
	}
	return nil
}

// buildCacheOptions produces the default request policies matching a cache
// mode. Cache and options must always be derived from the same resolved
// mode; New is the single place that does both.
func buildCacheOptions(mode CacheMode) DefaultOptions {
	switch mode {
	case CacheModeMemory:
		return DefaultOptions{
			WatchQuery: RequestPolicy{
				FetchPolicy: FetchPolicyCacheAndNetwork,
				ErrorPolicy: ErrorPolicyAll,
			},
			Query: RequestPolicy{
				FetchPolicy: FetchPolicyCacheAndNetwork,
				ErrorPolicy: ErrorPolicyAll,
			},
			Mutate: RequestPolicy{
				ErrorPolicy: ErrorPolicyAll,
			},
		}
	case CacheModeNone:
		return DefaultOptions{
			WatchQuery: RequestPolicy{FetchPolicy: FetchPolicyNoCache},
			Query:      RequestPolicy{FetchPolicy: FetchPolicyNoCache},
		}
	default:
		return DefaultOptions{}
	}
}

// mergeDefaultOptions overlays caller-supplied options onto the mode-derived
// defaults, field by field; zero fields keep the default.
func mergeDefaultOptions(base, override DefaultOptions) DefaultOptions {
	base.WatchQuery = mergeRequestPolicy(base.WatchQuery, override.WatchQuery)
	base.Query = mergeRequestPolicy(base.Query, override.Query)
	base.Mutate = mergeRequestPolicy(base.Mutate, override.Mutate)
	return base
}

func mergeRequestPolicy(base, override RequestPolicy) RequestPolicy {
	if override.FetchPolicy != "" {
		base.FetchPolicy = override.FetchPolicy
	}
	if override.ErrorPolicy != "" {
		base.ErrorPolicy = override.ErrorPolicy
	}
	return base
}
