package metrics

import (
	"sync"
	"time"

	"github.com/cam3ron2/gitroster/internal/githubapi"
)

// MetricsBundle is the complete set of metrics for one repository identity at
// one point in time. It is immutable once produced; a cache hit returns the
// same value a fresh fetch would have stored.
type MetricsBundle struct {
	TotalCommits int                       `json:"totalCommits"`
	RecentCommit *githubapi.RecentCommit   `json:"recentCommit"`
	Repository   *githubapi.RepositoryInfo `json:"repositoryInfo"`
	TotalLines   *int64                    `json:"totalLinesOfCode"`
	Err          string                    `json:"error,omitempty"`
}

type cacheEntry struct {
	storedAt time.Time
	bundle   MetricsBundle
}

// BundleCache is a process-local, time-bounded store of fetched metric
// bundles keyed by identity and fetch mode. Entries expire lazily on read;
// an expired entry is treated as absent but stays in place until overwritten
// or explicitly invalidated.
type BundleCache struct {
	ttl time.Duration
	// Now is injected for testability.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewBundleCache creates a bundle cache with the given time-to-live.
func NewBundleCache(ttl time.Duration) *BundleCache {
	return &BundleCache{
		ttl:     ttl,
		Now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey builds the cache key for an identity and fetch mode. The mode is
// part of the key because a bundle fetched without LOC must not satisfy a
// request that includes it, and vice versa.
func CacheKey(id RepoIdentity, includeLOC bool) string {
	mode := "noloc"
	if includeLOC {
		mode = "loc"
	}
	return id.Key() + ":" + mode
}

// Get returns the cached bundle for key, reporting a miss when no entry
// exists or the entry has outlived the TTL.
func (c *BundleCache) Get(key string) (MetricsBundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return MetricsBundle{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		return MetricsBundle{}, false
	}
	return entry.bundle, true
}

// Put stores a bundle under key, stamping the current time. Unconditional
// overwrite.
func (c *BundleCache) Put(key string, bundle MetricsBundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		storedAt: c.now(),
		bundle:   bundle,
	}
}

// Invalidate removes both mode variants for an identity.
func (c *BundleCache) Invalidate(id RepoIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, CacheKey(id, true))
	delete(c.entries, CacheKey(id, false))
}

// Clear removes all entries.
func (c *BundleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *BundleCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
