package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
)

// Defaults for the in-process tier.
const (
	DefaultL1MaxSize = 1000
	DefaultL1TTL     = 60 * time.Minute
)

type memoryEntry struct {
	value      string
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryTier is the bounded in-process tier. Entries expire a fixed duration
// after they are written; when the tier is full the least recently used
// entry makes room.
type MemoryTier struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	maxSize int
	ttl     time.Duration

	hits      int64
	misses    int64
	evictions int64
}

// NewMemoryTier builds the in-process tier. Non-positive sizes and TTLs
// select the defaults.
func NewMemoryTier(maxSize int, ttl time.Duration) *MemoryTier {
	if maxSize < 1 {
		maxSize = DefaultL1MaxSize
	}
	if ttl <= 0 {
		ttl = DefaultL1TTL
	}
	return &MemoryTier{
		entries: make(map[string]*memoryEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Enabled always reports true; the in-process tier cannot be turned off.
func (t *MemoryTier) Enabled() bool { return true }

// Get returns the entry for key and freshens its recency. Expired entries
// are removed and reported as misses.
func (t *MemoryTier) Get(_ context.Context, key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		t.misses++
		metrics.RecordCacheMiss(TierL1)
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(t.entries, key)
		metrics.UpdateCacheEntries(TierL1, len(t.entries))
		t.misses++
		metrics.RecordCacheMiss(TierL1)
		return "", false
	}

	entry.lastAccess = time.Now()
	t.hits++
	metrics.RecordCacheHit(TierL1)
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the tier is already full.
func (t *MemoryTier) Set(_ context.Context, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeExpired()

	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.maxSize {
		t.evictVictim()
	}

	now := time.Now()
	t.entries[key] = &memoryEntry{
		value:      value,
		expiresAt:  now.Add(t.ttl),
		lastAccess: now,
	}
	metrics.UpdateCacheEntries(TierL1, len(t.entries))
}

// Delete removes key if present.
func (t *MemoryTier) Delete(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
	metrics.UpdateCacheEntries(TierL1, len(t.entries))
}

// Clear drops every entry. Counters are retained so hit rates survive an
// operator-initiated clear.
func (t *MemoryTier) Clear(_ context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared := len(t.entries)
	t.entries = make(map[string]*memoryEntry)
	metrics.UpdateCacheEntries(TierL1, 0)
	logging.Debugf("memory tier cleared %d entries", cleared)
}

// Stats returns a snapshot of the tier counters.
func (t *MemoryTier) Stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TierStats{
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
		Size:      len(t.entries),
	}
}

// Close is a no-op for the in-process tier.
func (t *MemoryTier) Close() error { return nil }

// evictVictim removes the least recently used entry. Callers hold the lock.
func (t *MemoryTier) evictVictim() {
	var victim string
	var oldest time.Time
	for key, entry := range t.entries {
		if victim == "" || entry.lastAccess.Before(oldest) {
			victim = key
			oldest = entry.lastAccess
		}
	}
	if victim == "" {
		return
	}
	delete(t.entries, victim)
	t.evictions++
	logging.Debugf("memory tier evicted %s", victim)
}

// removeExpired drops entries past their write deadline. Expiry is not
// counted as eviction; only capacity pressure is. Callers hold the lock.
func (t *MemoryTier) removeExpired() {
	now := time.Now()
	for key, entry := range t.entries {
		if now.After(entry.expiresAt) {
			delete(t.entries, key)
		}
	}
}
