package cache

import "context"

// Metric label values for the two tiers.
const (
	TierL1 = "l1"
	TierL2 = "l2"
)

// TierStats holds the hit, miss, and eviction counters for one tier.
type TierStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// TotalRequests returns the number of lookups the tier has served.
func (s TierStats) TotalRequests() int64 {
	return s.Hits + s.Misses
}

// HitRate returns the hit percentage in [0,100], or 0 before any lookup.
func (s TierStats) HitRate() float64 {
	total := s.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100.0 / float64(total)
}

// Tier is one level of the cache. Implementations never surface I/O errors
// to callers: a failed read is a miss and a failed write is dropped, so an
// unhealthy tier degrades lookups instead of failing requests.
type Tier interface {
	// Enabled reports whether the tier participates in lookups at all.
	Enabled() bool

	// Get returns the cached value for key, if present and unexpired.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value under key with the tier's TTL.
	Set(ctx context.Context, key, value string)

	// Delete removes key.
	Delete(ctx context.Context, key string)

	// Clear removes every entry owned by this tier.
	Clear(ctx context.Context)

	// Stats returns a snapshot of the tier counters.
	Stats() TierStats

	// Close releases the tier's resources.
	Close() error
}
