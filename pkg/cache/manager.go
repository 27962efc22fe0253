package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
)

// CombinedStats joins the per-tier counters for analytics.
type CombinedStats struct {
	L1 TierStats
	L2 TierStats
}

// TotalHits counts hits across both tiers.
func (s CombinedStats) TotalHits() int64 {
	return s.L1.Hits + s.L2.Hits
}

// TotalMisses counts misses across both tiers.
func (s CombinedStats) TotalMisses() int64 {
	return s.L1.Misses + s.L2.Misses
}

// OverallHitRate is the combined hit percentage. Tier-1 sees every lookup,
// so its request count is the denominator; tier-2 traffic is internal.
func (s CombinedStats) OverallHitRate() float64 {
	total := s.L1.TotalRequests()
	if total == 0 {
		return 0
	}
	return float64(s.TotalHits()) * 100.0 / float64(total)
}

// Manager fronts the two tiers: reads check tier-1 then tier-2 and promote
// tier-2 hits, writes land in both.
type Manager struct {
	keys *KeyGenerator
	l1   Tier
	l2   Tier
}

// NewManager wires a manager over the given tiers.
func NewManager(keys *KeyGenerator, l1, l2 Tier) *Manager {
	return &Manager{keys: keys, l1: l1, l2: l2}
}

// Keys exposes the key generator so callers can log or test derived keys.
func (m *Manager) Keys() *KeyGenerator {
	return m.keys
}

// Lookup returns the cached response for a prompt and model, promoting
// tier-2 hits into tier-1 on the way out.
func (m *Manager) Lookup(ctx context.Context, prompt, modelID string) (string, bool) {
	key := m.keys.Key(prompt, modelID)

	if value, ok := m.l1.Get(ctx, key); ok {
		logging.Debugf("cache hit (l1): %s", key)
		return value, true
	}

	if value, ok := m.l2.Get(ctx, key); ok {
		m.l1.Set(ctx, key, value)
		logging.Debugf("cache hit (l2, promoted): %s", key)
		return value, true
	}

	logging.Debugf("cache miss: %s", key)
	return "", false
}

// Store writes the response through both tiers.
func (m *Manager) Store(ctx context.Context, prompt, modelID, response string) {
	key := m.keys.Key(prompt, modelID)
	m.l1.Set(ctx, key, response)
	m.l2.Set(ctx, key, response)
}

// Evict removes the entry for a prompt and model from both tiers.
func (m *Manager) Evict(ctx context.Context, prompt, modelID string) {
	key := m.keys.Key(prompt, modelID)
	m.l1.Delete(ctx, key)
	m.l2.Delete(ctx, key)
}

// Clear empties both tiers. The tier-2 clear only touches keys under the
// configured prefix.
func (m *Manager) Clear(ctx context.Context) {
	m.l1.Clear(ctx)
	m.l2.Clear(ctx)
	logging.Infof("cache cleared (both tiers)")
}

// Stats snapshots both tiers.
func (m *Manager) Stats() CombinedStats {
	return CombinedStats{
		L1: m.l1.Stats(),
		L2: m.l2.Stats(),
	}
}

// Healthy probes each tier with a write-read-delete cycle. A disabled
// tier-2 passes by definition.
func (m *Manager) Healthy(ctx context.Context) bool {
	probeKey := fmt.Sprintf("%s:health_check_%d", m.keys.Prefix(), time.Now().UnixMilli())

	ok := probeTier(ctx, m.l1, probeKey)
	if ok && m.l2.Enabled() {
		ok = probeTier(ctx, m.l2, probeKey)
	}
	if !ok {
		logging.Warnf("cache health check failed")
	}
	return ok
}

// Close releases both tiers.
func (m *Manager) Close() error {
	err1 := m.l1.Close()
	err2 := m.l2.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func probeTier(ctx context.Context, tier Tier, key string) bool {
	tier.Set(ctx, key, "ok")
	value, ok := tier.Get(ctx, key)
	tier.Delete(ctx, key)
	return ok && value == "ok"
}
