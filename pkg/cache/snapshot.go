package cache

import (
	"sort"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// Snapshot builds an immutable view of the manager's telemetry:
// per-key counters, the in-flight key set, global totals, and the topN
// keys by access count. Cost is one pass over the per-key state.
func (m *Manager[K, V]) Snapshot(topN int) types.Snapshot {
	snap := types.Snapshot{
		Taken:               time.Now(),
		PerKey:              make(map[string]types.KeyMetrics),
		TotalHits:           m.totalHits.Load(),
		TotalMisses:         m.totalMisses.Load(),
		TotalPromotions:     m.totalPromotions.Load(),
		TotalEarlyRefreshes: m.totalEarlyRefreshes.Load(),
	}

	m.keys.Range(func(k, v interface{}) bool {
		ks := v.(*keyState)
		metrics := types.KeyMetrics{
			Hits:           ks.hits.Load(),
			Misses:         ks.misses.Load(),
			Promotions:     ks.promotions.Load(),
			EarlyRefreshes: ks.earlyRefreshes.Load(),
			AccessCount:    ks.accesses.Load(),
		}
		if ref := ks.lastRefresh.Load(); ref != 0 {
			metrics.LastRefreshAt = time.Unix(0, ref)
		}
		snap.PerKey[k.(string)] = metrics
		return true
	})
	snap.TrackedKeys = len(snap.PerKey)

	m.inflight.Range(func(k, _ interface{}) bool {
		snap.InflightKeys = append(snap.InflightKeys, k.(string))
		return true
	})
	sort.Strings(snap.InflightKeys)

	if topN > 0 {
		type ranked struct {
			key      string
			accesses uint64
		}
		all := make([]ranked, 0, len(snap.PerKey))
		for k, km := range snap.PerKey {
			all = append(all, ranked{key: k, accesses: km.AccessCount})
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].accesses != all[j].accesses {
				return all[i].accesses > all[j].accesses
			}
			return all[i].key < all[j].key
		})
		if topN > len(all) {
			topN = len(all)
		}
		snap.TopKeys = make([]string, topN)
		for i := 0; i < topN; i++ {
			snap.TopKeys[i] = all[i].key
		}
	}

	return snap
}
