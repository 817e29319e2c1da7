package types

import (
	"time"
)

// PromotionPolicy controls which faster layers receive a value after a
// hit in a slower layer.
type PromotionPolicy int

const (
	// PromoteNone disables promotion entirely
	PromoteNone PromotionPolicy = iota
	// PromoteFirstLayerOnly writes the value only into the fastest layer
	PromoteFirstLayerOnly
	// PromoteAllHigherLayers writes the value into every layer faster
	// than the one that produced the hit
	PromoteAllHigherLayers
)

// String returns string representation of the promotion policy
func (p PromotionPolicy) String() string {
	switch p {
	case PromoteNone:
		return "none"
	case PromoteFirstLayerOnly:
		return "first_layer_only"
	case PromoteAllHigherLayers:
		return "all_higher_layers"
	default:
		return "unknown"
	}
}

// ParsePromotionPolicy converts a config string into a PromotionPolicy.
// Unknown values fall back to PromoteAllHigherLayers.
func ParsePromotionPolicy(s string) PromotionPolicy {
	switch s {
	case "none":
		return PromoteNone
	case "first_layer_only":
		return PromoteFirstLayerOnly
	default:
		return PromoteAllHigherLayers
	}
}

// LayerStats represents performance counters for a single cache layer
type LayerStats struct {
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	Admissions uint64  `json:"admissions"`
	Rejections uint64  `json:"rejections"`
	Expired    uint64  `json:"expired"`
	Errors     uint64  `json:"errors"`
	Entries    int     `json:"entries"`
	HitRate    float64 `json:"hit_rate"`
}

// KeyMetrics represents the per-key counters tracked by the manager
type KeyMetrics struct {
	Hits           uint64    `json:"hits"`
	Misses         uint64    `json:"misses"`
	Promotions     uint64    `json:"promotions"`
	EarlyRefreshes uint64    `json:"early_refreshes"`
	AccessCount    uint64    `json:"access_count"`
	LastLatencyMs  float64   `json:"last_latency_ms"`
	LastRefreshAt  time.Time `json:"last_refresh_at"`
}

// Snapshot represents an immutable point-in-time view of manager
// telemetry. Building one iterates the per-key state maps once; the
// result is never mutated afterwards.
type Snapshot struct {
	Taken time.Time `json:"taken"`

	PerKey       map[string]KeyMetrics `json:"per_key"`
	InflightKeys []string              `json:"inflight_keys"`
	TopKeys      []string              `json:"top_keys"`

	TotalHits           uint64 `json:"total_hits"`
	TotalMisses         uint64 `json:"total_misses"`
	TotalPromotions     uint64 `json:"total_promotions"`
	TotalEarlyRefreshes uint64 `json:"total_early_refreshes"`
	TrackedKeys         int    `json:"tracked_keys"`
}
