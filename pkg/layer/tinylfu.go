package layer

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tiercache/tiercache/internal/policy"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/types"
)

// victimSampleSize is how many random keys the eviction path compares
const victimSampleSize = 5

// TinyLFUConfig represents W-TinyLFU layer configuration
type TinyLFUConfig struct {
	Name string `yaml:"name"`

	// MaxSize is the entry capacity that triggers sampled eviction
	MaxSize int `yaml:"max_size"`

	// SketchWidth and SketchDepth size the Count-Min Sketch
	SketchWidth int `yaml:"sketch_width"`
	SketchDepth int `yaml:"sketch_depth"`

	// BloomSize and BloomHashes size the cold-key doorkeeper.
	// BloomSize defaults to 2*MaxSize bits.
	BloomSize   int `yaml:"bloom_size"`
	BloomHashes int `yaml:"bloom_hashes"`

	// AdmissionEnabled gates probabilistic admission of cold keys
	AdmissionEnabled bool `yaml:"admission_enabled"`

	// DecayInterval is how often sketch counters are halved
	DecayInterval time.Duration `yaml:"decay_interval"`

	// SweepInterval is how often the expiry sweeper scans the map
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// SoftTTLWindow is the span before hard expiry during which hits
	// are counted as early-refresh eligible
	SoftTTLWindow time.Duration `yaml:"soft_ttl_window"`

	Logger *logging.Logger `yaml:"-"`
}

// DefaultTinyLFUConfig returns the default W-TinyLFU configuration
func DefaultTinyLFUConfig() *TinyLFUConfig {
	return &TinyLFUConfig{
		Name:             "tinylfu",
		MaxSize:          1000,
		SketchWidth:      1000,
		SketchDepth:      5,
		BloomHashes:      5,
		AdmissionEnabled: true,
		DecayInterval:    5 * time.Minute,
		SweepInterval:    time.Minute,
		SoftTTLWindow:    time.Minute,
	}
}

// TinyLFU is the in-memory layer with W-TinyLFU admission: a Count-Min
// Sketch tracks access frequency, a Bloom doorkeeper marks keys seen
// before, cold keys are admitted probabilistically against a sampled
// victim, and eviction removes the least-frequent of a small random
// sample.
type TinyLFU[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]

	sketch *policy.Sketch
	door   *policy.Bloom
	keyFn  types.KeyFunc[K]

	cfg    TinyLFUConfig
	logger *logging.Logger

	hits        atomic.Uint64
	misses      atomic.Uint64
	expired     atomic.Uint64
	evictions   atomic.Uint64
	admissions  atomic.Uint64
	rejections  atomic.Uint64
	softTTLHits atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTinyLFU creates a new W-TinyLFU layer
func NewTinyLFU[K comparable, V any](config *TinyLFUConfig) *TinyLFU[K, V] {
	return NewTinyLFUWithKeyFunc[K, V](config, types.DefaultKeyFunc[K]())
}

// NewTinyLFUWithKeyFunc creates a new W-TinyLFU layer with a custom
// key stringifier feeding the sketch and doorkeeper hashes.
func NewTinyLFUWithKeyFunc[K comparable, V any](config *TinyLFUConfig, keyFn types.KeyFunc[K]) *TinyLFU[K, V] {
	defaults := DefaultTinyLFUConfig()
	if config == nil {
		config = defaults
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaults.MaxSize
	}
	if config.SketchWidth <= 0 {
		config.SketchWidth = defaults.SketchWidth
	}
	if config.SketchDepth <= 0 {
		config.SketchDepth = defaults.SketchDepth
	}
	if config.BloomSize <= 0 {
		config.BloomSize = 2 * config.MaxSize
	}
	if config.BloomHashes <= 0 {
		config.BloomHashes = defaults.BloomHashes
	}
	if config.DecayInterval <= 0 {
		config.DecayInterval = defaults.DecayInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.SoftTTLWindow <= 0 {
		config.SoftTTLWindow = defaults.SoftTTLWindow
	}
	if keyFn == nil {
		keyFn = types.DefaultKeyFunc[K]()
	}

	t := &TinyLFU[K, V]{
		items:  make(map[K]entry[V], config.MaxSize),
		sketch: policy.NewSketch(config.SketchWidth, config.SketchDepth),
		door:   policy.NewBloom(config.BloomSize, config.BloomHashes),
		keyFn:  keyFn,
		cfg:    *config,
		logger: logging.OrNop(config.Logger).WithComponent(config.Name),
		stopCh: make(chan struct{}),
	}

	go t.decayLoop()
	go t.sweepLoop()

	return t
}

// Name identifies the layer
func (t *TinyLFU[K, V]) Name() string { return t.cfg.Name }

// Set stores the value subject to the admission policy. A cold,
// low-frequency key may be rejected silently; a full cache evicts a
// sampled low-frequency victim first, or rejects the newcomer when it
// is colder than the victim.
func (t *TinyLFU[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	h := policy.HashString(t.keyFn(key))
	t.sketch.Increment(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.items[key]

	if t.cfg.AdmissionEnabled && !exists && !t.door.Contains(h) {
		t.door.Add(h)

		if len(t.items) > 0 {
			fNew := t.sketch.Estimate(h)
			fVic := t.sampleVictimFrequency()
			p := float64(fNew) / float64(uint64(fNew)+uint64(fVic)+1)
			if rand.Float64() >= p {
				t.rejections.Add(1)
				return nil
			}
		}
	}

	if !exists && len(t.items) >= t.cfg.MaxSize {
		victim, vicFreq, ok := t.sampleVictim()
		if ok {
			if t.sketch.Estimate(h) < vicFreq {
				t.rejections.Add(1)
				return nil
			}
			delete(t.items, victim)
			t.evictions.Add(1)
		}
	}

	t.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	t.admissions.Add(1)
	return nil
}

// TryGet returns the stored value if present and not expired, counting
// the access in the frequency sketch either way.
func (t *TinyLFU[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	var zero V

	h := policy.HashString(t.keyFn(key))
	t.sketch.Increment(h)

	now := time.Now()

	t.mu.RLock()
	e, ok := t.items[key]
	t.mu.RUnlock()

	if !ok {
		t.misses.Add(1)
		return zero, false, nil
	}

	if e.expired(now) {
		t.mu.Lock()
		if cur, ok := t.items[key]; ok && cur.expired(time.Now()) {
			delete(t.items, key)
			t.expired.Add(1)
		}
		t.mu.Unlock()
		t.misses.Add(1)
		return zero, false, nil
	}

	t.hits.Add(1)
	if e.expiresAt.Sub(now) <= t.cfg.SoftTTLWindow {
		t.softTTLHits.Add(1)
	}
	return e.value, true, nil
}

// PromoteFromLowerLayer inserts a value that was just served by a
// slower layer. Admission is bypassed: the value already demonstrated
// demand. Eviction still fires if the cache is full.
func (t *TinyLFU[K, V]) PromoteFromLowerLayer(ctx context.Context, key K, value V, remainingTTL time.Duration) error {
	h := policy.HashString(t.keyFn(key))
	t.sketch.Increment(h)
	t.door.Add(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; !exists && len(t.items) >= t.cfg.MaxSize {
		if victim, _, ok := t.sampleVictim(); ok {
			delete(t.items, victim)
			t.evictions.Add(1)
		}
	}

	t.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(remainingTTL)}
	t.admissions.Add(1)
	return nil
}

// Delete removes the key if present
func (t *TinyLFU[K, V]) Delete(ctx context.Context, key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, key)
	return nil
}

// Len returns the number of stored entries, including expired ones
// not yet removed by access or the sweeper
func (t *TinyLFU[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Stats returns a copy of the layer's counters, including admissions
// and rejections. Soft-TTL hits are not part of Stats; SoftTTLHits
// reports them.
func (t *TinyLFU[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:       t.hits.Load(),
		Misses:     t.misses.Load(),
		Expired:    t.expired.Load(),
		Evictions:  t.evictions.Load(),
		Admissions: t.admissions.Load(),
		Rejections: t.rejections.Load(),
		Entries:    t.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// SoftTTLHits returns how many hits landed inside the soft-TTL window
func (t *TinyLFU[K, V]) SoftTTLHits() uint64 {
	return t.softTTLHits.Load()
}

// Close stops the decay and sweep loops
func (t *TinyLFU[K, V]) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	return nil
}

// sampleVictim picks up to victimSampleSize random live keys and
// returns the one with the lowest frequency estimate. Map iteration
// order supplies the randomness. Caller holds the lock.
func (t *TinyLFU[K, V]) sampleVictim() (K, uint32, bool) {
	var victim K
	var minFreq uint32
	found := false

	sampled := 0
	for k := range t.items {
		freq := t.sketch.Estimate(policy.HashString(t.keyFn(k)))
		if !found || freq < minFreq {
			victim, minFreq, found = k, freq, true
		}
		sampled++
		if sampled >= victimSampleSize {
			break
		}
	}
	return victim, minFreq, found
}

// sampleVictimFrequency returns the sampled victim's frequency, or 0
// for an empty cache. Caller holds the lock.
func (t *TinyLFU[K, V]) sampleVictimFrequency() uint32 {
	if _, freq, ok := t.sampleVictim(); ok {
		return freq
	}
	return 0
}

func (t *TinyLFU[K, V]) decayLoop() {
	ticker := time.NewTicker(t.cfg.DecayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sketch.Decay()
			t.logger.Debug("sketch decayed")
		}
	}
}

func (t *TinyLFU[K, V]) sweepLoop() {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			t.mu.Lock()
			removed := 0
			for k, e := range t.items {
				if e.expired(now) {
					delete(t.items, k)
					removed++
				}
			}
			t.mu.Unlock()
			if removed > 0 {
				t.expired.Add(uint64(removed))
				t.logger.Debug("swept expired entries", logging.F("count", removed))
			}
		}
	}
}
