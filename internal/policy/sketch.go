// Package policy provides the frequency structures behind W-TinyLFU
// admission: a Count-Min Sketch and a Bloom-filter doorkeeper.
package policy

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Sketch is a Count-Min Sketch for approximate frequency counting.
// Estimates carry one-sided error: Estimate never under-counts the
// true increment total (absent decay).
//
// Increments touch one counter per row with an atomic add and are safe
// under concurrency. Decay takes the exclusive lock and halves every
// cell so recency dominates long-run frequency.
type Sketch struct {
	mu    sync.RWMutex
	rows  [][]uint32
	seeds []uint64
	width uint64
	depth int
}

// NewSketch creates a depth x width sketch. Width is rounded up to a
// power of two for cheap modulo.
func NewSketch(width, depth int) *Sketch {
	if width <= 0 {
		width = 1024
	}
	if depth <= 0 {
		depth = 5
	}

	w := uint64(1)
	for w < uint64(width) {
		w <<= 1
	}

	s := &Sketch{
		rows:  make([][]uint32, depth),
		seeds: make([]uint64, depth),
		width: w,
		depth: depth,
	}
	for i := 0; i < depth; i++ {
		s.rows[i] = make([]uint32, w)
		s.seeds[i] = rand.Uint64()
	}
	return s
}

// Increment adds one to the counter for keyHash in every row.
func (s *Sketch) Increment(keyHash uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.depth; i++ {
		idx := s.index(keyHash, i)
		atomic.AddUint32(&s.rows[i][idx], 1)
	}
}

// Estimate returns the minimum counter value across rows for keyHash.
func (s *Sketch) Estimate(keyHash uint64) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	min := ^uint32(0)
	for i := 0; i < s.depth; i++ {
		idx := s.index(keyHash, i)
		if v := atomic.LoadUint32(&s.rows[i][idx]); v < min {
			min = v
		}
	}
	return min
}

// Decay halves every counter in the sketch.
func (s *Sketch) Decay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.depth; i++ {
		row := s.rows[i]
		for j := range row {
			row[j] >>= 1
		}
	}
}

// Reset zeroes every counter.
func (s *Sketch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.depth; i++ {
		row := s.rows[i]
		for j := range row {
			row[j] = 0
		}
	}
}

// index computes the row slot for keyHash, mixing in the row seed.
func (s *Sketch) index(keyHash uint64, row int) uint64 {
	h := keyHash ^ s.seeds[row]
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h & (s.width - 1)
}

// HashString hashes a key's string form for use with Sketch and Bloom.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}
