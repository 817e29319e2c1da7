package policy

import (
	"math/rand"
	"sync/atomic"
)

// Bloom is a fixed-size Bloom filter used as the cold-key doorkeeper:
// a key absent from the filter has provably never been added. Bit
// writes use atomic OR; concurrent adds may both see "new" for the
// same key, which at worst admits one extra candidate.
type Bloom struct {
	bits   []uint64
	mask   uint64
	hashes int
	seed1  uint64
	seed2  uint64
}

// NewBloom creates a filter with at least size bits and the given
// number of hash probes. Size is rounded up to a power of two.
func NewBloom(size, hashes int) *Bloom {
	if size <= 0 {
		size = 2048
	}
	if hashes <= 0 {
		hashes = 5
	}

	m := uint64(1)
	for m < uint64(size) {
		m <<= 1
	}

	return &Bloom{
		bits:   make([]uint64, (m+63)/64),
		mask:   m - 1,
		hashes: hashes,
		seed1:  rand.Uint64() | 1,
		seed2:  rand.Uint64() | 1,
	}
}

// Add sets the key's probe bits.
func (b *Bloom) Add(keyHash uint64) {
	h1, h2 := b.probes(keyHash)
	for i := 0; i < b.hashes; i++ {
		bit := (h1 + uint64(i)*h2) & b.mask
		atomic.OrUint64(&b.bits[bit>>6], 1<<(bit&63))
	}
}

// Contains reports whether every probe bit for the key is set. False
// means the key was definitely never added.
func (b *Bloom) Contains(keyHash uint64) bool {
	h1, h2 := b.probes(keyHash)
	for i := 0; i < b.hashes; i++ {
		bit := (h1 + uint64(i)*h2) & b.mask
		if atomic.LoadUint64(&b.bits[bit>>6])&(1<<(bit&63)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears the filter.
func (b *Bloom) Reset() {
	for i := range b.bits {
		atomic.StoreUint64(&b.bits[i], 0)
	}
}

// probes derives the double-hashing pair for a key.
func (b *Bloom) probes(keyHash uint64) (uint64, uint64) {
	h1 := keyHash ^ b.seed1
	h1 ^= h1 >> 33
	h1 *= 0xff51afd7ed558ccd
	h1 ^= h1 >> 33

	h2 := keyHash ^ b.seed2
	h2 ^= h2 >> 29
	h2 *= 0xc4ceb9fe1a85ec53
	h2 ^= h2 >> 32
	return h1, h2 | 1
}
