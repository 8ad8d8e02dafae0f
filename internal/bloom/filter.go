// Package bloom implements a fixed-size Bloom filter over 64-bit signed
// integer keys, used to short-circuit negative point lookups in BSST
// segments during LSM reads.
package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/spaolacci/murmur3"
)

// ErrInvalidConfig is returned when n or bpe are non-positive.
var ErrInvalidConfig = errors.New("bloom: invalid configuration")

// Filter is a bit array tested and set by k independent MurmurHash3
// (x86, 32-bit) hash functions, one per seed.
type Filter struct {
	bits []uint64 // bit array packed as little-endian words, bit 0 first
	n    int64    // expected number of entries
	bpe  int64    // bits per entry
	m    int64    // total number of bits (n * bpe)
	seeds []uint32
}

// New constructs a Filter sized for n entries at bpe bits per entry,
// drawing k = ceil(ln(2)*bpe) random 32-bit seeds.
func New(n int64, bpe int64) (*Filter, error) {
	if n <= 0 || bpe <= 0 {
		return nil, fmt.Errorf("%w: n=%d bpe=%d", ErrInvalidConfig, n, bpe)
	}

	m := n * bpe
	k := int(math.Ceil(math.Ln2 * float64(bpe)))
	if k < 1 {
		k = 1
	}

	seeds := make([]uint32, k)
	for i := range seeds {
		seeds[i] = rand.Uint32()
	}

	words := (m + 63) / 64
	return &Filter{
		bits:  make([]uint64, words),
		n:     n,
		bpe:   bpe,
		m:     m,
		seeds: seeds,
	}, nil
}

// FromState reconstructs a Filter byte-for-byte from an existing bit
// array, entry count, bits-per-entry and seed list (the read-back path
// used when opening a BSSTSegment).
func FromState(bits []uint64, n int64, bpe int64, seeds []uint32) (*Filter, error) {
	if n <= 0 || bpe <= 0 {
		return nil, fmt.Errorf("%w: n=%d bpe=%d", ErrInvalidConfig, n, bpe)
	}

	f := &Filter{
		bits:  bits,
		n:     n,
		bpe:   bpe,
		m:     n * bpe,
		seeds: seeds,
	}
	return f, nil
}

// Insert marks key as present.
func (f *Filter) Insert(key int64) {
	for _, bit := range f.bitPositions(key) {
		f.setBit(bit)
	}
}

// Includes reports whether key might be present. A false return means
// key was definitely never inserted; a true return may be a false
// positive.
func (f *Filter) Includes(key int64) bool {
	for _, bit := range f.bitPositions(key) {
		if !f.getBit(bit) {
			return false
		}
	}
	return true
}

// bitPositions computes, for each seed, MurmurHash3_x86_32(key, seed) mod m.
func (f *Filter) bitPositions(key int64) []int64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))

	positions := make([]int64, len(f.seeds))
	for i, seed := range f.seeds {
		hasher := murmur3.New32WithSeed(seed)
		hasher.Write(buf[:]) //nolint:errcheck // hash.Hash32.Write never errors
		positions[i] = int64(hasher.Sum32()) % f.m
	}
	return positions
}

func (f *Filter) setBit(bit int64) {
	word, offset := bit/64, uint(bit%64)
	f.bits[word] |= 1 << offset
}

func (f *Filter) getBit(bit int64) bool {
	word, offset := bit/64, uint(bit%64)
	return f.bits[word]&(1<<offset) != 0
}

// NumEntries returns the n this filter was sized for.
func (f *Filter) NumEntries() int64 { return f.n }

// BitsPerEntry returns the configured bpe.
func (f *Filter) BitsPerEntry() int64 { return f.bpe }

// NumHashFunctions returns k, the number of seeds.
func (f *Filter) NumHashFunctions() int { return len(f.seeds) }

// Seeds returns the filter's hash seeds, in the order used for hashing.
func (f *Filter) Seeds() []uint32 { return f.seeds }

// Words returns the packed bit array, one uint64 per 64 bits.
func (f *Filter) Words() []uint64 { return f.bits }
