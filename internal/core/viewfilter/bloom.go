package viewfilter

import (
	"hash/fnv"
	"math"
)

// bloomFilter is a fixed-size bit array with k double-hashed FNV functions.
// Guarantees: after add(v), test(v) is always true (no false negatives).
// test(v) may return true for a value never added; the false-positive
// probability stays below the configured rate while the number of added
// values stays at or below the sizing capacity.
//
// Not safe for concurrent use; the owning Filter serializes access.
type bloomFilter struct {
	bits    []uint64
	size    uint64 // number of bits, multiple of 64
	hashFns int
}

// newBloomFilter sizes the bit array and hash count for the expected number
// of distinct items at the target false-positive rate, using the standard
// m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2) formulas.
func newBloomFilter(expectedItems int, falsePositiveRate float64) *bloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	ln2 := math.Ln2
	m := int(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (ln2 * ln2)))
	if m < 64 {
		m = 64
	}

	k := int(math.Round(float64(m) / float64(expectedItems) * ln2))
	if k < 1 {
		k = 1
	}
	if k > 12 {
		k = 12
	}

	words := (m + 63) / 64
	return &bloomFilter{
		bits:    make([]uint64, words),
		size:    uint64(words * 64),
		hashFns: k,
	}
}

func (bf *bloomFilter) add(key string) {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
}

func (bf *bloomFilter) test(key string) bool {
	h1, h2 := hashPair(key)
	for i := 0; i < bf.hashFns; i++ {
		idx := (h1 + uint64(i)*h2) % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// hashPair derives two independent 64-bit hashes for double hashing:
// h(i) = h1 + i*h2.
func hashPair(key string) (uint64, uint64) {
	f1 := fnv.New64a()
	f1.Write([]byte(key))
	h1 := f1.Sum64()

	f2 := fnv.New64()
	f2.Write([]byte(key))
	f2.Write([]byte{0xff})
	h2 := f2.Sum64()

	// h2 must be odd so the probe sequence covers the table.
	return h1, h2 | 1
}
