package lsm

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a probabilistic data structure for set membership testing
// - False positives possible (may say key exists when it doesn't)
// - False negatives impossible (if it says key doesn't exist, it definitely doesn't)
type BloomFilter struct {
	bits      []byte
	size      int // in bits
	hashCount int
}

// NewBloomFilter creates a Bloom filter optimized for the given parameters
// expectedItems: number of items to store
// falsePositiveRate: desired false positive rate (e.g., 0.01 for 1%)
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01 // Default 1%
	}

	// m = -(n * ln(p)) / (ln(2)^2)
	// k = (m/n) * ln(2)
	size := int(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	hashCount := int(math.Ceil((float64(size) / float64(expectedItems)) * math.Ln2))

	return newBloomFilter(size, hashCount)
}

// newBloomFilter clamps the parameters to sane limits. The size is rounded
// up to whole bytes so a decoded filter probes the same bit positions.
func newBloomFilter(size, hashCount int) *BloomFilter {
	const maxSize = 1000000000 // 1 billion bits = ~119 MB
	if size > maxSize {
		size = maxSize
	}
	if size < 64 {
		size = 64
	}
	size = (size + 7) &^ 7
	if hashCount < 1 {
		hashCount = 1
	}
	if hashCount > 30 {
		hashCount = 30
	}

	return &BloomFilter{
		bits:      make([]byte, size/8),
		size:      size,
		hashCount: hashCount,
	}
}

// Add adds a key to the Bloom filter
func (bf *BloomFilter) Add(key []byte) {
	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := bf.position(h1, h2, i)
		bf.bits[bit/8] |= 1 << (bit % 8)
	}
}

// MayContain checks if a key might be in the set
func (bf *BloomFilter) MayContain(key []byte) bool {
	h1, h2 := bloomHashes(key)
	for i := 0; i < bf.hashCount; i++ {
		bit := bf.position(h1, h2, i)
		if bf.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// bloomHashes derives two independent 64-bit hashes for double hashing
func bloomHashes(key []byte) (uint64, uint64) {
	hash1 := xxhash.Sum64(key)

	d := xxhash.New()
	// Note: Digest.Write never returns an error
	_, _ = d.Write(key)
	_, _ = d.Write([]byte{0xFF}) // Different seed for hash2
	hash2 := d.Sum64()

	// Ensure hash2 is odd to avoid clustering
	if hash2%2 == 0 {
		hash2++
	}
	return hash1, hash2
}

// position computes (h1 + i*h2) % size
func (bf *BloomFilter) position(h1, h2 uint64, i int) int {
	return int((h1 + uint64(i)*h2) % uint64(bf.size))
}

// Size returns the size of the filter in bits
func (bf *BloomFilter) Size() int {
	return bf.size
}

// HashCount returns the number of hash functions
func (bf *BloomFilter) HashCount() int {
	return bf.hashCount
}

// EstimateFalsePositiveRate estimates current false positive rate
func (bf *BloomFilter) EstimateFalsePositiveRate(itemCount int) float64 {
	// p = (1 - e^(-k*n/m))^k
	k := float64(bf.hashCount)
	n := float64(itemCount)
	m := float64(bf.size)

	return math.Pow(1.0-math.Exp(-k*n/m), k)
}

// MarshalBinary serializes the filter as its bit array followed by the hash count
func (bf *BloomFilter) MarshalBinary() []byte {
	data := make([]byte, len(bf.bits)+1)
	copy(data, bf.bits)
	data[len(bf.bits)] = byte(bf.hashCount)
	return data
}

// unmarshalBloomFilter decodes a filter produced by MarshalBinary. The bit
// array is aliased, not copied.
func unmarshalBloomFilter(data []byte) (*BloomFilter, bool) {
	if len(data) < 2 {
		return nil, false
	}
	hashCount := int(data[len(data)-1])
	if hashCount < 1 || hashCount > 30 {
		return nil, false
	}
	bits := data[:len(data)-1]
	return &BloomFilter{bits: bits, size: len(bits) * 8, hashCount: hashCount}, true
}

// BloomPolicy is a FilterPolicy that sizes each table's Bloom filter at a
// fixed number of bits per key.
type BloomPolicy struct {
	bitsPerKey int
}

var _ FilterPolicy = (*BloomPolicy)(nil)

// NewBloomPolicy creates a policy using bitsPerKey bits for every key.
// Ten bits per key yields roughly a 1% false positive rate.
func NewBloomPolicy(bitsPerKey int) *BloomPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &BloomPolicy{bitsPerKey: bitsPerKey}
}

// Name identifies the filter format
func (p *BloomPolicy) Name() string {
	return "hackdb.BuiltinBloomFilter"
}

// BitsPerKey returns the configured density
func (p *BloomPolicy) BitsPerKey() int {
	return p.bitsPerKey
}

// NewFilter builds a serialized filter containing keys
func (p *BloomPolicy) NewFilter(keys [][]byte) []byte {
	hashCount := int(float64(p.bitsPerKey) * math.Ln2)
	bf := newBloomFilter(len(keys)*p.bitsPerKey, hashCount)
	for _, key := range keys {
		bf.Add(key)
	}
	return bf.MarshalBinary()
}

// MayContain reports whether key may be in filter. Malformed filters match
// everything, so a damaged filter costs a disk read, never a lost key.
func (p *BloomPolicy) MayContain(filter, key []byte) bool {
	bf, ok := unmarshalBloomFilter(filter)
	if !ok {
		return true
	}
	return bf.MayContain(key)
}
