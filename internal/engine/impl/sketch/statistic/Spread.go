package statistic

import (
	"bytes"
	"math"
	"math/bits"
	"math/rand"
	"slices"
	"sync"
)

const (
	spreadDefaultWidth     = 1 << 16
	spreadDefaultDepth     = 3
	spreadDefaultThreshold = 4096
	spreadDefaultRegisters = 128
	spreadMinRegisters     = 16
)

// spreadBucket pairs a majority-vote flow fingerprint with a HyperLogLog
// register bank estimating the distinct elements seen for that flow.
type spreadBucket struct {
	fp        []byte
	votes     uint32
	registers []uint8
}

func (b *spreadBucket) observe(hash uint32, p uint8) {
	idx := hash >> (32 - p)
	rest := hash << p
	rank := uint8(bits.LeadingZeros32(rest)) + 1
	if maxRank := uint8(32-p) + 1; rank > maxRank {
		rank = maxRank
	}
	if rank > b.registers[idx] {
		b.registers[idx] = rank
	}
}

func (b *spreadBucket) estimate() uint64 {
	m := float64(len(b.registers))
	sum := 0.0
	zeros := 0
	for _, r := range b.registers {
		sum += 1.0 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}
	alpha := 0.7213 / (1 + 1.079/m)
	est := alpha * m * m / sum
	if est <= 2.5*m && zeros > 0 {
		est = m * math.Log(m/float64(zeros))
	}
	return uint64(est + 0.5)
}

// Spread estimates per-flow spread: how many distinct elements (e.g.
// destination IPs) each flow key has touched. Bucket ownership uses the
// same majority vote as CountMin; the distinct counting itself is a
// HyperLogLog per bucket.
type Spread struct {
	w, d      uint32
	threshold uint32
	p         uint8
	seeds     []uint32
	elemSeed  uint32
	rows      [][]spreadBucket
	mus       []sync.Mutex
}

// NewSpread creates a spread sketch. registers is the HyperLogLog bank
// size per bucket and is rounded up to a power of two. Zero values fall
// back to the package defaults. flowSize is the byte width of the encoded
// flow keys that will be inserted.
func NewSpread(width, depth, threshold, registers uint32, flowSize uint32) *Spread {
	if width == 0 {
		width = spreadDefaultWidth
	}
	if depth == 0 {
		depth = spreadDefaultDepth
	}
	if threshold == 0 {
		threshold = spreadDefaultThreshold
	}
	if registers < spreadMinRegisters {
		registers = spreadDefaultRegisters
	}
	registers = 1 << bits.Len32(registers-1)
	p := uint8(bits.Len32(registers) - 1)

	seeds := make([]uint32, depth)
	for i := range seeds {
		seeds[i] = rand.Uint32()
	}

	rows := make([][]spreadBucket, depth)
	for i := range rows {
		rows[i] = make([]spreadBucket, width)
		for j := range rows[i] {
			rows[i][j] = spreadBucket{
				fp:        make([]byte, flowSize),
				registers: make([]uint8, registers),
			}
		}
	}

	return &Spread{
		w:         width,
		d:         depth,
		threshold: threshold,
		p:         p,
		seeds:     seeds,
		elemSeed:  rand.Uint32(),
		rows:      rows,
		mus:       make([]sync.Mutex, depth),
	}
}

// Insert records that flow touched elem. size is ignored; it exists so
// CountMin and Spread share the Sketch interface.
func (s *Spread) Insert(flow, elem []byte, size uint64) {
	// Chain the hashes so equal (flow, elem) pairs land on the same
	// register with the same rank in every row.
	elemHash := MurmurHash3(elem, MurmurHash3(flow, s.elemSeed))

	for i := 0; i < int(s.d); i++ {
		j := MurmurHash3(flow, s.seeds[i]) % s.w
		s.mus[i].Lock()
		bucket := &s.rows[i][j]
		if bucket.votes == 0 {
			copy(bucket.fp, flow)
			bucket.votes = 1
		} else if bytes.Equal(bucket.fp, flow) {
			bucket.votes++
		} else {
			bucket.votes--
		}
		bucket.observe(elemHash, s.p)
		s.mus[i].Unlock()
	}
}

// Query returns the estimated spread of a flow, 0 if no bucket currently
// belongs to it. Colliding flows only inflate a bucket's registers, so
// the smallest owning estimate is the tightest one.
func (s *Spread) Query(flow []byte) uint64 {
	estimate := uint64(math.MaxUint64)
	found := false
	for i := 0; i < int(s.d); i++ {
		j := MurmurHash3(flow, s.seeds[i]) % s.w
		s.mus[i].Lock()
		bucket := &s.rows[i][j]
		if bytes.Equal(bucket.fp, flow) {
			found = true
			estimate = min(estimate, bucket.estimate())
		}
		s.mus[i].Unlock()
	}
	if !found {
		return 0
	}
	return estimate
}

// HeavyHitters returns every flow whose estimated spread crossed the
// threshold, sorted in descending order. Only the Count list is
// populated; a spread sketch tracks no byte volume.
func (s *Spread) HeavyHitters() HeavyRecord {
	flowSet := make(map[string]bool)
	for i := 0; i < int(s.d); i++ {
		s.mus[i].Lock()
		for j := 0; j < int(s.w); j++ {
			if s.rows[i][j].votes > 0 {
				flowSet[string(s.rows[i][j].fp)] = true
			}
		}
		s.mus[i].Unlock()
	}

	results := make([]HeavyCount, 0)
	for flowID := range flowSet {
		estimate := s.Query([]byte(flowID))
		if estimate >= uint64(s.threshold) {
			results = append(results, HeavyCount{
				Flow:  []byte(flowID),
				Count: uint32(estimate),
			})
		}
	}

	slices.SortFunc(results, func(a, b HeavyCount) int {
		return int(b.Count) - int(a.Count)
	})

	return HeavyRecord{Count: results}
}

// Reset clears every bucket for a new measurement period.
func (s *Spread) Reset() {
	for i := 0; i < int(s.d); i++ {
		s.mus[i].Lock()
		for j := range s.rows[i] {
			bucket := &s.rows[i][j]
			for k := range bucket.fp {
				bucket.fp[k] = 0
			}
			bucket.votes = 0
			for k := range bucket.registers {
				bucket.registers[k] = 0
			}
		}
		s.mus[i].Unlock()
	}
}
