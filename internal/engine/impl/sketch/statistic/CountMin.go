package statistic

import (
	"bytes"
	"math/rand"
	"slices"
	"sync"
)

const (
	defaultWidth          = 1 << 20
	defaultDepth          = 3
	defaultCountThreshold = 512
	defaultSizeThreshold  = 1 << 20
)

// Bucket holds a single fingerprinted counter pair: the flow currently
// owning the bucket, its vote count, and the byte volume attributed to it.
type Bucket struct {
	FP []byte
	C  uint32
	S  uint64
}

// CountMin is a fingerprinted count-min sketch over flow keys. Each row
// resolves bucket ownership by majority vote, so a heavy flow holds its
// buckets while light colliders cancel each other out.
type CountMin struct {
	w, d           uint32
	countThreshold uint32
	sizeThreshold  uint64
	seeds          []uint32
	rows           [][]Bucket
	mus            []sync.Mutex
}

// NewCountMin creates a sketch with the given geometry. Zero values fall
// back to the package defaults. flowSize is the byte width of the encoded
// flow keys that will be inserted.
func NewCountMin(width, depth uint32, sizeThreshold uint64, countThreshold uint32, flowSize uint32) *CountMin {
	if width == 0 {
		width = defaultWidth
	}
	if depth == 0 {
		depth = defaultDepth
	}
	if countThreshold == 0 {
		countThreshold = defaultCountThreshold
	}
	if sizeThreshold == 0 {
		sizeThreshold = defaultSizeThreshold
	}

	seeds := make([]uint32, depth)
	for i := range seeds {
		seeds[i] = rand.Uint32()
	}

	rows := make([][]Bucket, depth)
	for i := range rows {
		rows[i] = make([]Bucket, width)
		for j := range rows[i] {
			rows[i][j] = Bucket{
				FP: make([]byte, flowSize),
			}
		}
	}

	return &CountMin{
		w:              width,
		d:              depth,
		countThreshold: countThreshold,
		sizeThreshold:  sizeThreshold,
		seeds:          seeds,
		rows:           rows,
		mus:            make([]sync.Mutex, depth),
	}
}

// Insert records one observation of flow carrying size bytes. elem is
// unused here; it exists so CountMin and Spread share the Sketch interface.
func (t *CountMin) Insert(flow, elem []byte, size uint64) {
	for i := 0; i < int(t.d); i++ {
		index := MurmurHash3(flow, t.seeds[i]) % t.w
		t.mus[i].Lock()
		bucket := &t.rows[i][index]
		if bucket.C == 0 {
			copy(bucket.FP, flow)
			bucket.C = 1
			bucket.S = size
		} else if bytes.Equal(bucket.FP, flow) {
			bucket.C++
			bucket.S += size
		} else {
			bucket.C--
			if bucket.C == 0 {
				copy(bucket.FP, flow)
				bucket.C = 1
				bucket.S = size
			}
		}
		t.mus[i].Unlock()
	}
}

// Query returns the estimated record count for a flow, 0 if no bucket
// currently belongs to it.
func (t *CountMin) Query(flow []byte) uint64 {
	count := uint32(0)
	for i := 0; i < int(t.d); i++ {
		index := MurmurHash3(flow, t.seeds[i]) % t.w
		t.mus[i].Lock()
		bucket := &t.rows[i][index]
		if bytes.Equal(bucket.FP, flow) {
			count = max(count, bucket.C)
		}
		t.mus[i].Unlock()
	}
	return uint64(count)
}

// HeavyHitters returns every flow whose count or byte volume crossed its
// threshold, both lists sorted in descending order.
func (t *CountMin) HeavyHitters() HeavyRecord {
	counts := make(map[string]uint32)
	sizes := make(map[string]uint64)
	for i := 0; i < int(t.d); i++ {
		t.mus[i].Lock()
		for j := 0; j < int(t.w); j++ {
			bucket := &t.rows[i][j]
			if bucket.C == 0 {
				continue
			}
			key := string(bucket.FP)
			counts[key] = max(counts[key], bucket.C)
			sizes[key] = max(sizes[key], bucket.S)
		}
		t.mus[i].Unlock()
	}

	heavyCounts := make([]HeavyCount, 0)
	for k, v := range counts {
		if v < t.countThreshold {
			continue
		}
		heavyCounts = append(heavyCounts, HeavyCount{
			Flow:  []byte(k),
			Count: v,
		})
	}
	heavySizes := make([]HeavySize, 0)
	for k, v := range sizes {
		if v < t.sizeThreshold {
			continue
		}
		heavySizes = append(heavySizes, HeavySize{
			Flow: []byte(k),
			Size: v,
		})
	}

	// Sort heavy hitters in descending order
	slices.SortFunc(heavyCounts, func(a, b HeavyCount) int {
		return int(b.Count) - int(a.Count)
	})
	slices.SortFunc(heavySizes, func(a, b HeavySize) int {
		switch {
		case b.Size > a.Size:
			return 1
		case b.Size < a.Size:
			return -1
		default:
			return 0
		}
	})

	return HeavyRecord{Count: heavyCounts, Size: heavySizes}
}

// Reset clears every bucket for a new measurement period.
func (t *CountMin) Reset() {
	for i := 0; i < int(t.d); i++ {
		t.mus[i].Lock()
		for j := range t.rows[i] {
			bucket := &t.rows[i][j]
			for k := range bucket.FP {
				bucket.FP[k] = 0
			}
			bucket.C = 0
			bucket.S = 0
		}
		t.mus[i].Unlock()
	}
}
