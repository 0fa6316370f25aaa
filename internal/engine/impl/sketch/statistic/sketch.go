package statistic

// Sketch defines the interface for an approximate aggregation structure.
// It supports insertion of flow/element observations, point queries, and
// retrieval of the flows that crossed the configured thresholds.
type Sketch interface {
	Insert(flow, elem []byte, size uint64)
	Query(flow []byte) uint64
	HeavyHitters() HeavyRecord
	Reset()
}

// HeavyCount is one flow with its estimated record count or spread.
type HeavyCount struct {
	Flow  []byte
	Count uint32
}

// HeavySize is one flow with its estimated byte volume.
type HeavySize struct {
	Flow []byte
	Size uint64
}

// HeavyRecord is the snapshot payload of a sketch task: the flows whose
// count crossed the count threshold and, for sketches that track volume,
// the flows whose byte volume crossed the size threshold.
type HeavyRecord struct {
	Count []HeavyCount
	Size  []HeavySize
}
