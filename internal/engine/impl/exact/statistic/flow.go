package statistic

import (
	"sync"
	"time"
)

// Flow represents the aggregated state of one flow key with exact metrics.
type Flow struct {
	Key    string
	Fields map[string]interface{} // Holds the actual values for the fields that make up the key.

	// Observation window covered by the aggregated records.
	StartTime time.Time
	EndTime   time.Time

	// Directional counters summed from the individual records.
	PacketsSrcToDst uint64
	BytesSrcToDst   uint64
	PacketsDstToSrc uint64
	BytesDstToSrc   uint64

	// Totals across both directions, plus the number of records folded in.
	ByteCount   uint64
	PacketCount uint64
	RecordCount uint64
}

// Shard is a part of a sharded map, containing its own map and a mutex.
type Shard struct {
	Flows map[string]*Flow
	Mu    sync.RWMutex
}

// SnapshotData represents the full snapshot for a single exact task.
// This is the data structure returned by the Snapshot() method.
type SnapshotData struct {
	TaskName string
	Shards   []*Shard
}
