package exact

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/impl/exact/statistic"
	"FlowLens/internal/factory"
	"FlowLens/internal/model"
	"fmt"
	"hash/fnv"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// --- Factory Registration ---

func init() {
	factory.RegisterAggregator("exact", func(cfg *config.Config) (*factory.TaskGroup, error) {
		exactCfg := cfg.Aggregator.Exact

		// Create all enabled writers for this aggregator group
		writers := make([]model.Writer, 0, len(exactCfg.Writers))
		for _, writerDef := range exactCfg.Writers {
			if !writerDef.Enabled {
				continue
			}

			interval, err := time.ParseDuration(writerDef.SnapshotInterval)
			if err != nil {
				log.Printf("Warning: invalid snapshot_interval for writer type '%s': %v, skipping.", writerDef.Type, err)
				continue
			}

			var writer model.Writer
			switch writerDef.Type {
			case "gob":
				writer = NewGobWriter(writerDef.Gob.RootPath, interval)
			case "clickhouse":
				writer, err = NewClickHouseWriter(writerDef.ClickHouse, interval)
				if err != nil {
					log.Printf("Warning: failed to create writer type '%s': %v, skipping.", writerDef.Type, err)
					continue
				}
			default:
				log.Printf("Warning: unknown writer type '%s' in config, skipping.", writerDef.Type)
				continue
			}
			writers = append(writers, writer)
		}

		// Create all tasks for this aggregator group
		tasks := make([]model.Task, len(exactCfg.Tasks))
		for i, taskCfg := range exactCfg.Tasks {
			tasks[i] = New(taskCfg.Name, taskCfg.KeyFields, taskCfg.NumShards)
		}

		return &factory.TaskGroup{Tasks: tasks, Writers: writers}, nil
	})
}

// --- Task Implementation ---

const defaultShardCount = 256

// Task performs exact aggregation of flow records for a configured set of
// key fields using a sharded map. It implements the model.Task interface.
type Task struct {
	name       string
	keyFields  []string
	shards     []*statistic.Shard
	shardCount uint32
}

// New creates a new exact aggregation task.
func New(name string, keyFields []string, numShards uint32) model.Task {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	log.Printf("Creating exact task '%s' with %d shards for keys: %v", name, numShards, keyFields)
	task := &Task{
		name:       name,
		keyFields:  keyFields,
		shards:     make([]*statistic.Shard, numShards),
		shardCount: numShards,
	}
	for i := 0; i < int(numShards); i++ {
		task.shards[i] = &statistic.Shard{
			Flows: make(map[string]*statistic.Flow),
		}
	}
	return task
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Fields returns nothing: exact snapshots carry their string keys already,
// so writers have no encoded flows to decode.
func (t *Task) Fields() []string {
	return []string{}
}

// DecodeFlowFunc returns a stub for the same reason as Fields.
func (t *Task) DecodeFlowFunc() func(flow []byte, fields []string) string {
	return func(flow []byte, fields []string) string {
		return ""
	}
}

// ProcessRecord folds a single flow record into the correct shard,
// creating the flow entry on first sight of its key.
func (t *Task) ProcessRecord(rec *model.FlowRecord) {
	fields, key, err := t.generateKeyAndFields(rec)
	if err != nil {
		log.Printf("Error generating key for task '%s': %v\n", t.name, err)
		return
	}

	shard := t.getShard(key)
	shard.Mu.Lock()
	defer shard.Mu.Unlock()

	if flow, ok := shard.Flows[key]; ok {
		if rec.Timestamp.Before(flow.StartTime) {
			flow.StartTime = rec.Timestamp
		}
		if rec.Timestamp.After(flow.EndTime) {
			flow.EndTime = rec.Timestamp
		}
		flow.PacketsSrcToDst += rec.PacketsSrcToDst
		flow.BytesSrcToDst += rec.BytesSrcToDst
		flow.PacketsDstToSrc += rec.PacketsDstToSrc
		flow.BytesDstToSrc += rec.BytesDstToSrc
		flow.ByteCount += rec.TotalBytes
		flow.PacketCount += rec.TotalPackets
		flow.RecordCount++
	} else {
		shard.Flows[key] = &statistic.Flow{
			Key:             key,
			Fields:          fields,
			StartTime:       rec.Timestamp,
			EndTime:         rec.Timestamp,
			PacketsSrcToDst: rec.PacketsSrcToDst,
			BytesSrcToDst:   rec.BytesSrcToDst,
			PacketsDstToSrc: rec.PacketsDstToSrc,
			BytesDstToSrc:   rec.BytesDstToSrc,
			ByteCount:       rec.TotalBytes,
			PacketCount:     rec.TotalPackets,
			RecordCount:     1,
		}
	}
}

// Snapshot returns a deep copy of the current aggregated data.
// Suitable for write-heavy, read-light scenarios.
// Concurrent writes are safe; snapshot reflects a consistent state at the moment of call.
func (t *Task) Snapshot() interface{} {
	snapshotShards := make([]*statistic.Shard, t.shardCount)
	var wg sync.WaitGroup
	wg.Add(int(t.shardCount)) // Wait for all shards to finish copying

	for i := 0; i < int(t.shardCount); i++ {
		go func(i int) {
			defer wg.Done()

			shard := t.shards[i]

			// Acquire read lock to safely read shard.Flows
			shard.Mu.RLock()

			// Deep copy the flows map to ensure the snapshot is independent
			copiedFlows := make(map[string]*statistic.Flow, len(shard.Flows))
			for k, v := range shard.Flows {
				flowCopy := *v
				copiedFlows[k] = &flowCopy
			}

			shard.Mu.RUnlock()

			snapshotShards[i] = &statistic.Shard{
				Flows: copiedFlows,
			}
		}(i)
	}

	wg.Wait() // Wait until all shard snapshots are complete

	return statistic.SnapshotData{
		TaskName: t.name,
		Shards:   snapshotShards,
	}
}

// Reset clears the internal state of the task, preparing for a new measurement period.
func (t *Task) Reset() {
	var wait sync.WaitGroup
	wait.Add(int(t.shardCount)) // Wait for all shards to be reset

	for i := 0; i < int(t.shardCount); i++ {
		go func(i int) {
			defer wait.Done()
			shard := t.shards[i]
			shard.Mu.Lock()
			shard.Flows = make(map[string]*statistic.Flow) // Reset with a new empty map
			shard.Mu.Unlock()
		}(i)
	}

	wait.Wait() // Wait until all shards are reset
}

// AlerterMsg evaluates rules against the task's aggregated data and returns an HTML fragment if triggered.
func (t *Task) AlerterMsg(rules []config.AlerterRule) string {
	// Perform a snapshot to get the latest data for evaluation.
	snapshotData, ok := t.Snapshot().(statistic.SnapshotData)
	if !ok {
		log.Printf("Error: AlerterMsg in exact task received unexpected snapshot type: %T", t.Snapshot())
		return ""
	}

	// Calculate total metrics from the snapshot.
	var totalPackets uint64
	var totalBytes uint64
	var totalRecords uint64
	var deniedRecords uint64
	flowCount := 0
	for _, shard := range snapshotData.Shards {
		for _, flow := range shard.Flows {
			totalPackets += flow.PacketCount
			totalBytes += flow.ByteCount
			totalRecords += flow.RecordCount
			if action, ok := flow.Fields["Action"]; ok && action == "Denied" {
				deniedRecords += flow.RecordCount
			}
			flowCount++
		}
	}

	var triggeredMessages []string

	for _, rule := range rules {
		if rule.TaskName != t.name {
			continue
		}

		var currentValue float64
		var unit string

		switch rule.Metric {
		case "total_packets":
			currentValue = float64(totalPackets)
			unit = "packets"
		case "total_bytes":
			currentValue = float64(totalBytes)
			unit = "bytes"
		case "total_flows":
			currentValue = float64(flowCount)
			unit = "flows"
		case "total_records":
			currentValue = float64(totalRecords)
			unit = "records"
		case "denied_records":
			currentValue = float64(deniedRecords)
			unit = "records"
		default:
			log.Printf("Warning: unknown metric '%s' in alerter rule '%s'", rule.Metric, rule.Name)
			continue
		}

		if check(currentValue, rule.Threshold, rule.Operator) {
			msg := fmt.Sprintf("<h3>Alert: %s</h3>"+
				"<ul>"+
				"<li><b>Task:</b> <code>%s</code></li>"+
				"<li><b>Metric:</b> <code>%s</code></li>"+
				"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
				"<li><b>Observed Value:</b> <code>%.0f %s</code></li>"+
				"</ul>",
				rule.Name, rule.TaskName, rule.Metric, rule.Operator, rule.Threshold, currentValue, unit)
			triggeredMessages = append(triggeredMessages, msg)
		}
	}

	return strings.Join(triggeredMessages, "<br><hr><br>")
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		log.Printf("Warning: unknown operator '%s' in alerter rule", operator)
		return false
	}
}

// Query decodes a byte-encoded flow key and returns the record count
// aggregated under it, or 0 when the key is unknown.
func (t *Task) Query(flow []byte) uint64 {
	key := model.DecodeFields(flow, t.keyFields)
	if key == "" {
		return 0
	}
	shard := t.getShard(key)
	shard.Mu.RLock()
	defer shard.Mu.RUnlock()
	if f, ok := shard.Flows[key]; ok {
		return f.RecordCount
	}
	return 0
}

// getShard returns the appropriate shard for a given key.
func (t *Task) getShard(key string) *statistic.Shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// generateKeyAndFields creates a unique string key and a field map for a record.
func (t *Task) generateKeyAndFields(rec *model.FlowRecord) (map[string]interface{}, string, error) {
	parts := make([]string, len(t.keyFields))
	fields := make(map[string]interface{}, len(t.keyFields))

	for i, fieldName := range t.keyFields {
		switch fieldName {
		case "SrcIP":
			parts[i] = rec.SrcIP
			fields[fieldName] = rec.SrcIP
		case "DstIP":
			parts[i] = rec.DstIP
			fields[fieldName] = rec.DstIP
		case "SrcPort":
			parts[i] = strconv.Itoa(int(rec.SrcPort))
			fields[fieldName] = rec.SrcPort
		case "DstPort":
			parts[i] = strconv.Itoa(int(rec.DstPort))
			fields[fieldName] = rec.DstPort
		case "Protocol":
			parts[i] = rec.Protocol
			fields[fieldName] = rec.Protocol
		case "Direction":
			parts[i] = rec.Direction
			fields[fieldName] = rec.Direction
		case "Action":
			parts[i] = rec.Action
			fields[fieldName] = rec.Action
		case "Rule":
			parts[i] = rec.Rule
			fields[fieldName] = rec.Rule
		default:
			return nil, "", fmt.Errorf("unknown key field: %s", fieldName)
		}
	}
	return fields, strings.Join(parts, "-"), nil
}
