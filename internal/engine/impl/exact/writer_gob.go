package exact

import (
	"FlowLens/internal/engine/impl/exact/statistic"
	"FlowLens/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func init() {
	// Register the concrete type of Flow for gob encoding/decoding.
	gob.Register(&statistic.Flow{})
}

// SummaryData holds the metadata for a snapshot, internal to the writer.
type SummaryData struct {
	TaskName     string `json:"task_name"`
	TotalFlows   int    `json:"total_flows"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	TotalRecords uint64 `json:"total_records"`
	Shards       int    `json:"shards"`
	Timestamp    string `json:"timestamp"`
}

// GobWriter handles writing aggregation task snapshot data to disk in gob format.
// It implements the model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new writer for aggregation task data.
func NewGobWriter(rootPath string, interval time.Duration) model.Writer {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write serializes and writes the data from a single aggregation task snapshot to disk.
// It expects the payload to be of type statistic.SnapshotData.
func (w *GobWriter) Write(payload interface{}, timestamp, name string, fields []string, decodeFlowFunc func(flow []byte, fields []string) string) error {
	snapshot, ok := payload.(statistic.SnapshotData)
	if !ok {
		return fmt.Errorf("invalid payload type for GobWriter: expected statistic.SnapshotData, got %T", payload)
	}

	// 1. Create timestamped directory with a subdirectory per task to
	// avoid file name collisions
	snapshotDir := filepath.Join(w.rootPath, timestamp)
	taskDir := filepath.Join(snapshotDir, snapshot.TaskName)
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	totalFlows := 0
	totalPackets, totalBytes, totalRecords := uint64(0), uint64(0), uint64(0)
	// 2. Write each shard's map to a .dat file
	for i, shard := range snapshot.Shards {
		if len(shard.Flows) == 0 {
			continue
		}
		totalFlows += len(shard.Flows)
		for _, flow := range shard.Flows {
			totalPackets += flow.PacketCount
			totalBytes += flow.ByteCount
			totalRecords += flow.RecordCount
		}

		fileName := fmt.Sprintf("shard_%d.dat", i)
		filePath := filepath.Join(taskDir, fileName)

		file, err := os.Create(filePath)
		if err != nil {
			return fmt.Errorf("failed to create snapshot file '%s': %w", filePath, err)
		}

		encoder := gob.NewEncoder(file)
		if err := encoder.Encode(shard.Flows); err != nil {
			file.Close()
			return fmt.Errorf("failed to encode flows to gob for file '%s': %w", filePath, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close snapshot file '%s': %w", filePath, err)
		}
	}

	// 3. Write summary file if there were any flows
	if totalFlows > 0 {
		summary := SummaryData{
			TaskName:     snapshot.TaskName,
			TotalFlows:   totalFlows,
			TotalBytes:   totalBytes,
			TotalPackets: totalPackets,
			TotalRecords: totalRecords,
			Shards:       len(snapshot.Shards),
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
		}
		summaryFilePath := filepath.Join(taskDir, "summary.json")
		summaryFile, err := os.Create(summaryFilePath)
		if err != nil {
			return fmt.Errorf("failed to create summary file: %w", err)
		}

		jsonEncoder := json.NewEncoder(summaryFile)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(summary); err != nil {
			summaryFile.Close()
			return fmt.Errorf("failed to encode summary to json: %w", err)
		}
		if err := summaryFile.Close(); err != nil {
			return fmt.Errorf("failed to close summary file: %w", err)
		}
	}

	return nil
}
