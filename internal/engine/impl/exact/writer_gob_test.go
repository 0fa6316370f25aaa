package exact

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"FlowLens/internal/engine/impl/exact/statistic"
)

func TestGobWriterRoundTrip(t *testing.T) {
	task := New("per_flow", []string{"SrcIP", "DstIP"}, 4)
	ts := time.Date(2026, 2, 3, 21, 0, 0, 0, time.UTC)
	task.ProcessRecord(makeRecord("10.0.0.4", "13.107.42.14", "Allowed", ts))
	task.ProcessRecord(makeRecord("10.0.0.4", "13.107.42.14", "Allowed", ts))
	task.ProcessRecord(makeRecord("10.0.0.5", "20.62.132.27", "Allowed", ts))

	rootPath := t.TempDir()
	writer := NewGobWriter(rootPath, time.Minute)
	if writer.GetInterval() != time.Minute {
		t.Errorf("Expected the configured interval, got %v", writer.GetInterval())
	}

	snapshot := task.Snapshot()
	timestamp := "2026-02-03_21-00-00"
	if err := writer.Write(snapshot, timestamp, task.Name(), task.Fields(), task.DecodeFlowFunc()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	taskDir := filepath.Join(rootPath, timestamp, "per_flow")

	// The summary must account for every flow and record.
	summaryData, err := os.ReadFile(filepath.Join(taskDir, "summary.json"))
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(summaryData, &summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.TaskName != "per_flow" || summary.TotalFlows != 2 || summary.TotalRecords != 3 {
		t.Errorf("Summary wrong: %+v", summary)
	}
	if summary.TotalBytes != 900 || summary.TotalPackets != 6 {
		t.Errorf("Summary totals wrong: %+v", summary)
	}

	// Every non-empty shard file must decode back to its flows.
	shardFiles, err := filepath.Glob(filepath.Join(taskDir, "shard_*.dat"))
	if err != nil || len(shardFiles) == 0 {
		t.Fatalf("Expected shard files, got %v (err %v)", shardFiles, err)
	}
	decoded := make(map[string]*statistic.Flow)
	for _, path := range shardFiles {
		file, err := os.Open(path)
		if err != nil {
			t.Fatalf("Failed to open %s: %v", path, err)
		}
		flows := make(map[string]*statistic.Flow)
		if err := gob.NewDecoder(file).Decode(&flows); err != nil {
			file.Close()
			t.Fatalf("Failed to decode %s: %v", path, err)
		}
		file.Close()
		for k, v := range flows {
			decoded[k] = v
		}
	}

	flow, ok := decoded["10.0.0.4-13.107.42.14"]
	if !ok {
		t.Fatalf("Expected flow key in decoded shards, got %d flows", len(decoded))
	}
	if flow.RecordCount != 2 || flow.ByteCount != 600 {
		t.Errorf("Decoded flow wrong: %+v", flow)
	}
}

func TestGobWriterRejectsWrongPayload(t *testing.T) {
	writer := NewGobWriter(t.TempDir(), time.Minute)
	if err := writer.Write("not a snapshot", "x", "y", nil, nil); err == nil {
		t.Fatal("Expected error for a payload of the wrong type")
	}
}

func TestGobWriterSkipsEmptySnapshot(t *testing.T) {
	task := New("empty", []string{"SrcIP"}, 4)
	rootPath := t.TempDir()
	writer := NewGobWriter(rootPath, time.Minute)

	timestamp := "2026-02-03_21-00-00"
	if err := writer.Write(task.Snapshot(), timestamp, task.Name(), task.Fields(), task.DecodeFlowFunc()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	taskDir := filepath.Join(rootPath, timestamp, "empty")
	if _, err := os.Stat(filepath.Join(taskDir, "summary.json")); !os.IsNotExist(err) {
		t.Error("Expected no summary for an empty snapshot")
	}
	shardFiles, _ := filepath.Glob(filepath.Join(taskDir, "shard_*.dat"))
	if len(shardFiles) != 0 {
		t.Errorf("Expected no shard files for an empty snapshot, got %d", len(shardFiles))
	}
}
