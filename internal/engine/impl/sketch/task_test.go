package sketch

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/impl/sketch/statistic"
	"FlowLens/internal/model"
	"fmt"
	"strings"
	"testing"
	"time"
)

func talkerConfig() config.SketchTaskDef {
	return config.SketchTaskDef{
		Name:           "heavy_talkers",
		SktType:        0,
		FlowFields:     []string{"SrcIP", "DstIP"},
		ElementFields:  []string{"DstPort"},
		Width:          1 << 12,
		Depth:          3,
		SizeThreshold:  200000,
		CountThreshold: 100,
	}
}

func spreadConfig() config.SketchTaskDef {
	return config.SketchTaskDef{
		Name:           "scanners",
		SktType:        1,
		FlowFields:     []string{"DstIP"},
		ElementFields:  []string{"SrcIP"},
		Width:          1 << 10,
		Depth:          2,
		CountThreshold: 100,
		Registers:      128,
	}
}

func record(src, dst string, bytes uint64) *model.FlowRecord {
	return &model.FlowRecord{
		Timestamp:    time.Unix(1705312800, 0).UTC(),
		SrcIP:        src,
		DstIP:        dst,
		SrcPort:      49152,
		DstPort:      443,
		Protocol:     "TCP",
		Direction:    "Outbound",
		Action:       "Allowed",
		TotalBytes:   bytes,
		TotalPackets: 2,
	}
}

func encodeFlow(rec *model.FlowRecord, fields []string) []byte {
	var flow []byte
	for _, f := range fields {
		flow = model.AppendField(flow, rec, f)
	}
	return flow
}

func TestCountMinTaskEstimates(t *testing.T) {
	task := New(talkerConfig())

	heavy := record("10.0.0.4", "13.107.42.14", 1000)
	for i := 0; i < 500; i++ {
		task.ProcessRecord(heavy)
	}

	// Background traffic: one record per distinct source.
	for i := 0; i < 300; i++ {
		src := fmt.Sprintf("10.1.%d.%d", i/256, i%256)
		task.ProcessRecord(record(src, "13.107.42.14", 100))
	}

	got := task.Query(encodeFlow(heavy, task.Fields()))
	if got < 400 || got > 600 {
		t.Errorf("Query for heavy flow = %d, want roughly 500", got)
	}

	hhs, ok := task.Snapshot().(statistic.HeavyRecord)
	if !ok {
		t.Fatalf("Snapshot returned %T, want statistic.HeavyRecord", task.Snapshot())
	}
	if len(hhs.Count) == 0 || len(hhs.Size) == 0 {
		t.Fatalf("expected heavy hitters in both lists, got %d count / %d size", len(hhs.Count), len(hhs.Size))
	}

	decode := task.DecodeFlowFunc()
	if flow := decode(hhs.Count[0].Flow, task.Fields()); flow != "10.0.0.4-13.107.42.14" {
		t.Errorf("top count hitter decodes to %q, want 10.0.0.4-13.107.42.14", flow)
	}
	if hhs.Size[0].Size < 400000 {
		t.Errorf("top size hitter carries %d bytes, want roughly 500000", hhs.Size[0].Size)
	}

	// No single-record source crosses the count threshold.
	for _, hh := range hhs.Count {
		if strings.HasPrefix(decode(hh.Flow, task.Fields()), "10.1.") {
			t.Errorf("background flow %q reported as heavy hitter", decode(hh.Flow, task.Fields()))
		}
	}
}

func TestSpreadTaskEstimates(t *testing.T) {
	task := New(spreadConfig())

	// One destination probed by many distinct sources.
	for i := 0; i < 400; i++ {
		src := fmt.Sprintf("10.2.%d.%d", i/256, i%256)
		task.ProcessRecord(record(src, "10.9.0.1", 60))
	}

	// A quiet destination: three peers, each seen repeatedly.
	for i := 0; i < 5; i++ {
		task.ProcessRecord(record("10.3.0.1", "10.9.0.2", 60))
		task.ProcessRecord(record("10.3.0.2", "10.9.0.2", 60))
		task.ProcessRecord(record("10.3.0.3", "10.9.0.2", 60))
	}

	scanned := encodeFlow(record("10.3.0.1", "10.9.0.1", 0), task.Fields())
	if got := task.Query(scanned); got < 250 || got > 600 {
		t.Errorf("spread estimate for scanned host = %d, want roughly 400", got)
	}

	quiet := encodeFlow(record("10.3.0.1", "10.9.0.2", 0), task.Fields())
	if got := task.Query(quiet); got > 10 {
		t.Errorf("spread estimate for quiet host = %d, want roughly 3", got)
	}

	hhs := task.Snapshot().(statistic.HeavyRecord)
	if len(hhs.Count) != 1 {
		t.Fatalf("expected exactly one superspreader, got %d", len(hhs.Count))
	}
	if flow := model.DecodeFields(hhs.Count[0].Flow, task.Fields()); flow != "10.9.0.1" {
		t.Errorf("superspreader decodes to %q, want 10.9.0.1", flow)
	}
}

func TestSketchTaskAlerterMsg(t *testing.T) {
	task := New(talkerConfig())

	heavy := record("10.0.0.4", "13.107.42.14", 1000)
	for i := 0; i < 200; i++ {
		task.ProcessRecord(heavy)
	}

	rules := []config.AlerterRule{
		{Name: "Chatty pair", TaskName: "heavy_talkers", Metric: "heavy_hitter_count", Operator: ">", Threshold: 150},
		{Name: "Other task", TaskName: "per_dst", Metric: "heavy_hitter_count", Operator: ">", Threshold: 0},
		{Name: "Bogus metric", TaskName: "heavy_talkers", Metric: "no_such_metric", Operator: ">", Threshold: 0},
	}

	msg := task.AlerterMsg(rules)
	if !strings.Contains(msg, "Chatty pair") {
		t.Errorf("alert message missing triggered rule: %q", msg)
	}
	if !strings.Contains(msg, "10.0.0.4-13.107.42.14") {
		t.Errorf("alert message missing decoded flow: %q", msg)
	}
	if strings.Contains(msg, "Other task") || strings.Contains(msg, "Bogus metric") {
		t.Errorf("alert message contains rules that must not trigger: %q", msg)
	}

	if msg := task.AlerterMsg(nil); msg != "" {
		t.Errorf("AlerterMsg with no rules = %q, want empty", msg)
	}
}

func TestSketchTaskReset(t *testing.T) {
	task := New(talkerConfig())

	heavy := record("10.0.0.4", "13.107.42.14", 1000)
	for i := 0; i < 200; i++ {
		task.ProcessRecord(heavy)
	}
	task.Reset()

	if got := task.Query(encodeFlow(heavy, task.Fields())); got != 0 {
		t.Errorf("Query after Reset = %d, want 0", got)
	}
	hhs := task.Snapshot().(statistic.HeavyRecord)
	if len(hhs.Count) != 0 || len(hhs.Size) != 0 {
		t.Errorf("heavy hitters survived Reset: %d count / %d size", len(hhs.Count), len(hhs.Size))
	}
}
