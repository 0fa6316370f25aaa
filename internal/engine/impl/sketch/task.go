package sketch

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/impl/sketch/statistic"
	"FlowLens/internal/factory"
	"FlowLens/internal/model"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// --- Factory Registration ---

func init() {
	factory.RegisterAggregator("sketch", func(cfg *config.Config) (*factory.TaskGroup, error) {
		sketchCfg := cfg.Aggregator.Sketch

		// Create all enabled writers for this aggregator group
		writers := make([]model.Writer, 0, len(sketchCfg.Writers))
		for _, writerDef := range sketchCfg.Writers {
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
			case "text":
				writer = NewTextWriter(writerDef.Text.RootPath, interval)
				log.Printf("Text writer created at %s", writerDef.Text.RootPath)
			case "clickhouse":
				writer, err = NewClickHouseWriter(writerDef.ClickHouse, interval)
				if err != nil {
					log.Printf("Warning: failed to create writer type '%s': %v, skipping.", writerDef.Type, err)
					continue
				}
				log.Printf("ClickHouse writer created for database %s at %s:%d", writerDef.ClickHouse.Database, writerDef.ClickHouse.Host, writerDef.ClickHouse.Port)
			default:
				log.Printf("Warning: unknown writer type '%s' in sketch aggregator config, skipping.", writerDef.Type)
				continue
			}
			writers = append(writers, writer)
		}

		// Create all tasks for this aggregator group
		tasks := make([]model.Task, len(sketchCfg.Tasks))
		for i, taskCfg := range sketchCfg.Tasks {
			tasks[i] = New(taskCfg)
		}

		return &factory.TaskGroup{Tasks: tasks, Writers: writers}, nil
	})
}

// --- Task Implementation ---

// MaxFieldSize bounds an encoded key: IP(16) + IP(16) + Port(2) + Port(2) +
// Protocol(1) + Direction(1) + Action(1) = 39.
const MaxFieldSize = 39

var (
	flowPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, MaxFieldSize)
		},
	}
	elemPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, MaxFieldSize)
		},
	}
)

// Task feeds flow records into a sketch. The flow key selects which
// record fields identify a flow; the element key feeds the spread
// sketch's distinct counting.
type Task struct {
	name string
	// flow key fields
	flowFields []string
	// the byte size of flow key
	flowSize uint32
	// element key fields
	elementFields []string
	// the byte size of element key
	elemSize uint32
	// data
	sketch statistic.Sketch
}

// New creates a new sketch task based on the provided configuration.
func New(cfg config.SketchTaskDef) model.Task {
	flowSize := uint32(model.FlowKeySize(cfg.FlowFields))
	elemSize := uint32(model.FlowKeySize(cfg.ElementFields))

	var sketchImpl statistic.Sketch
	switch cfg.SktType {
	case 0: // CountMin
		log.Printf("Creating CountMin sketch '%s' for flow fields %v (bytes %d), element fields %v (bytes %d) with width %d, depth %d, size_threshold %d, count_threshold %d",
			cfg.Name, cfg.FlowFields, flowSize, cfg.ElementFields, elemSize, cfg.Width, cfg.Depth, cfg.SizeThreshold, cfg.CountThreshold)
		sketchImpl = statistic.NewCountMin(cfg.Width, cfg.Depth, cfg.SizeThreshold, cfg.CountThreshold, flowSize)
	case 1: // Spread
		log.Printf("Creating Spread sketch '%s' for flow fields %v (bytes %d), element fields %v (bytes %d) with width %d, depth %d, threshold %d, registers %d",
			cfg.Name, cfg.FlowFields, flowSize, cfg.ElementFields, elemSize, cfg.Width, cfg.Depth, cfg.CountThreshold, cfg.Registers)
		sketchImpl = statistic.NewSpread(cfg.Width, cfg.Depth, cfg.CountThreshold, cfg.Registers, flowSize)
	default:
		log.Fatalf("Unknown sketch type: %d for task %s", cfg.SktType, cfg.Name)
	}

	return &Task{
		name:          cfg.Name,
		flowFields:    cfg.FlowFields,
		elementFields: cfg.ElementFields,
		flowSize:      flowSize,
		elemSize:      elemSize,
		sketch:        sketchImpl,
	}
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Fields returns the flow key fields, for writers that decode flows.
func (t *Task) Fields() []string {
	return t.flowFields
}

// DecodeFlowFunc returns the decoder writers use to render flow keys.
func (t *Task) DecodeFlowFunc() func(flow []byte, fields []string) string {
	return model.DecodeFields
}

// ProcessRecord encodes the record's flow and element keys and feeds them
// to the sketch together with the record's byte volume.
func (t *Task) ProcessRecord(rec *model.FlowRecord) {
	flow := flowPool.Get().([]byte)[:0]
	elem := elemPool.Get().([]byte)[:0]

	for _, f := range t.flowFields {
		flow = model.AppendField(flow, rec, f)
	}
	for _, f := range t.elementFields {
		elem = model.AppendField(elem, rec, f)
	}

	t.sketch.Insert(flow, elem, rec.TotalBytes)

	flowPool.Put(flow[:0])
	elemPool.Put(elem[:0])
}

// Query returns the sketch's estimate for a byte-encoded flow key.
func (t *Task) Query(flow []byte) uint64 {
	return t.sketch.Query(flow)
}

// Snapshot returns the flows that crossed the configured thresholds.
func (t *Task) Snapshot() interface{} {
	return t.sketch.HeavyHitters()
}

// Reset clears the internal state of the task, preparing for a new measurement period.
func (t *Task) Reset() {
	t.sketch.Reset()
}

// AlerterMsg evaluates rules against the current heavy hitters and
// returns an HTML fragment listing the triggering flows.
func (t *Task) AlerterMsg(rules []config.AlerterRule) string {
	snapshotData, ok := t.Snapshot().(statistic.HeavyRecord)
	if !ok {
		log.Printf("Error: AlerterMsg in sketch task received unexpected snapshot type: %T", t.Snapshot())
		return ""
	}

	var triggeredMessages []string

	for _, rule := range rules {
		if rule.TaskName != t.name {
			continue
		}

		var hitters []string
		switch rule.Metric {
		case "heavy_hitter_count", "spread":
			for _, hitter := range snapshotData.Count {
				if check(float64(hitter.Count), rule.Threshold, rule.Operator) {
					hitters = append(hitters, fmt.Sprintf("<tr><td><code>%s</code></td><td>%d</td></tr>", model.DecodeFields(hitter.Flow, t.flowFields), hitter.Count))
				}
			}
		case "heavy_hitter_size":
			for _, hitter := range snapshotData.Size {
				if check(float64(hitter.Size), rule.Threshold, rule.Operator) {
					hitters = append(hitters, fmt.Sprintf("<tr><td><code>%s</code></td><td>%d bytes</td></tr>", model.DecodeFields(hitter.Flow, t.flowFields), hitter.Size))
				}
			}
		default:
			log.Printf("Warning: unknown metric '%s' in alerter rule '%s'", rule.Metric, rule.Name)
			continue
		}

		if len(hitters) > 0 {
			itemsTable := fmt.Sprintf("<table border=\"1\" cellpadding=\"5\" cellspacing=\"0\">"+
				"<tr><th>Flow</th><th>Value</th></tr>%s</table>", strings.Join(hitters, ""))

			msg := fmt.Sprintf("<h3>Alert: %s</h3>"+
				"<ul>"+
				"<li><b>Task:</b> <code>%s</code></li>"+
				"<li><b>Metric:</b> <code>%s</code></li>"+
				"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
				"</ul>"+
				"<p><b>Triggering Items:</b></p>%s",
				rule.Name, rule.TaskName, rule.Metric, rule.Operator, rule.Threshold, itemsTable)
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
