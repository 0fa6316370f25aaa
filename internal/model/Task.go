package model

import "FlowLens/internal/config"

// Task defines a single, self-contained aggregation task (e.g., exact count, sketch, etc.).
// This is the interface for the "execution layer".
type Task interface {
	// Name returns the task's configured name.
	Name() string

	// Fields returns the field names that make up this task's flow key, in
	// encoding order. Writers that persist raw keys use it together with
	// DecodeFlowFunc to render keys for humans.
	Fields() []string

	// DecodeFlowFunc returns a function that renders an encoded flow key.
	DecodeFlowFunc() func(flow []byte, fields []string) string

	// ProcessRecord folds a single flow record into the task's state.
	ProcessRecord(rec *FlowRecord)

	// Query looks up the current value for an encoded flow key.
	Query(flow []byte) uint64

	// Snapshot returns a consistent copy of the task's aggregated state.
	Snapshot() interface{}

	// Reset clears the task's state for a new measurement period.
	Reset()

	// AlerterMsg evaluates the given rules against the task's current state
	// and returns an HTML fragment describing the triggered ones, or "".
	AlerterMsg(rules []config.AlerterRule) string
}
