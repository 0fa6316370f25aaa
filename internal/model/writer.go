package model

import "time"

// Writer defines a generic interface for writing aggregator data to a persistent store.
type Writer interface {
	// Write takes a snapshot payload and persists it. The implementation is
	// expected to know how to handle the payload type it receives; name,
	// fields and decodeFlowFunc describe the producing task so writers that
	// store raw flow keys can render them.
	Write(payload interface{}, timestamp, name string, fields []string, decodeFlowFunc func(flow []byte, fields []string) string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
