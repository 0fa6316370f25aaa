package flowlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"FlowLens/internal/model"
)

// TupleContext carries the provenance an enclosing log entry supplies for
// every tuple it contains.
type TupleContext struct {
	Rule       string
	MAC        string
	ResourceID string
	Version    int
}

// Tuple field mapping tables. Unknown codes pass through verbatim so new
// vocabulary in the source format degrades to an opaque label instead of an
// error.
var (
	protocolNames = map[string]string{
		"T":  "TCP",
		"U":  "UDP",
		"6":  "TCP",
		"17": "UDP",
		"1":  "ICMP",
	}

	directionNames = map[string]string{
		"I": "Inbound",
		"O": "Outbound",
	}

	// The action field mixes two vocabularies: security decisions (A/D,
	// v2 format) and connection lifecycle markers (B/C/E, v4 format).
	actionNames = map[string]string{
		"A": "Allowed",
		"D": "Denied",
		"B": "Begin",
		"C": "Continuing",
		"E": "End",
	}

	flowStateNames = map[string]string{
		"B":  "Begin",
		"C":  "Continuing",
		"E":  "End",
		"NX": "No Encryption",
		"X":  "Encrypted",
	}
)

// ParseTuple decodes one comma-separated flow tuple into a FlowRecord.
// A tuple needs at least 8 fields; optional fields 8-12 default to empty
// state and zero counters. Callers are expected to skip the tuple and keep
// going when an error comes back.
func ParseTuple(tuple string, ctx TupleContext) (*model.FlowRecord, error) {
	fields := strings.Split(tuple, ",")
	if len(fields) < 8 {
		return nil, fmt.Errorf("tuple has %d fields, need at least 8", len(fields))
	}

	ts, err := parseEpoch(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad timestamp field %q: %w", fields[0], err)
	}

	srcPort, err := parsePort(fields[3])
	if err != nil {
		return nil, fmt.Errorf("bad source port %q: %w", fields[3], err)
	}
	dstPort, err := parsePort(fields[4])
	if err != nil {
		return nil, fmt.Errorf("bad destination port %q: %w", fields[4], err)
	}

	rec := &model.FlowRecord{
		Timestamp:      ts,
		SrcIP:          fields[1],
		DstIP:          fields[2],
		SrcPort:        srcPort,
		DstPort:        dstPort,
		Protocol:       mapped(protocolNames, fields[5]),
		Direction:      mapped(directionNames, fields[6]),
		Action:         mapped(actionNames, fields[7]),
		Rule:           ctx.Rule,
		MAC:            ctx.MAC,
		ResourceID:     ctx.ResourceID,
		FlowLogVersion: ctx.Version,
	}

	if len(fields) > 8 && fields[8] != "" {
		rec.FlowState = mapped(flowStateNames, fields[8])
	}

	counters := [4]uint64{}
	for i := range counters {
		c, err := parseCounter(fields, 9+i)
		if err != nil {
			return nil, fmt.Errorf("bad counter field %d: %w", 9+i, err)
		}
		counters[i] = c
	}
	rec.PacketsSrcToDst = counters[0]
	rec.BytesSrcToDst = counters[1]
	rec.PacketsDstToSrc = counters[2]
	rec.BytesDstToSrc = counters[3]

	// Totals are always derived, never taken from the wire.
	rec.TotalBytes = rec.BytesSrcToDst + rec.BytesDstToSrc
	rec.TotalPackets = rec.PacketsSrcToDst + rec.PacketsDstToSrc

	return rec, nil
}

// parseEpoch resolves a Unix epoch whose unit is not self-described. The two
// supported log generations write seconds or milliseconds, and sampled data
// shows microseconds in the wild, so the unit is inferred from the decimal
// digit count: >13 digits microseconds, exactly 13 milliseconds, anything
// shorter seconds. Keep these thresholds as they are; they mirror observed
// source data, not a published format document.
func parseEpoch(field string) (time.Time, error) {
	epoch, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	switch digits := len(field); {
	case digits > 13:
		return time.UnixMilli(epoch / 1000).UTC(), nil
	case digits == 13:
		return time.UnixMilli(epoch).UTC(), nil
	default:
		return time.Unix(epoch, 0).UTC(), nil
	}
}

func parsePort(field string) (uint16, error) {
	if field == "" {
		return 0, nil
	}
	p, err := strconv.ParseUint(field, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(p), nil
}

// parseCounter reads an optional numeric field: absent or empty means zero.
func parseCounter(fields []string, i int) (uint64, error) {
	if i >= len(fields) || fields[i] == "" {
		return 0, nil
	}
	return strconv.ParseUint(fields[i], 10, 64)
}

func mapped(table map[string]string, code string) string {
	if name, ok := table[code]; ok {
		return name
	}
	return code
}
