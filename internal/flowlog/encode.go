package flowlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FlowLens/internal/model"
)

// Reverse mapping tables for the encode direction. Values the forward
// tables do not know are written out verbatim, mirroring the parser's
// passthrough rule.
var (
	protocolCodes = map[string]string{
		"TCP":  "6",
		"UDP":  "17",
		"ICMP": "1",
	}

	directionCodes = map[string]string{
		"Inbound":  "I",
		"Outbound": "O",
	}

	actionCodes = map[string]string{
		"Allowed":    "A",
		"Denied":     "D",
		"Begin":      "B",
		"Continuing": "C",
		"End":        "E",
	}

	flowStateCodes = map[string]string{
		"Begin":         "B",
		"Continuing":    "C",
		"End":           "E",
		"No Encryption": "NX",
		"Encrypted":     "X",
	}
)

// MarshalJSON writes a tuple list the way the v4 shape carries it: one
// space-separated string.
func (t TupleList) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(t, " "))
}

// FormatTuple renders a record as one v4-generation flow tuple with a
// millisecond epoch.
func FormatTuple(rec *model.FlowRecord) string {
	state := rec.FlowState
	if state == "" {
		state = "Begin"
	}
	return fmt.Sprintf("%d,%s,%s,%d,%d,%s,%s,%s,%s,%d,%d,%d,%d",
		rec.Timestamp.UnixMilli(),
		rec.SrcIP,
		rec.DstIP,
		rec.SrcPort,
		rec.DstPort,
		mapped(protocolCodes, rec.Protocol),
		mapped(directionCodes, rec.Direction),
		mapped(actionCodes, rec.Action),
		mapped(flowStateCodes, state),
		rec.PacketsSrcToDst,
		rec.BytesSrcToDst,
		rec.PacketsDstToSrc,
		rec.BytesDstToSrc,
	)
}

// EncodeShapeA assembles records into one v4-shaped flow-log document,
// grouping tuples by rule name. The generator and tests use it to produce
// inputs the decode path accepts.
func EncodeShapeA(records []*model.FlowRecord, resourceID, mac string) ([]byte, error) {
	groups := make(map[string]*VNETFlowGroup)
	var order []string
	for _, rec := range records {
		group, ok := groups[rec.Rule]
		if !ok {
			group = &VNETFlowGroup{Rule: rec.Rule}
			groups[rec.Rule] = group
			order = append(order, rec.Rule)
		}
		group.FlowTuples = append(group.FlowTuples, FormatTuple(rec))
	}

	flow := VNETFlow{FlowGroups: make([]VNETFlowGroup, 0, len(order))}
	for _, rule := range order {
		flow.FlowGroups = append(flow.FlowGroups, *groups[rule])
	}

	doc := Document{
		Records: []Record{{
			Time:              time.Now().UTC().Format(time.RFC3339),
			Category:          "FlowLogFlowEvent",
			FlowLogResourceID: resourceID,
			MACAddress:        mac,
			FlowLogVersion:    4,
			FlowRecords:       &VNETFlowRecords{Flows: []VNETFlow{flow}},
		}},
	}

	return json.Marshal(&doc)
}
