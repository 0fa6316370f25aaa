package flowlog

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"FlowLens/internal/model"
)

// Document is the top level of a flow-log JSON blob: a list of log records.
type Document struct {
	Records []Record `json:"records"`
}

// Record is one log entry. Azure emits two nesting shapes, distinguished
// here as an explicit tagged union: exactly one of FlowRecords (VNET flow
// logs, v4) or Properties (NSG flow logs, v2) is non-nil after decoding.
type Record struct {
	Time              string `json:"time,omitempty"`
	Category          string `json:"category,omitempty"`
	ResourceID        string `json:"resourceId,omitempty"`
	FlowLogResourceID string `json:"flowLogResourceID,omitempty"`
	MACAddress        string `json:"macAddress,omitempty"`
	FlowLogVersion    int    `json:"flowLogVersion,omitempty"`

	FlowRecords *VNETFlowRecords `json:"flowRecords,omitempty"`
	Properties  *NSGProperties   `json:"properties,omitempty"`
}

// VNETFlowRecords is the v4 shape: flowRecords.flows[].flowGroups[].
type VNETFlowRecords struct {
	Flows []VNETFlow `json:"flows"`
}

type VNETFlow struct {
	ACLID      string          `json:"aclID"`
	FlowGroups []VNETFlowGroup `json:"flowGroups"`
}

type VNETFlowGroup struct {
	Rule       string    `json:"rule"`
	FlowTuples TupleList `json:"flowTuples"`
}

// NSGProperties is the v2 shape: properties.flows[].flows[]. The rule name
// hangs off the outer flow object, the MAC off the inner group.
type NSGProperties struct {
	Version int       `json:"Version"`
	Flows   []NSGFlow `json:"flows"`
}

type NSGFlow struct {
	Rule  string         `json:"rule"`
	Flows []NSGFlowGroup `json:"flows"`
}

type NSGFlowGroup struct {
	MAC        string    `json:"mac"`
	FlowTuples TupleList `json:"flowTuples"`
}

// TupleList accepts the two encodings flowTuples shows up in: a JSON array
// of tuple strings (v2) or one space-separated string of tuples (v4, and
// defensively for v2 as well). Empty tokens are dropped.
type TupleList []string

func (t *TupleList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*t = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flowTuples is neither a string array nor a string")
	}
	*t = strings.Fields(s)
	return nil
}

// DecodeDocument parses one raw flow-log JSON document. A malformed document
// is this function's only error; per-record and per-tuple problems are
// handled later, in Extract.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode flow-log document: %w", err)
	}
	return &doc, nil
}

// Extract walks every record in the document and parses every tuple it can
// reach. Records of an unrecognized shape and tuples that fail to parse are
// logged and skipped; one dirty entry never costs the rest of the document.
func (d *Document) Extract() []*model.FlowRecord {
	var out []*model.FlowRecord
	for i := range d.Records {
		rec := &d.Records[i]
		switch {
		case rec.FlowRecords != nil:
			out = append(out, rec.extractVNET()...)
		case rec.Properties != nil:
			out = append(out, rec.extractNSG()...)
		default:
			log.Printf("Warning: record %d matches neither flow-log shape, skipping", i)
		}
	}
	return out
}

// resourceID prefers the classic ARM field and falls back to the name the
// v4 format uses.
func (r *Record) resourceID() string {
	if r.ResourceID != "" {
		return r.ResourceID
	}
	return r.FlowLogResourceID
}

func (r *Record) extractVNET() []*model.FlowRecord {
	version := r.FlowLogVersion
	if version == 0 {
		version = 4
	}

	var out []*model.FlowRecord
	for _, flow := range r.FlowRecords.Flows {
		for _, group := range flow.FlowGroups {
			ctx := TupleContext{
				Rule:       group.Rule,
				MAC:        r.MACAddress,
				ResourceID: r.resourceID(),
				Version:    version,
			}
			out = append(out, parseTuples(group.FlowTuples, ctx)...)
		}
	}
	return out
}

func (r *Record) extractNSG() []*model.FlowRecord {
	version := r.FlowLogVersion
	if version == 0 {
		version = r.Properties.Version
	}
	if version == 0 {
		version = 2
	}

	var out []*model.FlowRecord
	for _, flow := range r.Properties.Flows {
		for _, group := range flow.Flows {
			ctx := TupleContext{
				Rule:       flow.Rule,
				MAC:        group.MAC,
				ResourceID: r.resourceID(),
				Version:    version,
			}
			out = append(out, parseTuples(group.FlowTuples, ctx)...)
		}
	}
	return out
}

func parseTuples(tuples TupleList, ctx TupleContext) []*model.FlowRecord {
	out := make([]*model.FlowRecord, 0, len(tuples))
	for _, tuple := range tuples {
		rec, err := ParseTuple(tuple, ctx)
		if err != nil {
			log.Printf("Warning: skipping tuple %q: %v", tuple, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}
