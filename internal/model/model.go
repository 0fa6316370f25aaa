package model

import "time"

// FlowRecord is one parsed network flow event from an NSG (v2) or VNET (v4)
// flow log. A record is immutable once constructed: the parser fills every
// field and nothing downstream writes to it.
type FlowRecord struct {
	Timestamp time.Time

	// Addresses are carried verbatim from the tuple. Validation is the
	// ipfilter package's job, not the parser's.
	SrcIP string
	DstIP string

	SrcPort uint16
	DstPort uint16

	// Protocol is TCP, UDP, ICMP, or the raw tuple value for codes the
	// mapping tables do not know.
	Protocol string

	// Direction is Inbound, Outbound, or a raw passthrough value.
	Direction string

	// Action holds either a security decision (Allowed, Denied) or a
	// connection lifecycle marker (Begin, Continuing, End) depending on the
	// format generation. Both vocabularies share this field; callers must
	// not assume it is always a security decision.
	Action string

	// FlowState is the optional secondary state token from the newer
	// format, e.g. "No Encryption". Empty when the tuple has no such field.
	FlowState string

	PacketsSrcToDst uint64
	BytesSrcToDst   uint64
	PacketsDstToSrc uint64
	BytesDstToSrc   uint64

	// TotalBytes and TotalPackets are always recomputed from the four
	// directional counters above, never copied from the wire.
	TotalBytes   uint64
	TotalPackets uint64

	// Provenance from the enclosing log entry, not from the tuple itself.
	Rule       string
	MAC        string
	ResourceID string

	// FlowLogVersion is the format generation hint (2 or 4) resolved from
	// the enclosing document.
	FlowLogVersion int
}
