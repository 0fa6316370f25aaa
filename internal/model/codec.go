package model

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"
)

// Byte widths of the encoded flow-key fields. IPs are stored in 16-byte
// form so IPv4 and IPv6 keys have a uniform layout.
const (
	IPByteSize    = 16
	PortByteSize  = 2
	LabelByteSize = 1
)

// Single-byte codes for the enumerated string fields. Labels outside the
// tables encode as 0 and decode as "?".
var (
	protocolCodes  = map[string]byte{"TCP": 6, "UDP": 17, "ICMP": 1}
	protocolNames  = map[byte]string{6: "TCP", 17: "UDP", 1: "ICMP"}
	directionCodes = map[string]byte{"Inbound": 1, "Outbound": 2}
	directionNames = map[byte]string{1: "Inbound", 2: "Outbound"}
	actionCodes    = map[string]byte{"Allowed": 1, "Denied": 2, "Begin": 3, "Continuing": 4, "End": 5}
	actionNames    = map[byte]string{1: "Allowed", 2: "Denied", 3: "Begin", 4: "Continuing", 5: "End"}
)

// FieldByteSize returns the encoded width of one key field, or 0 for a
// field that cannot be byte-encoded.
func FieldByteSize(field string) int {
	switch field {
	case "SrcIP", "DstIP":
		return IPByteSize
	case "SrcPort", "DstPort":
		return PortByteSize
	case "Protocol", "Direction", "Action":
		return LabelByteSize
	default:
		return 0
	}
}

// FlowKeySize returns the total encoded width of a field list.
func FlowKeySize(fields []string) int {
	size := 0
	for _, field := range fields {
		size += FieldByteSize(field)
	}
	return size
}

// AppendField appends the encoded value of one field of rec to buf.
// Fields with no byte encoding leave buf unchanged.
func AppendField(buf []byte, rec *FlowRecord, field string) []byte {
	switch field {
	case "SrcIP":
		return appendIP(buf, rec.SrcIP)
	case "DstIP":
		return appendIP(buf, rec.DstIP)
	case "SrcPort":
		return binary.BigEndian.AppendUint16(buf, rec.SrcPort)
	case "DstPort":
		return binary.BigEndian.AppendUint16(buf, rec.DstPort)
	case "Protocol":
		return append(buf, protocolCodes[rec.Protocol])
	case "Direction":
		return append(buf, directionCodes[rec.Direction])
	case "Action":
		return append(buf, actionCodes[rec.Action])
	default:
		return buf
	}
}

func appendIP(buf []byte, ip string) []byte {
	addr := net.ParseIP(ip)
	if addr == nil {
		var zero [IPByteSize]byte
		return append(buf, zero[:]...)
	}
	return append(buf, addr.To16()...)
}

// DecodeFields renders an encoded flow key back into a readable string,
// one segment per field joined by '-'. The field list must match the one
// used to encode.
func DecodeFields(flow []byte, fields []string) string {
	parts := make([]string, 0, len(fields))
	index := 0
	for _, field := range fields {
		size := FieldByteSize(field)
		if size == 0 || index+size > len(flow) {
			break
		}
		seg := flow[index : index+size]
		index += size

		switch field {
		case "SrcIP", "DstIP":
			parts = append(parts, net.IP(seg).String())
		case "SrcPort", "DstPort":
			parts = append(parts, strconv.Itoa(int(binary.BigEndian.Uint16(seg))))
		case "Protocol":
			parts = append(parts, labelName(protocolNames, seg[0]))
		case "Direction":
			parts = append(parts, labelName(directionNames, seg[0]))
		case "Action":
			parts = append(parts, labelName(actionNames, seg[0]))
		}
	}
	return strings.Join(parts, "-")
}

func labelName(names map[byte]string, code byte) string {
	if name, ok := names[code]; ok {
		return name
	}
	return "?"
}
