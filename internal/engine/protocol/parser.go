package protocol

import (
	"FlowLens/internal/ipfilter"
	"FlowLens/internal/model"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket decodes a raw Ethernet frame and synthesizes a flow record
// from it, so captured traffic can run through the same aggregation
// pipeline as platform flow logs. ts is the capture timestamp; a zero
// value falls back to the wall clock.
func ParsePacket(data []byte, ts time.Time) (*model.FlowRecord, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	if ts.IsZero() {
		ts = time.Now()
	}

	rec := &model.FlowRecord{
		Timestamp:       ts,
		PacketsSrcToDst: 1,
		BytesSrcToDst:   uint64(len(data)),
		TotalPackets:    1,
		TotalBytes:      uint64(len(data)),
		FlowLogVersion:  4,
	}

	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		// Flow logs carry MACs as bare uppercase hex.
		rec.MAC = strings.ToUpper(strings.ReplaceAll(eth.SrcMAC.String(), ":", ""))
	}

	// Get IPv4 layer. Capture-based records are IPv4 only for now.
	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ipLayer := l.(*layers.IPv4)
	rec.SrcIP = ipLayer.SrcIP.String()
	rec.DstIP = ipLayer.DstIP.String()

	// There is no platform to deny a packet we already captured.
	rec.Action = "Allowed"
	rec.Direction = direction(rec.SrcIP, rec.DstIP)

	switch ipLayer.Protocol {
	case layers.IPProtocolTCP:
		rec.Protocol = "TCP"
		tcpLayer, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok {
			return nil, fmt.Errorf("IPv4 protocol claims TCP but TCP layer is missing")
		}
		rec.SrcPort = uint16(tcpLayer.SrcPort)
		rec.DstPort = uint16(tcpLayer.DstPort)
		rec.FlowState = flowState(tcpLayer)
	case layers.IPProtocolUDP:
		rec.Protocol = "UDP"
		udpLayer, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			return nil, fmt.Errorf("IPv4 protocol claims UDP but UDP layer is missing")
		}
		rec.SrcPort = uint16(udpLayer.SrcPort)
		rec.DstPort = uint16(udpLayer.DstPort)
		rec.FlowState = "Continuing"
	case layers.IPProtocolICMPv4:
		rec.Protocol = "ICMP"
		rec.FlowState = "Continuing"
	default:
		return nil, fmt.Errorf("unsupported transport protocol: %s", ipLayer.Protocol)
	}

	return rec, nil
}

// flowState maps TCP flags onto the begin/continuing/end states flow logs use.
func flowState(tcp *layers.TCP) string {
	switch {
	case tcp.SYN && !tcp.ACK:
		return "Begin"
	case tcp.FIN || tcp.RST:
		return "End"
	default:
		return "Continuing"
	}
}

// direction labels a packet Inbound only when it crosses from public
// space into private space; everything else counts as Outbound.
func direction(srcIP, dstIP string) string {
	if ipfilter.IsPrivate(dstIP) && !ipfilter.IsPrivate(srcIP) {
		return "Inbound"
	}
	return "Outbound"
}
