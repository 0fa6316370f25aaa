package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	testSrcMAC = net.HardwareAddr{0x60, 0x45, 0xbd, 0xf2, 0x0c, 0x12}
	testDstMAC = net.HardwareAddr{0x00, 0x0d, 0x3a, 0xf8, 0x78, 0x56}
)

func buildTCP(t *testing.T, srcIP, dstIP string, syn, ack, fin bool) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: 49152,
		DstPort: 443,
		SYN:     syn,
		ACK:     ack,
		FIN:     fin,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set network layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload([]byte("payload"))); err != nil {
		t.Fatalf("failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func buildUDP(t *testing.T, srcIP, dstIP string) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolUDP,
	}
	udp := &layers.UDP{
		SrcPort: 53312,
		DstPort: 53,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("failed to set network layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("payload"))); err != nil {
		t.Fatalf("failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func TestParsePacketTCPSyn(t *testing.T) {
	data := buildTCP(t, "10.0.0.4", "13.107.42.14", true, false, false)
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	rec, err := ParsePacket(data, ts)
	if err != nil {
		t.Fatalf("ParsePacket returned error: %v", err)
	}

	if rec.SrcIP != "10.0.0.4" || rec.DstIP != "13.107.42.14" {
		t.Errorf("got flow %s -> %s, want 10.0.0.4 -> 13.107.42.14", rec.SrcIP, rec.DstIP)
	}
	if rec.SrcPort != 49152 || rec.DstPort != 443 {
		t.Errorf("got ports %d -> %d, want 49152 -> 443", rec.SrcPort, rec.DstPort)
	}
	if rec.Protocol != "TCP" {
		t.Errorf("Protocol = %q, want TCP", rec.Protocol)
	}
	if rec.FlowState != "Begin" {
		t.Errorf("FlowState for SYN = %q, want Begin", rec.FlowState)
	}
	if rec.Direction != "Outbound" {
		t.Errorf("Direction = %q, want Outbound", rec.Direction)
	}
	if rec.Action != "Allowed" {
		t.Errorf("Action = %q, want Allowed", rec.Action)
	}
	if rec.MAC != "6045BDF20C12" {
		t.Errorf("MAC = %q, want 6045BDF20C12", rec.MAC)
	}
	if !rec.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, ts)
	}
	if rec.TotalBytes != uint64(len(data)) || rec.TotalPackets != 1 {
		t.Errorf("totals = %d bytes / %d packets, want %d / 1", rec.TotalBytes, rec.TotalPackets, len(data))
	}
}

func TestParsePacketTCPFinInbound(t *testing.T) {
	data := buildTCP(t, "13.107.42.14", "10.0.0.4", false, true, true)

	rec, err := ParsePacket(data, time.Time{})
	if err != nil {
		t.Fatalf("ParsePacket returned error: %v", err)
	}

	if rec.FlowState != "End" {
		t.Errorf("FlowState for FIN = %q, want End", rec.FlowState)
	}
	if rec.Direction != "Inbound" {
		t.Errorf("Direction for public->private = %q, want Inbound", rec.Direction)
	}
	if rec.Timestamp.IsZero() {
		t.Error("zero capture timestamp was not defaulted")
	}
}

func TestParsePacketUDP(t *testing.T) {
	data := buildUDP(t, "10.2.0.15", "10.0.0.53")

	rec, err := ParsePacket(data, time.Now())
	if err != nil {
		t.Fatalf("ParsePacket returned error: %v", err)
	}

	if rec.Protocol != "UDP" {
		t.Errorf("Protocol = %q, want UDP", rec.Protocol)
	}
	if rec.SrcPort != 53312 || rec.DstPort != 53 {
		t.Errorf("got ports %d -> %d, want 53312 -> 53", rec.SrcPort, rec.DstPort)
	}
	if rec.FlowState != "Continuing" {
		t.Errorf("FlowState = %q, want Continuing", rec.FlowState)
	}
}

func TestParsePacketNonIP(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       testSrcMAC,
		DstMAC:       testDstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testSrcMAC,
		SourceProtAddress: net.ParseIP("10.0.0.4").To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    net.ParseIP("10.0.0.1").To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		t.Fatalf("failed to serialize ARP packet: %v", err)
	}

	if _, err := ParsePacket(buf.Bytes(), time.Now()); err == nil {
		t.Error("expected an error for a non-IP packet")
	}
}
