package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"FlowLens/internal/flowlog"
	"FlowLens/internal/model"
	"FlowLens/pkg/pcap"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Address pools for generated traffic. Sources sit in a private subnet;
// destinations mix platform endpoints, public services, and peers in the
// same subnet so both directions show up downstream.
var (
	srcPool = []net.IP{
		{10, 0, 0, 4}, {10, 0, 0, 5}, {10, 0, 0, 6}, {10, 0, 1, 10},
	}
	dstPool = []net.IP{
		{13, 107, 42, 14}, {52, 239, 152, 10}, {168, 63, 129, 16},
		{203, 0, 113, 50}, {10, 0, 0, 7},
	}
	dstPorts = []layers.TCPPort{443, 80, 8080, 3389}
)

func main() {
	mode := flag.String("mode", "pcap", "Generation mode: 'pcap' or 'doc'")
	outputFile := flag.String("o", "", "Output file path (default test.pcap or test.json)")
	packetCount := flag.Int("c", 1000, "Number of packets to generate (pcap mode)")
	inputFile := flag.String("i", "test.pcap", "Input capture to convert (doc mode)")
	resourceID := flag.String("resource-id", "/SUBSCRIPTIONS/0000/RESOURCEGROUPS/RG-GEN/PROVIDERS/MICROSOFT.NETWORK/VIRTUALNETWORKS/VNET-GEN", "Resource ID stamped on generated documents")
	flag.Parse()

	switch *mode {
	case "pcap":
		if *outputFile == "" {
			*outputFile = "test.pcap"
		}
		generateCapture(*outputFile, *packetCount)
	case "doc":
		if *outputFile == "" {
			*outputFile = "test.json"
		}
		convertCapture(*inputFile, *outputFile, *resourceID)
	default:
		log.Fatalf("Unknown mode: %s. Use 'pcap' or 'doc'.", *mode)
	}
}

// generateCapture writes a synthetic capture whose packets decode into
// flow records: Ethernet + IPv4 with TCP or UDP on top.
func generateCapture(path string, count int) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %d packets into %s...", count, path)

	ts := time.Now().Add(-time.Duration(count) * time.Millisecond)
	for i := 0; i < count; i++ {
		if (i+1)%100000 == 0 {
			log.Printf("Generated %d packets...", i+1)
		}

		srcIP := srcPool[rand.Intn(len(srcPool))]
		dstIP := dstPool[rand.Intn(len(dstPool))]
		payloadSize := rand.Intn(1400) + 50

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x60, 0x45, 0xBD, 0xF2, 0x0C, 0x12},
			DstMAC:       net.HardwareAddr{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:   srcIP,
			DstIP:   dstIP,
			Version: 4,
			TTL:     64,
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}

		payload := make([]byte, payloadSize)
		rand.Read(payload)

		// Roughly one packet in five is DNS over UDP, the rest TCP.
		if rand.Intn(5) == 0 {
			ipLayer.Protocol = layers.IPProtocolUDP
			udpLayer := &layers.UDP{
				SrcPort: layers.UDPPort(rand.Intn(65535-1024) + 1024),
				DstPort: 53,
			}
			udpLayer.SetNetworkLayerForChecksum(ipLayer)
			err = gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload(payload))
		} else {
			ipLayer.Protocol = layers.IPProtocolTCP
			tcpLayer := &layers.TCP{
				SrcPort: layers.TCPPort(rand.Intn(65535-1024) + 1024),
				DstPort: dstPorts[rand.Intn(len(dstPorts))],
				Seq:     rand.Uint32(),
				Window:  14600,
			}
			// Open, carry, or close the connection.
			switch rand.Intn(10) {
			case 0:
				tcpLayer.SYN = true
			case 1:
				tcpLayer.FIN = true
				tcpLayer.ACK = true
			default:
				tcpLayer.ACK = true
			}
			tcpLayer.SetNetworkLayerForChecksum(ipLayer)
			err = gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(payload))
		}
		if err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ts = ts.Add(time.Millisecond)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", count, path)
}

// convertCapture reads a capture and writes its flow records as one
// v4-shaped flow-log JSON document, the same shape the probe publishes.
func convertCapture(inPath, outPath, resourceID string) {
	reader, err := pcap.NewReader(inPath)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer reader.Close()

	ch := make(chan *model.FlowRecord, 1024)
	go reader.ReadRecords(ch)

	var records []*model.FlowRecord
	for rec := range ch {
		// Captured packets carry no rule name; stamp a plausible one so
		// the document groups cleanly.
		if rec.Rule == "" {
			rec.Rule = "DefaultRule_AllowInternetOutBound"
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		log.Fatalf("No usable flow records in %s.", inPath)
	}

	doc, err := flowlog.EncodeShapeA(records, resourceID, records[0].MAC)
	if err != nil {
		log.Fatalf("Failed to encode document: %v", err)
	}

	if err := os.WriteFile(outPath, doc, 0644); err != nil {
		log.Fatalf("Failed to write document: %v", err)
	}
	log.Printf("Wrote %d flow records from %s into %s.", len(records), inPath, outPath)
}
