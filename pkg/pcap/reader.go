package pcap

import (
	"FlowLens/internal/engine/protocol"
	"FlowLens/internal/model"
	"errors"
	"io"
	"log"
	"os"

	"github.com/google/gopacket/pcapgo"
)

// Reader reads packets from a pcap file. It is pure Go, so no libpcap
// is needed at build or run time.
type Reader struct {
	file *os.File
	r    *pcapgo.Reader
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Reader{file: file, r: r}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadRecords parses every packet in the file into a flow record and
// sends it to the provided channel. It closes the channel when done.
func (r *Reader) ReadRecords(out chan<- *model.FlowRecord) {
	defer close(out)

	for {
		data, ci, err := r.r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Printf("Error reading packet data: %v", err)
			return
		}

		rec, err := protocol.ParsePacket(data, ci.Timestamp)
		if err != nil {
			// We log errors from the parser but continue processing.
			// This could be because of unsupported packet types or corrupt data.
			log.Printf("Error parsing packet: %v", err)
			continue
		}
		out <- rec
	}
}
