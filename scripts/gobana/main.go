package main

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"FlowLens/internal/engine/impl/exact/statistic"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <shard.dat> [more shards...]")
		os.Exit(1)
	}

	// Shards of the same snapshot can be passed together; flows are
	// merged before printing.
	flows := make(map[string]*statistic.Flow)
	for _, path := range os.Args[1:] {
		file, err := os.Open(path)
		if err != nil {
			log.Fatalf("Unable to open file: %v", err)
		}

		var shard map[string]*statistic.Flow
		if err := gob.NewDecoder(file).Decode(&shard); err != nil {
			file.Close()
			log.Fatalf("Failed to decode gob data from %s: %v", path, err)
		}
		file.Close()

		for key, flow := range shard {
			flows[key] = flow
		}
	}

	keys := make([]string, 0, len(flows))
	var totalBytes, totalRecords uint64
	for key, flow := range flows {
		keys = append(keys, key)
		totalBytes += flow.ByteCount
		totalRecords += flow.RecordCount
	}
	sort.Slice(keys, func(i, j int) bool {
		return flows[keys[i]].ByteCount > flows[keys[j]].ByteCount
	})

	fmt.Printf("Decoded %d flows (%d records, %d bytes):\n", len(flows), totalRecords, totalBytes)
	for _, key := range keys {
		f := flows[key]
		fmt.Printf("  %-60s bytes=%-12d packets=%-8d records=%-6d window=%s..%s\n",
			key, f.ByteCount, f.PacketCount, f.RecordCount,
			f.StartTime.Format(time.RFC3339), f.EndTime.Format(time.RFC3339))
	}
}
