package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"FlowLens/internal/config"
	exactstat "FlowLens/internal/engine/impl/exact/statistic"
	sketchstat "FlowLens/internal/engine/impl/sketch/statistic"
	"FlowLens/internal/engine/manager"
	"FlowLens/internal/flowlog"
	"FlowLens/internal/ipfilter"
	"FlowLens/internal/model"
	"FlowLens/pkg/pcap"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	pcapPath     string
	excludeIPs   []string
	excludeCIDRs []string
	csvPath      string
	topFlows     int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "log-analyzer [flow-log documents...]",
		Short: "One-shot flow-log analysis",
		Long: `log-analyzer reads flow-log JSON documents (or a packet capture),
drops records touching excluded addresses, runs the aggregation engine
over what remains, and prints a per-task summary. Writers enabled in the
configuration receive a final snapshot before the summary is printed.`,
		Args: cobra.ArbitraryArgs,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&pcapPath, "pcap", "", "Read flow records from a packet capture instead of (or alongside) documents")
	rootCmd.Flags().StringSliceVar(&excludeIPs, "exclude-ip", nil, "Exact IP to exclude (repeatable, adds to config)")
	rootCmd.Flags().StringSliceVar(&excludeCIDRs, "exclude-cidr", nil, "CIDR range to exclude (repeatable, adds to config)")
	rootCmd.Flags().StringVar(&csvPath, "csv", "", "Write the kept records to a CSV file")
	rootCmd.Flags().IntVar(&topFlows, "top", 10, "Number of flows to print per exact task")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && pcapPath == "" {
		return fmt.Errorf("no input: pass flow-log documents as arguments or a capture via --pcap")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// One aggregation window for the whole run; periodic resets would
	// split the summary across windows.
	cfg.Aggregator.Period = "24h"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Interrupt received, stopping...")
		cancel()
	}()

	// 1. Load records from the inputs.
	records, err := loadRecords(args)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d flow records.", len(records))

	// 2. Drop records touching excluded addresses. CLI exclusions add to
	// the configured ones.
	ips := append(cfg.Exclusions.IPs, excludeIPs...)
	cidrs := append(cfg.Exclusions.CIDRs, excludeCIDRs...)

	kept, err := ipfilter.Filter(ctx, records, ips, cidrs, ipfilter.FilterOptions{
		Progress:         func(msg string) { fmt.Fprintln(os.Stderr, msg) },
		ProgressInterval: cfg.Exclusions.ProgressInterval,
	})
	if err != nil {
		return fmt.Errorf("filtering aborted: %w", err)
	}
	if dropped := len(records) - len(kept); dropped > 0 {
		log.Printf("Excluded %d of %d records.", dropped, len(records))
	}

	// 3. Run the aggregation engine over the kept records.
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	mgr.Start()

	input := mgr.InputChannel()
feed:
	for _, rec := range kept {
		select {
		case input <- rec:
		case <-ctx.Done():
			log.Println("Warning: aggregation interrupted, summary covers a partial input.")
			break feed
		}
	}

	// Stop drains the workers and pushes a final snapshot to every
	// enabled writer before returning.
	mgr.Stop()

	// 4. Print the per-task summary.
	printSummary(mgr)

	// 5. Optional CSV export of the records that survived filtering.
	if csvPath != "" {
		if err := exportCSV(csvPath, kept); err != nil {
			return fmt.Errorf("failed to export CSV: %w", err)
		}
		log.Printf("Wrote %d records to %s.", len(kept), csvPath)
	}

	return nil
}

// loadRecords gathers flow records from the document files and, when
// --pcap is set, from the capture. A document that fails to decode is
// skipped with a warning rather than aborting the run.
func loadRecords(files []string) ([]*model.FlowRecord, error) {
	var records []*model.FlowRecord

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := flowlog.DecodeDocument(data)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", path, err)
			continue
		}
		recs := doc.Extract()
		log.Printf("%s: %d flow records.", path, len(recs))
		records = append(records, recs...)
	}

	if pcapPath != "" {
		reader, err := pcap.NewReader(pcapPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture: %w", err)
		}
		defer reader.Close()

		ch := make(chan *model.FlowRecord, 1024)
		go reader.ReadRecords(ch)
		count := 0
		for rec := range ch {
			records = append(records, rec)
			count++
		}
		log.Printf("%s: %d flow records.", pcapPath, count)
	}

	return records, nil
}

// printSummary walks the manager's task groups and prints what each task
// aggregated. Exact tasks list their top flows by byte volume; sketch
// tasks list the flows that crossed their thresholds.
func printSummary(mgr *manager.Manager) {
	for _, group := range mgr.TaskGroups() {
		for _, task := range group.Tasks {
			switch snap := task.Snapshot().(type) {
			case exactstat.SnapshotData:
				printExactSummary(task.Name(), snap)
			case sketchstat.HeavyRecord:
				printSketchSummary(task.Name(), snap, task.DecodeFlowFunc(), task.Fields())
			default:
				fmt.Printf("Task %q: unknown snapshot type %T\n", task.Name(), snap)
			}
		}
	}
}

func printExactSummary(name string, snap exactstat.SnapshotData) {
	var flows []*exactstat.Flow
	var bytes, packets, recordCount uint64
	for _, shard := range snap.Shards {
		shard.Mu.RLock()
		for _, f := range shard.Flows {
			flows = append(flows, f)
			bytes += f.ByteCount
			packets += f.PacketCount
			recordCount += f.RecordCount
		}
		shard.Mu.RUnlock()
	}

	fmt.Printf("Task %q: %d flows, %d records, %d packets, %d bytes\n",
		name, len(flows), recordCount, packets, bytes)
	if len(flows) == 0 {
		return
	}

	sort.Slice(flows, func(i, j int) bool { return flows[i].ByteCount > flows[j].ByteCount })
	limit := topFlows
	if limit > len(flows) {
		limit = len(flows)
	}
	fmt.Printf("  Top %d flows by bytes:\n", limit)
	for _, f := range flows[:limit] {
		fmt.Printf("    %-60s bytes=%-12d packets=%-8d records=%d\n",
			f.Key, f.ByteCount, f.PacketCount, f.RecordCount)
	}
}

func printSketchSummary(name string, snap sketchstat.HeavyRecord, decode func([]byte, []string) string, fields []string) {
	fmt.Printf("Task %q: %d flows over the count threshold, %d over the size threshold\n",
		name, len(snap.Count), len(snap.Size))
	for _, hh := range snap.Count {
		fmt.Printf("    %-60s count=%d\n", decode(hh.Flow, fields), hh.Count)
	}
	for _, hh := range snap.Size {
		fmt.Printf("    %-60s bytes=%d\n", decode(hh.Flow, fields), hh.Size)
	}
}

// exportCSV writes the kept records in a fixed column order, one row per
// record.
func exportCSV(path string, records []*model.FlowRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"timestamp", "src_ip", "dst_ip", "src_port", "dst_port",
		"protocol", "direction", "action", "flow_state", "rule",
		"packets", "bytes",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			rec.SrcIP,
			rec.DstIP,
			strconv.FormatUint(uint64(rec.SrcPort), 10),
			strconv.FormatUint(uint64(rec.DstPort), 10),
			rec.Protocol,
			rec.Direction,
			rec.Action,
			rec.FlowState,
			rec.Rule,
			strconv.FormatUint(rec.TotalPackets, 10),
			strconv.FormatUint(rec.TotalBytes, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}
