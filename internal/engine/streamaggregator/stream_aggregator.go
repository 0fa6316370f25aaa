package streamaggregator

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/manager"
	"FlowLens/internal/flowlog"
	"FlowLens/internal/ipfilter"
	"FlowLens/internal/model"
	"log"

	"github.com/nats-io/nats.go"
)

// StreamAggregator consumes flow-log documents from NATS and uses a
// manager.Manager to aggregate the records they contain.
type StreamAggregator struct {
	nc           *nats.Conn
	sub          *nats.Subscription
	manager      *manager.Manager
	inputChannel chan<- *model.FlowRecord
	exclusions   *ipfilter.ExclusionSet
	natsURL      string
	natsSubject  string
}

// NewStreamAggregator creates a new real-time stream aggregator.
func NewStreamAggregator(cfg *config.Config) (*StreamAggregator, error) {
	// The manager handles the actual aggregation.
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return nil, err
	}

	// The exclusion set is immutable once built; a config change means a restart.
	var exclusions *ipfilter.ExclusionSet
	if set := ipfilter.NewExclusionSet(cfg.Exclusions.IPs, cfg.Exclusions.CIDRs); !set.Empty() {
		exclusions = set
		log.Printf("Exclusion filter active: %d exact IPs, %d CIDR ranges", set.NumIPs(), set.NumCIDRs())
	}

	return &StreamAggregator{
		manager:      mgr,
		inputChannel: mgr.InputChannel(),
		exclusions:   exclusions,
		natsURL:      cfg.Probe.NATSURL,
		natsSubject:  cfg.Probe.Subject,
	}, nil
}

// Start connects to NATS, starts the underlying manager, and begins processing messages.
func (sa *StreamAggregator) Start() {
	log.Println("StreamAggregator starting for nats: ", sa.natsURL)
	nc, err := nats.Connect(sa.natsURL)
	if err != nil {
		log.Fatalf("StreamAggregator failed to connect to NATS: %v", err)
	}
	sa.nc = nc

	// The manager starts its own worker pool and snapshotter.
	sa.manager.Start()

	sa.sub, err = sa.nc.Subscribe(sa.natsSubject, sa.handleDocument)
	if err != nil {
		log.Fatalf("StreamAggregator failed to subscribe: %v", err)
	}
	log.Printf("StreamAggregator subscribed to '%s'", sa.natsSubject)
}

// Stop gracefully shuts down the aggregator.
func (sa *StreamAggregator) Stop() {
	log.Println("StreamAggregator stopping...")
	if sa.sub != nil {
		sa.sub.Unsubscribe()
	}
	if sa.nc != nil {
		sa.nc.Close()
	}
	// Stop the underlying manager, which will close the input channel
	// and wait for workers to finish before taking a final snapshot.
	sa.manager.Stop()
	log.Println("StreamAggregator stopped.")
}

// Manager exposes the underlying manager, for API handlers that query
// live aggregates.
func (sa *StreamAggregator) Manager() *manager.Manager {
	return sa.manager
}

// handleDocument decodes one flow-log document and feeds its records to the manager.
// A document that fails to decode is dropped; the stream carries on.
func (sa *StreamAggregator) handleDocument(msg *nats.Msg) {
	doc, err := flowlog.DecodeDocument(msg.Data)
	if err != nil {
		log.Printf("Error decoding flow-log document: %v", err)
		return
	}

	records := doc.Extract()
	for _, rec := range records {
		if sa.exclusions != nil && sa.exclusions.ExcludesRecord(rec) {
			continue
		}
		sa.inputChannel <- rec
	}
}
