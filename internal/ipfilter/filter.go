package ipfilter

import (
	"context"
	"fmt"

	"FlowLens/internal/model"
)

// defaultProgressInterval is how many records pass between progress
// callbacks and cancellation checks when the caller does not pick one.
const defaultProgressInterval = 10000

// ProgressFunc receives human-readable status lines during a filter pass.
// It is invoked synchronously from the calling goroutine.
type ProgressFunc func(msg string)

// FilterOptions tunes progress reporting for a filter pass. The zero
// value reports nothing and checks cancellation every
// defaultProgressInterval records.
type FilterOptions struct {
	Progress         ProgressFunc
	ProgressInterval int
}

func (o FilterOptions) interval() int {
	if o.ProgressInterval > 0 {
		return o.ProgressInterval
	}
	return defaultProgressInterval
}

func (o FilterOptions) report(msg string) {
	if o.Progress != nil {
		o.Progress(msg)
	}
}

// Filter returns the subset of records where neither endpoint matches the
// exclusion configuration. With no exclusions configured the input slice
// is returned unchanged. Each call builds its own index from ips and
// cidrs, so concurrent passes share no state. Cancellation is honored at
// the progress cadence; on cancellation the partial result is discarded.
func Filter(ctx context.Context, records []*model.FlowRecord, ips, cidrs []string, opts FilterOptions) ([]*model.FlowRecord, error) {
	if len(ips) == 0 && len(cidrs) == 0 {
		return records, nil
	}

	set := NewExclusionSet(ips, cidrs)
	opts.report(fmt.Sprintf("Exclusion index ready: %d exact IPs, %d CIDR ranges", set.NumIPs(), set.NumCIDRs()))

	interval := opts.interval()
	kept := make([]*model.FlowRecord, 0, len(records))
	excluded := 0
	for i, rec := range records {
		if i > 0 && i%interval == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			opts.report(fmt.Sprintf("Filtering flows: %d/%d processed, %d excluded", i, len(records), excluded))
		}
		if set.ExcludesRecord(rec) {
			excluded++
			continue
		}
		kept = append(kept, rec)
	}

	opts.report(fmt.Sprintf("Filtering complete: kept %d of %d records (%d excluded)", len(kept), len(records), excluded))
	return kept, nil
}
