package ipfilter

import (
	"strings"

	"FlowLens/internal/model"
)

// ExclusionSet holds one filtering configuration: exact addresses checked
// through a hash set and CIDR ranges checked through a CIDRIndex. A set is
// immutable once built; edits to the configuration build a replacement.
type ExclusionSet struct {
	ips   map[string]struct{}
	index *CIDRIndex
}

// NewExclusionSet builds a set from exact IP strings and CIDR range
// strings. Blank entries are dropped and malformed CIDRs are skipped.
func NewExclusionSet(ips, cidrs []string) *ExclusionSet {
	set := &ExclusionSet{ips: make(map[string]struct{}, len(ips))}
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		set.ips[ip] = struct{}{}
	}

	trimmed := make([]string, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		trimmed = append(trimmed, cidr)
	}
	set.index = NewCIDRIndex(trimmed)
	return set
}

// Empty reports whether the set excludes nothing at all.
func (s *ExclusionSet) Empty() bool {
	return len(s.ips) == 0 && s.index.Size() == 0
}

// NumIPs reports how many exact addresses are registered.
func (s *ExclusionSet) NumIPs() int {
	return len(s.ips)
}

// NumCIDRs reports how many ranges were accepted into the index.
func (s *ExclusionSet) NumCIDRs() int {
	return s.index.Size()
}

// Excluded reports whether a single address matches the set. The exact
// list is consulted before the range index.
func (s *ExclusionSet) Excluded(ip string) bool {
	if _, ok := s.ips[ip]; ok {
		return true
	}
	return s.index.Contains(ip)
}

// ExcludesRecord reports whether either endpoint of rec matches the set.
func (s *ExclusionSet) ExcludesRecord(rec *model.FlowRecord) bool {
	return s.Excluded(rec.SrcIP) || s.Excluded(rec.DstIP)
}
