package ipfilter

import (
	"encoding/binary"
	"net"
)

// cidrNode is one level of the prefix trie. children[0] follows a 0 bit,
// children[1] a 1 bit. terminal marks the last bit of an inserted range.
type cidrNode struct {
	children [2]*cidrNode
	terminal bool
}

// CIDRIndex is a binary trie over 32-bit IPv4 addresses. A membership
// query walks at most 32 nodes no matter how many ranges were inserted,
// which is what keeps lookups flat when the range list grows to the
// thousands. The index is never mutated after construction; a changed
// range list means building a fresh index.
type CIDRIndex struct {
	root *cidrNode
	size int
}

// NewCIDRIndex builds an index from CIDR strings of the form a.b.c.d/n
// with n in [0,32]. Entries that do not parse as IPv4 ranges are skipped.
func NewCIDRIndex(cidrs []string) *CIDRIndex {
	ix := &CIDRIndex{root: &cidrNode{}}
	for _, cidr := range cidrs {
		if ix.insert(cidr) {
			ix.size++
		}
	}
	return ix
}

// Size reports how many ranges were accepted into the index.
func (ix *CIDRIndex) Size() int {
	return ix.size
}

func (ix *CIDRIndex) insert(cidr string) bool {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return false
	}
	prefixLen, bits := ipnet.Mask.Size()
	if bits != 32 {
		return false
	}

	addr := binary.BigEndian.Uint32(ip4)
	node := ix.root
	for i := 0; i < prefixLen; i++ {
		if node.terminal {
			// A broader range already covers this one.
			return true
		}
		bit := (addr >> (31 - i)) & 1
		if node.children[bit] == nil {
			node.children[bit] = &cidrNode{}
		}
		node = node.children[bit]
	}
	node.terminal = true
	return true
}

// Contains reports whether ip falls inside any indexed range. Strings
// that do not parse as an IPv4 address never match.
func (ix *CIDRIndex) Contains(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	ip4 := addr.To4()
	if ip4 == nil {
		return false
	}

	v := binary.BigEndian.Uint32(ip4)
	node := ix.root
	for i := 0; i < 32; i++ {
		if node.terminal {
			return true
		}
		next := node.children[(v>>(31-i))&1]
		if next == nil {
			return false
		}
		node = next
	}
	return node.terminal
}
