package ipfilter

import "net"

// reservedRanges lists every IPv4 range classified as private address
// space: RFC 1918, loopback, link-local, carrier-grade NAT, the
// documentation and reserved blocks, multicast, and the Azure platform
// metadata host 168.63.129.16.
var reservedRanges = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"168.63.129.16/32",
}

var privateBlocks []*net.IPNet

func init() {
	for _, cidr := range reservedRanges {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateBlocks = append(privateBlocks, block)
	}
}

// IsPrivate reports whether ip belongs to private or reserved address
// space. IPv6 addresses count as private only when they are the loopback
// address. Strings that do not parse as an IP are never private.
func IsPrivate(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	if addr.To4() == nil {
		return addr.IsLoopback()
	}
	for _, block := range privateBlocks {
		if block.Contains(addr) {
			return true
		}
	}
	return false
}
