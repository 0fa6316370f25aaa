package ownership

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"FlowLens/internal/ipfilter"
)

// Well-known owner labels for addresses that match no service tag.
const (
	OwnerInvalid  = "Invalid address"
	OwnerPlatform = "Azure platform service"
	OwnerPrivate  = "Private network"
	OwnerPublic   = "Public internet"
)

const platformMetadataIP = "168.63.129.16"

// ServiceTag is one named block of published provider address ranges.
type ServiceTag struct {
	Name     string   `yaml:"name"`
	Prefixes []string `yaml:"prefixes"`
}

type serviceTagsFile struct {
	Tags []ServiceTag `yaml:"tags"`
}

type resolvedTag struct {
	name  string
	index *ipfilter.CIDRIndex
}

// Resolver maps an IP address to a human-readable owner: a service tag
// name, or one of the well-known labels above. Tags are matched in file
// order, first hit wins.
type Resolver struct {
	tags []resolvedTag
}

// NewResolver loads service tags from a YAML file and builds one CIDR
// index per tag.
func NewResolver(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service tags: %w", err)
	}
	var file serviceTagsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse service tags: %w", err)
	}
	return NewResolverFromTags(file.Tags), nil
}

// NewResolverFromTags builds a resolver from already-loaded tags.
func NewResolverFromTags(tags []ServiceTag) *Resolver {
	r := &Resolver{tags: make([]resolvedTag, 0, len(tags))}
	for _, tag := range tags {
		r.tags = append(r.tags, resolvedTag{
			name:  tag.Name,
			index: ipfilter.NewCIDRIndex(tag.Prefixes),
		})
	}
	return r
}

// NumTags reports how many tags are loaded.
func (r *Resolver) NumTags() int {
	return len(r.tags)
}

// Resolve returns the owner label for ip, consulting and populating cache
// when one is supplied. A nil cache resolves every call from scratch.
func (r *Resolver) Resolve(ip string, cache *Cache) string {
	if cache != nil {
		if owner, ok := cache.Get(ip); ok {
			return owner
		}
	}
	owner := r.classify(ip)
	if cache != nil {
		cache.Set(ip, owner)
	}
	return owner
}

func (r *Resolver) classify(ip string) string {
	if net.ParseIP(ip) == nil {
		return OwnerInvalid
	}
	// The metadata host sits inside the reserved table, so it is matched
	// before the generic private check to keep its specific label.
	if ip == platformMetadataIP {
		return OwnerPlatform
	}
	if ipfilter.IsPrivate(ip) {
		return OwnerPrivate
	}
	for _, tag := range r.tags {
		if tag.index.Contains(ip) {
			return tag.name
		}
	}
	return OwnerPublic
}
