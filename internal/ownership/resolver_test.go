package ownership

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const tagsYAML = `tags:
  - name: AzureCloud.eastus
    prefixes:
      - 20.62.128.0/21
      - 52.239.152.0/23
  - name: AzureFrontDoor.Frontend
    prefixes:
      - 13.107.42.14/32
`

func writeTagsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servicetags.yaml")
	if err := os.WriteFile(path, []byte(tagsYAML), 0644); err != nil {
		t.Fatalf("Failed to write tags file: %v", err)
	}
	return path
}

func TestResolverClassification(t *testing.T) {
	resolver, err := NewResolver(writeTagsFile(t))
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	if resolver.NumTags() != 2 {
		t.Fatalf("Expected 2 tags, got %d", resolver.NumTags())
	}

	testCases := []struct {
		ip   string
		want string
	}{
		{"10.0.0.4", OwnerPrivate},
		{"192.168.1.1", OwnerPrivate},
		{"168.63.129.16", OwnerPlatform},
		{"20.62.132.27", "AzureCloud.eastus"},
		{"52.239.152.10", "AzureCloud.eastus"},
		{"13.107.42.14", "AzureFrontDoor.Frontend"},
		{"8.8.8.8", OwnerPublic},
		{"not-an-ip", OwnerInvalid},
	}

	for _, tc := range testCases {
		if got := resolver.Resolve(tc.ip, nil); got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.ip, got, tc.want)
		}
	}
}

func TestResolverUsesCache(t *testing.T) {
	resolver := NewResolverFromTags([]ServiceTag{
		{Name: "TagA", Prefixes: []string{"20.0.0.0/8"}},
	})
	cache := NewCache(time.Hour)

	if got := resolver.Resolve("20.1.2.3", cache); got != "TagA" {
		t.Fatalf("Expected TagA, got %q", got)
	}
	if cache.Len() != 1 {
		t.Fatalf("Expected the result to be cached, got %d entries", cache.Len())
	}

	// A cached answer is served even when the live classification would
	// now differ.
	cache.Set("20.1.2.3", "Stale")
	if got := resolver.Resolve("20.1.2.3", cache); got != "Stale" {
		t.Errorf("Expected the cached answer, got %q", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)
	cache.Set("8.8.8.8", OwnerPublic)

	if _, ok := cache.Get("8.8.8.8"); !ok {
		t.Fatal("Expected a fresh entry to hit")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := cache.Get("8.8.8.8"); ok {
		t.Fatal("Expected the entry to expire")
	}
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	cache := NewCache(0)
	cache.Set("8.8.8.8", OwnerPublic)
	time.Sleep(5 * time.Millisecond)
	if _, ok := cache.Get("8.8.8.8"); !ok {
		t.Fatal("Expected the entry to persist with zero TTL")
	}
}

func TestNewResolverMissingFile(t *testing.T) {
	if _, err := NewResolver(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for a missing tags file")
	}
}
