package denylist

import (
	"net/netip"
	"sort"
	"testing"

	"shrike/internal/domain"
)

func TestExtractEntriesMixedPayload(t *testing.T) {
	payload := []byte("# comment line\n192.0.2.1\nnoise 192.0.2.2 trailing\n198.51.100.0/24\nnot-an-ip\n192.0.2.1\n")

	ips, ranges := extractEntries(payload)
	sort.Strings(ips)

	if len(ips) != 2 || ips[0] != "192.0.2.1" || ips[1] != "192.0.2.2" {
		t.Fatalf("unexpected ips: %v", ips)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected one range, got %v", ranges)
	}
	if ranges[0].CIDR != "198.51.100.0/24" {
		t.Fatalf("unexpected cidr: %s", ranges[0].CIDR)
	}
	if ranges[0].EndIP-ranges[0].StartIP != 255 {
		t.Fatalf("unexpected range width: %d..%d", ranges[0].StartIP, ranges[0].EndIP)
	}
}

func TestIsListedAgainstCacheAndRanges(t *testing.T) {
	cache.Store(map[string]struct{}{"192.0.2.7": {}})
	defer cache.Store(make(map[string]struct{}))

	ranges, _ := classifyEntry("10.0.0.0/8")
	rangeCache.Store(ranges)
	defer rangeCache.Store(nil)

	cases := []struct {
		addr   string
		listed bool
	}{
		{"192.0.2.7", true},
		{"192.0.2.8", false},
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"::ffff:10.1.2.3", true},
		{"2001:db8::1", false},
	}

	for _, tc := range cases {
		addr := netip.MustParseAddr(tc.addr)
		if got := IsListed(addr); got != tc.listed {
			t.Errorf("IsListed(%s) = %v, want %v", tc.addr, got, tc.listed)
		}
	}

	if IsListed(netip.Addr{}) {
		t.Error("invalid address should never be listed")
	}
}

func TestRangesContainBinarySearch(t *testing.T) {
	var ranges []domain.DenylistedRange
	for _, cidr := range []string{"10.0.0.0/24", "10.0.2.0/24", "172.16.0.0/16"} {
		parsed, _ := classifyEntry(cidr)
		ranges = append(ranges, parsed...)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartIP < ranges[j].StartIP })

	if !rangesContain(ranges, "10.0.2.200") {
		t.Error("address inside second range not matched")
	}
	if rangesContain(ranges, "10.0.1.5") {
		t.Error("address between ranges matched")
	}
	if !rangesContain(ranges, "172.16.255.255") {
		t.Error("last address of range not matched")
	}
	if rangesContain(ranges, "172.17.0.0") {
		t.Error("address just past range matched")
	}
}
