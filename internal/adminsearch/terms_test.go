package adminsearch

import (
	"net/netip"
	"reflect"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	testCases := map[string]string{
		"":                      "",
		"  alice  ":             "alice",
		"alice, bob":            "alice,bob",
		" alice ,, bob , ":      "alice,bob",
		"10.0.0.1 , 10.0.0.2":   "10.0.0.1,10.0.0.2",
		"no commas stay as-is ": "no commas stay as-is",
	}

	for input, expected := range testCases {
		if got := NormalizeQuery(input); got != expected {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestClassifyIPTerms(t *testing.T) {
	cls := Classify("10.0.0.1,192.168.1.0/24,10.0.0.5-10.0.0.8", DefaultNumericThreshold)

	if cls.Kind != KindIP {
		t.Fatalf("expected KindIP, got %v", cls.Kind)
	}
	wantIPs := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	if !reflect.DeepEqual(cls.IPs, wantIPs) {
		t.Errorf("IPs = %v, want %v", cls.IPs, wantIPs)
	}
	wantNetworks := []netip.Prefix{
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("10.0.0.5/32"),
		netip.MustParsePrefix("10.0.0.6/31"),
		netip.MustParsePrefix("10.0.0.8/32"),
	}
	if !reflect.DeepEqual(cls.Networks, wantNetworks) {
		t.Errorf("Networks = %v, want %v", cls.Networks, wantNetworks)
	}
}

func TestClassifyDeduplicatesAddresses(t *testing.T) {
	cls := Classify("10.0.0.1,10.0.0.1,10.0.0.2", DefaultNumericThreshold)
	if cls.Kind != KindIP {
		t.Fatalf("expected KindIP, got %v", cls.Kind)
	}
	if len(cls.IPs) != 2 {
		t.Errorf("expected 2 unique addresses, got %v", cls.IPs)
	}
}

func TestClassifyNumericTermNeverIP(t *testing.T) {
	// Address parsers accept bare integers as addresses; an admin searching
	// "3232235777" means an id, not 192.168.1.1.
	testCases := []string{
		"3232235777",
		"10.0.0.1,123",
		"123,10.0.0.1",
		"123,192.168.1.0/24",
	}

	for _, input := range testCases {
		if cls := Classify(input, DefaultNumericThreshold); cls.Kind == KindIP {
			t.Errorf("Classify(%q) classified as IP", input)
		}
	}
}

func TestClassifyBulkIDs(t *testing.T) {
	cls := Classify("123,456", 2)
	if cls.Kind != KindNumericIDs {
		t.Fatalf("expected KindNumericIDs, got %v", cls.Kind)
	}
	if !reflect.DeepEqual(cls.IDs, []uint64{123, 456}) {
		t.Errorf("IDs = %v, want [123 456]", cls.IDs)
	}

	// A single numeric term stays below the threshold and falls back to
	// regular field search.
	cls = Classify("123", 2)
	if cls.Kind != KindText {
		t.Errorf("single numeric term: expected KindText, got %v", cls.Kind)
	}

	cls = Classify("123,456,789", 4)
	if cls.Kind != KindText {
		t.Errorf("below custom threshold: expected KindText, got %v", cls.Kind)
	}
}

func TestClassifyTextTerms(t *testing.T) {
	cls := Classify("alice,bob", DefaultNumericThreshold)
	if cls.Kind != KindText || !cls.JoinOR {
		t.Fatalf("expected OR text classification, got %+v", cls)
	}
	if !reflect.DeepEqual(cls.Terms, []string{"alice", "bob"}) {
		t.Errorf("Terms = %v, want [alice bob]", cls.Terms)
	}

	cls = Classify("alice bob", DefaultNumericThreshold)
	if cls.Kind != KindText || cls.JoinOR {
		t.Fatalf("expected AND text classification, got %+v", cls)
	}
	if !reflect.DeepEqual(cls.Terms, []string{"alice bob"}) {
		t.Errorf("Terms = %v, want [alice bob] as a single term", cls.Terms)
	}
}

func TestClassifyWildcardRewrite(t *testing.T) {
	cls := Classify("al*ce", DefaultNumericThreshold)
	if cls.Kind != KindText {
		t.Fatalf("expected KindText, got %v", cls.Kind)
	}
	if cls.Terms[0] != "al%ce" {
		t.Errorf("Terms[0] = %q, want %q", cls.Terms[0], "al%ce")
	}
}

func TestClassifyEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", " , , "} {
		if cls := Classify(input, DefaultNumericThreshold); cls.Kind != KindNone {
			t.Errorf("Classify(%q) = %v, want KindNone", input, cls.Kind)
		}
	}
}

func TestClassifyMalformedIPFallsBackToText(t *testing.T) {
	cls := Classify("10.0.0.1,not-an-ip", DefaultNumericThreshold)
	if cls.Kind != KindText {
		t.Fatalf("expected KindText fallback, got %v", cls.Kind)
	}
	if !cls.JoinOR {
		t.Error("comma-separated fallback should join with OR")
	}
}

func TestSummarizeRange(t *testing.T) {
	testCases := []struct {
		first, last string
		want        []string
	}{
		{"10.0.0.5", "10.0.0.8", []string{"10.0.0.5/32", "10.0.0.6/31", "10.0.0.8/32"}},
		{"10.0.0.0", "10.0.0.255", []string{"10.0.0.0/24"}},
		{"10.0.0.1", "10.0.0.1", []string{"10.0.0.1/32"}},
		{"0.0.0.0", "255.255.255.255", []string{"0.0.0.0/0"}},
		{"2001:db8::", "2001:db8::3", []string{"2001:db8::/126"}},
		{"2001:db8::1", "2001:db8::2", []string{"2001:db8::1/128", "2001:db8::2/128"}},
	}

	for _, tc := range testCases {
		cover, err := SummarizeRange(netip.MustParseAddr(tc.first), netip.MustParseAddr(tc.last))
		if err != nil {
			t.Errorf("SummarizeRange(%s, %s): %v", tc.first, tc.last, err)
			continue
		}
		got := make([]string, len(cover))
		for i, prefix := range cover {
			got[i] = prefix.String()
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SummarizeRange(%s, %s) = %v, want %v", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestSummarizeRangeReversedRejected(t *testing.T) {
	_, err := SummarizeRange(netip.MustParseAddr("10.0.0.8"), netip.MustParseAddr("10.0.0.5"))
	if err == nil {
		t.Fatal("expected reversed range to be rejected")
	}

	// And the classifier demotes the whole query to free text.
	cls := Classify("10.0.0.8-10.0.0.5", DefaultNumericThreshold)
	if cls.Kind != KindText {
		t.Errorf("reversed range: expected KindText, got %v", cls.Kind)
	}
}

func TestSummarizeRangeMixedFamiliesRejected(t *testing.T) {
	_, err := SummarizeRange(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("2001:db8::1"))
	if err == nil {
		t.Fatal("expected mixed address families to be rejected")
	}
}

func TestLastAddr(t *testing.T) {
	testCases := map[string]string{
		"10.0.0.0/24":    "10.0.0.255",
		"10.0.0.8/32":    "10.0.0.8",
		"192.168.0.0/16": "192.168.255.255",
		"2001:db8::/126": "2001:db8::3",
	}

	for prefix, expected := range testCases {
		got := lastAddr(netip.MustParsePrefix(prefix))
		if got.Unmap().String() != expected {
			t.Errorf("lastAddr(%s) = %s, want %s", prefix, got, expected)
		}
	}
}
