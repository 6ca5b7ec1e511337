package adminsearch

import (
	"errors"
	"net/netip"
	"strconv"
	"strings"
)

// DefaultNumericThreshold is the minimum number of all-numeric terms needed
// before a query is treated as a bulk id lookup. A single numeric term keeps
// going through the regular field search, since some lists have fields where
// searching one number makes sense.
const DefaultNumericThreshold = 2

var errReversedRange = errors.New("adminsearch: range start is after range end")

type Kind int

const (
	// KindNone means the query was empty: apply no filtering at all.
	KindNone Kind = iota
	// KindIP means every term parsed as an IP address, network or range.
	KindIP
	// KindNumericIDs means every term was numeric and there were enough of
	// them to treat the query as a bulk id lookup.
	KindNumericIDs
	// KindText is the fallback free-text classification.
	KindText
)

// Classification is the result of interpreting a raw search query. Exactly
// one variant is populated; it is built fresh per request and never stored.
type Classification struct {
	Kind     Kind
	IPs      []netip.Addr
	Networks []netip.Prefix
	IDs      []uint64
	Terms    []string
	// JoinOR is set when the raw query contained commas: each term then
	// widens the result set instead of narrowing it.
	JoinOR bool
}

// NormalizeQuery cleans a raw search parameter the way the HTTP form layer
// does: when commas separate multiple terms, surrounding whitespace is
// trimmed from each and empty terms are dropped.
func NormalizeQuery(raw string) string {
	if !strings.Contains(raw, ",") {
		return strings.TrimSpace(raw)
	}
	parts := strings.Split(raw, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ",")
}

// Classify interprets a normalized search query. Parse failures are never
// errors: a term that fails every candidate interpretation demotes the whole
// query to free text.
func Classify(raw string, numericThreshold int) Classification {
	raw = NormalizeQuery(raw)
	if raw == "" {
		return Classification{Kind: KindNone}
	}
	if numericThreshold <= 0 {
		numericThreshold = DefaultNumericThreshold
	}

	hasComma := strings.Contains(raw, ",")
	terms := strings.Split(raw, ",")

	if ips, networks, ok := ipTerms(terms); ok {
		return Classification{Kind: KindIP, IPs: ips, Networks: networks}
	}

	if ids, ok := numericTerms(terms); ok && len(ids) >= numericThreshold {
		return Classification{Kind: KindNumericIDs, IDs: ids}
	}

	// Wildcards become SQL LIKE wildcards before the terms are built.
	raw = strings.ReplaceAll(raw, "*", "%")
	if hasComma {
		return Classification{Kind: KindText, Terms: strings.Split(raw, ","), JoinOR: true}
	}
	return Classification{Kind: KindText, Terms: []string{raw}}
}

// ipTerms attempts to read every term as an IP address, a CIDR network or an
// inclusive a-b range. A purely numeric term aborts the whole attempt:
// address parsers accept integers as addresses, but a bare number in an admin
// search box is an id, never an address.
func ipTerms(terms []string) ([]netip.Addr, []netip.Prefix, bool) {
	var (
		ips      []netip.Addr
		networks []netip.Prefix
		seenIP   = make(map[netip.Addr]struct{})
	)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if isDigits(term) {
			return nil, nil, false
		}
		if addr, err := netip.ParseAddr(term); err == nil {
			if _, dup := seenIP[addr]; !dup {
				seenIP[addr] = struct{}{}
				ips = append(ips, addr)
			}
			continue
		}
		if prefix, err := netip.ParsePrefix(term); err == nil {
			networks = append(networks, prefix.Masked())
			continue
		}
		if strings.Count(term, "-") == 1 {
			if cover, err := rangeCover(term); err == nil {
				networks = append(networks, cover...)
				continue
			}
		}
		return nil, nil, false
	}
	return ips, networks, true
}

func rangeCover(term string) ([]netip.Prefix, error) {
	bounds := strings.SplitN(term, "-", 2)
	first, err := netip.ParseAddr(strings.TrimSpace(bounds[0]))
	if err != nil {
		return nil, err
	}
	last, err := netip.ParseAddr(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, err
	}
	return SummarizeRange(first, last)
}

// SummarizeRange computes the minimal set of CIDR prefixes exactly covering
// the inclusive range [first, last]. Mixed address families and reversed
// ranges are rejected; the caller treats that as a classification miss.
func SummarizeRange(first, last netip.Addr) ([]netip.Prefix, error) {
	if first.Is4() != last.Is4() {
		return nil, errors.New("adminsearch: mixed address families in range")
	}
	cur := addrToUint128(first)
	end := addrToUint128(last)
	if cur.greaterThan(end) {
		return nil, errReversedRange
	}

	bitLen := 128
	if first.Is4() {
		bitLen = 32
	}

	var cover []netip.Prefix
	for {
		// Widest block aligned at cur that does not pass end.
		nbits := cur.trailingZeros()
		if nbits > bitLen {
			nbits = bitLen
		}
		for nbits > 0 && cur.blockEnd(nbits).greaterThan(end) {
			nbits--
		}
		cover = append(cover, netip.PrefixFrom(uint128ToAddr(cur, first.Is4()), bitLen-nbits))

		next, overflow := cur.blockEnd(nbits).addOne()
		if overflow || next.greaterThan(end) {
			return cover, nil
		}
		cur = next
	}
}

func numericTerms(terms []string) ([]uint64, bool) {
	ids := make([]uint64, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if !isDigits(term) {
			return nil, false
		}
		id, err := strconv.ParseUint(term, 10, 64)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
