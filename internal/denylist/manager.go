// Package denylist keeps an in-memory set of reporter IP addresses whose
// abuse reports are dropped at intake. The set is hydrated from the database
// and periodically rebuilt from configured source URLs.
package denylist

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"shrike/internal/config"
	"shrike/internal/database"
	"shrike/internal/domain"
	"shrike/internal/support"
)

const (
	maxResponseBytes       = 10 << 20 // cap per source download
	refreshLockKey         = "shrike:leader:denylist_refresh"
	defaultRefreshInterval = 6 * time.Hour
)

var (
	cache       atomicMap
	rangeCache  atomicRangeList
	refreshOnce singleflight.Group
	httpClient  = &http.Client{Timeout: 30 * time.Second}
	ipRegex     = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?:/\d{1,2})?\b`)
)

type atomicMap struct {
	val atomic.Value
}

func (a *atomicMap) Load() map[string]struct{} {
	raw, ok := a.val.Load().(map[string]struct{})
	if !ok || raw == nil {
		empty := make(map[string]struct{})
		a.val.Store(empty)
		return empty
	}
	return raw
}

func (a *atomicMap) Store(m map[string]struct{}) {
	a.val.Store(m)
}

type atomicRangeList struct {
	val atomic.Value
}

func (a *atomicRangeList) Load() []domain.DenylistedRange {
	raw, ok := a.val.Load().([]domain.DenylistedRange)
	if !ok || raw == nil {
		empty := make([]domain.DenylistedRange, 0)
		a.val.Store(empty)
		return empty
	}
	return raw
}

func (a *atomicRangeList) Store(r []domain.DenylistedRange) {
	a.val.Store(r)
}

// RefreshOutcome summarizes one rebuild of the reporter denylist.
type RefreshOutcome struct {
	Sources          int
	TotalFromSources int
	NewIPs           int
	NewRanges        int
	TotalCachedIPs   int
	TotalRanges      int
}

func init() {
	cache.Store(make(map[string]struct{}))
	rangeCache.Store(nil)
}

// LoadCache hydrates the in-memory denylist from the database. Ranges are
// kept sorted by start address so membership checks can binary-search.
func LoadCache(ctx context.Context) error {
	ips, err := database.ListDenylistedIPs(ctx)
	if err != nil {
		return err
	}
	cache.Store(toSet(ips))
	ranges, err := database.ListDenylistedRanges(ctx)
	if err != nil {
		return err
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].StartIP == ranges[j].StartIP {
			return ranges[i].EndIP < ranges[j].EndIP
		}
		return ranges[i].StartIP < ranges[j].StartIP
	})
	rangeCache.Store(ranges)
	return nil
}

func toSet(ips []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		m[ip] = struct{}{}
	}
	return m
}

func copySet(m map[string]struct{}) map[string]struct{} {
	cp := make(map[string]struct{}, len(m))
	for k := range m {
		cp[k] = struct{}{}
	}
	return cp
}

// IsListed reports whether a reporter address is denylisted. Source lists are
// IPv4-only, so IPv4-mapped IPv6 addresses are unmapped first and any other
// IPv6 address never matches.
func IsListed(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if !addr.Is4() {
		return false
	}

	ip := addr.String()
	if _, found := cache.Load()[ip]; found {
		return true
	}
	return rangesContain(rangeCache.Load(), ip)
}

// StartRefreshRoutine rebuilds the denylist on the configured interval. Only
// the leader instance runs the loop; interval changes reschedule it live.
func StartRefreshRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	var intervalValue atomic.Value
	initial := config.GetDenylistRefreshInterval()
	if initial <= 0 {
		initial = defaultRefreshInterval
	}
	intervalValue.Store(initial)

	updateSignal := make(chan struct{}, 1)
	updates := config.DenylistRefreshIntervalUpdates()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case newInterval := <-updates:
				if newInterval <= 0 {
					newInterval = defaultRefreshInterval
				}
				intervalValue.Store(newInterval)
				select {
				case updateSignal <- struct{}{}:
				default:
				}
			}
		}
	}()

	err := support.RunWithLeader(ctx, refreshLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRefreshLoop(leaderCtx, &intervalValue, updateSignal)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Reporter denylist routine stopped", "error", err)
	}
}

// RunRefresh rebuilds the denylist outside the scheduled loop, e.g. right
// after an operator adds a source.
func RunRefresh(ctx context.Context, reason string) {
	refreshAndLog(ctx, reason)
}

func runRefreshLoop(ctx context.Context, intervalValue *atomic.Value, updateSignal <-chan struct{}) {
	current := intervalValue.Load().(time.Duration)
	if current <= 0 {
		current = defaultRefreshInterval
	}

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	refreshAndLog(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshAndLog(ctx, "scheduled")
		case <-updateSignal:
			newInterval := intervalValue.Load().(time.Duration)
			if newInterval <= 0 {
				newInterval = defaultRefreshInterval
			}
			if newInterval == current {
				continue
			}
			drainTicker(ticker)
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func refreshAndLog(ctx context.Context, reason string) {
	outcome, err := Refresh(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Reporter denylist refresh canceled", "reason", reason)
		} else {
			log.Error("Reporter denylist refresh failed", "reason", reason, "error", err)
		}
		return
	}
	if outcome == nil {
		return
	}

	log.Info("Reporter denylist refreshed",
		"reason", reason,
		"sources", outcome.Sources,
		"new_ips", outcome.NewIPs,
		"cached_ips", outcome.TotalCachedIPs,
		"ranges", outcome.TotalRanges,
	)
}

func drainTicker(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			return
		}
	}
}

// Refresh downloads every configured source, replaces the persisted denylist
// and rehydrates the cache. Concurrent callers share one run.
func Refresh(ctx context.Context) (*RefreshOutcome, error) {
	result, err, _ := refreshOnce.Do("refresh", func() (interface{}, error) {
		return doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	outcome, _ := result.(*RefreshOutcome)
	return outcome, nil
}

func doRefresh(ctx context.Context) (*RefreshOutcome, error) {
	cfg := config.GetConfig()
	sources := append([]string(nil), cfg.ReporterDenylist.Sources...)

	before := copySet(cache.Load())
	beforeRanges := rangeCache.Load()

	// No sources configured: the database rows are the whole truth, so just
	// rehydrate the cache from them.
	if len(sources) == 0 {
		if err := LoadCache(ctx); err != nil {
			return nil, err
		}
		return &RefreshOutcome{
			Sources:        0,
			NewIPs:         0,
			TotalCachedIPs: len(cache.Load()),
		}, nil
	}

	var (
		totalFromSources int
		totalRanges      int
		allIPs           []domain.DenylistedIP
		allRanges        []domain.DenylistedRange
	)

	// A dead source must not wipe what the others provide; only a canceled
	// context aborts the run.
	for _, src := range sources {
		ips, ranges, fetchErr := fetchSource(ctx, src)
		if fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) {
				return nil, fetchErr
			}
			log.Warn("Reporter denylist source unavailable", "source", src, "error", fetchErr)
			continue
		}

		totalFromSources += len(ips)
		totalRanges += len(ranges)

		for _, ip := range ips {
			allIPs = append(allIPs, domain.DenylistedIP{IP: ip, Source: src})
		}
		for _, r := range ranges {
			r.Source = src
			allRanges = append(allRanges, r)
		}
	}

	if _, _, err := database.ReplaceDenylistData(ctx, allIPs, allRanges); err != nil {
		return nil, err
	}

	if err := LoadCache(ctx); err != nil {
		return nil, err
	}

	current := cache.Load()
	currentRanges := rangeCache.Load()

	return &RefreshOutcome{
		Sources:          len(sources),
		TotalFromSources: totalFromSources,
		NewIPs:           len(addedAddresses(current, before)),
		NewRanges:        len(addedRanges(currentRanges, beforeRanges)),
		TotalCachedIPs:   len(current),
		TotalRanges:      len(currentRanges),
	}, nil
}

func addedAddresses(after, before map[string]struct{}) []string {
	if len(after) == 0 {
		return nil
	}
	added := make([]string, 0, len(after))
	for ip := range after {
		if _, found := before[ip]; found {
			continue
		}
		added = append(added, ip)
	}
	return added
}

func addedRanges(after, before []domain.DenylistedRange) []domain.DenylistedRange {
	if len(after) == 0 {
		return nil
	}

	type key struct {
		start uint32
		end   uint32
	}
	beforeSet := make(map[key]struct{}, len(before))
	for _, r := range before {
		beforeSet[key{start: r.StartIP, end: r.EndIP}] = struct{}{}
	}

	added := make([]domain.DenylistedRange, 0, len(after))
	for _, r := range after {
		k := key{start: r.StartIP, end: r.EndIP}
		if _, found := beforeSet[k]; found {
			continue
		}
		added = append(added, r)
	}

	return added
}

func fetchSource(ctx context.Context, source string) ([]string, []domain.DenylistedRange, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	content, err := io.ReadAll(limited)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	ips, ranges := extractEntries(content)
	return ips, ranges, nil
}

// extractEntries pulls addresses and CIDR blocks out of a source payload.
// Source formats differ (plain lists, csv, commented hosts files), so entries
// are regex-matched anywhere on a line rather than parsed per format.
func extractEntries(payload []byte) ([]string, []domain.DenylistedRange) {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	seen := make(map[string]struct{})
	var ranges []domain.DenylistedRange

	for scanner.Scan() {
		line := scanner.Bytes()
		matches := ipRegex.FindAll(line, -1)
		for _, match := range matches {
			cidrs, ips := classifyEntry(string(match))
			for _, ip := range ips {
				seen[ip] = struct{}{}
			}
			if len(cidrs) > 0 {
				ranges = append(ranges, cidrs...)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn("Reporter denylist payload truncated", "error", err)
	}

	out := make([]string, 0, len(seen))
	for ip := range seen {
		out = append(out, ip)
	}
	return out, ranges
}

func canonicalIPv4(raw string) string {
	parsed := net.ParseIP(raw)
	if parsed == nil {
		return ""
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ""
	}
	return v4.String()
}

// classifyEntry turns one matched token into either a range row with uint32
// bounds or a single canonical address.
func classifyEntry(raw string) ([]domain.DenylistedRange, []string) {
	if !strings.Contains(raw, "/") {
		ip := canonicalIPv4(raw)
		if ip == "" {
			return nil, nil
		}
		return nil, []string{ip}
	}

	_, ipnet, err := net.ParseCIDR(raw)
	if err != nil || ipnet == nil {
		return nil, nil
	}

	base := ipnet.IP.To4()
	if base == nil {
		return nil, nil
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 || ones < 0 || ones > 32 {
		return nil, nil
	}

	start := ipToUint32(base.Mask(ipnet.Mask))
	hostCount := uint32(1) << uint32(bits-ones)
	lastIP := start + hostCount - 1

	return []domain.DenylistedRange{{
		CIDR:    ipnet.String(),
		StartIP: start,
		EndIP:   lastIP,
	}}, nil
}

func ipToUint32(ip net.IP) uint32 {
	ip = ip.To4()
	if ip == nil {
		return 0
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// rangesContain binary-searches the sorted range list for the address.
func rangesContain(ranges []domain.DenylistedRange, ip string) bool {
	if len(ranges) == 0 {
		return false
	}

	u := ipToUint32(net.ParseIP(ip))

	lo, hi := 0, len(ranges)
	for lo < hi {
		mid := (lo + hi) / 2
		if u < ranges[mid].StartIP {
			hi = mid
			continue
		}
		if u > ranges[mid].EndIP {
			lo = mid + 1
			continue
		}
		return true
	}
	return false
}
