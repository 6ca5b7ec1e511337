package adminsearch

import (
	"net/netip"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// ActivityIPsColumn is the alias of the aggregated known-address column
// added to IP-enabled listings.
const ActivityIPsColumn = "activity_ips"

// withRelatedIPs annotates every row of an IP-enabled listing with the
// de-duplicated set of addresses its activity produced, and, when the query
// is IP-classified, filters on a second copy of the join so the filter does
// not constrain the aggregation. The GROUP BY guarantees one row per parent,
// so the duplicates flag on this path is always false.
func withRelatedIPs(query *gorm.DB, cfg ListConfig, cls Classification) (*gorm.DB, bool) {
	table := cfg.Table
	query = query.
		Joins("LEFT JOIN activity_logs ON activity_logs.target_type = ? AND activity_logs.target_id = "+table+".id", cfg.IPSearch.TargetType).
		Joins("LEFT JOIN ip_logs ON ip_logs.activity_log_id = activity_logs.id").
		Group(table + ".id").
		Select(table + ".*, " + concatDistinct(query, "ip_logs.ip_address") + " AS " + ActivityIPsColumn)

	if cls.Kind != KindIP {
		return query, false
	}

	cond, args := ipCondition("ip_logs_filtered.ip_address_binary", cls)
	query = query.
		Joins("JOIN activity_logs AS activity_logs_filtered"+
			" ON activity_logs_filtered.target_type = ?"+
			" AND activity_logs_filtered.target_id = "+table+".id"+
			" AND activity_logs_filtered.action IN ?", cfg.IPSearch.TargetType, cfg.IPSearch.Actions).
		Joins("JOIN ip_logs AS ip_logs_filtered"+
			" ON ip_logs_filtered.activity_log_id = activity_logs_filtered.id"+
			" AND ("+cond+")", args...)
	return query, false
}

// ipCondition builds the address predicate: a literal in-set for single
// addresses plus one inclusive range per network.
func ipCondition(column string, cls Classification) (string, []any) {
	var (
		parts []string
		args  []any
	)
	if len(cls.IPs) > 0 {
		literals := make([][]byte, len(cls.IPs))
		for i, addr := range cls.IPs {
			b16 := addr.As16()
			literals[i] = b16[:]
		}
		parts = append(parts, column+" IN ?")
		args = append(args, literals)
	}
	for _, network := range cls.Networks {
		first := network.Masked().Addr().As16()
		last := lastAddr(network).As16()
		parts = append(parts, column+" BETWEEN ? AND ?")
		args = append(args, first[:], last[:])
	}
	return strings.Join(parts, " OR "), args
}

// lastAddr returns the highest address contained in the prefix.
func lastAddr(network netip.Prefix) netip.Addr {
	addr := network.Masked().Addr()
	bitLen := 128
	if addr.Is4() {
		bitLen = 32
	}
	end := addrToUint128(addr).blockEnd(bitLen - network.Bits())
	return uint128ToAddr(end, addr.Is4())
}

// SplitActivityIPs turns the aggregated column value into a sorted, unique
// address list for display. The aggregation already de-duplicates; sorting
// happens here instead of in SQL so the expression stays portable across
// dialects.
func SplitActivityIPs(aggregated string) []string {
	if aggregated == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var ips []string
	for _, ip := range strings.Split(aggregated, ",") {
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; !dup {
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}
	sort.Strings(ips)
	return ips
}

func concatDistinct(db *gorm.DB, column string) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return "GROUP_CONCAT(DISTINCT " + column + ")"
	}
	return "STRING_AGG(DISTINCT " + column + ", ',')"
}
