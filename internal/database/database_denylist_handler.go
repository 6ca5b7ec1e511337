package database

import (
	"context"
	"fmt"
	"net"

	"gorm.io/gorm"

	"shrike/internal/domain"
)

// ListDenylistedIPs returns every denylisted address as a plain string slice.
func ListDenylistedIPs(ctx context.Context) ([]string, error) {
	var ips []string
	err := DB.WithContext(ctx).
		Model(&domain.DenylistedIP{}).
		Pluck("ip", &ips).Error
	if err != nil {
		return nil, fmt.Errorf("database: list denylisted ips: %w", err)
	}

	return ips, nil
}

// ListDenylistedRanges loads the stored CIDRs and recomputes their numeric
// bounds, since only the network string is persisted.
func ListDenylistedRanges(ctx context.Context) ([]domain.DenylistedRange, error) {
	var ranges []domain.DenylistedRange
	err := DB.WithContext(ctx).Find(&ranges).Error
	if err != nil {
		return nil, fmt.Errorf("database: list denylisted ranges: %w", err)
	}

	out := ranges[:0]
	for _, r := range ranges {
		start, end, ok := cidrBounds(r.CIDR)
		if !ok {
			continue
		}
		r.StartIP = start
		r.EndIP = end
		out = append(out, r)
	}

	return out, nil
}

// ReplaceDenylistData swaps the stored denylist for the freshly fetched one in
// a single transaction.
func ReplaceDenylistData(ctx context.Context, ips []domain.DenylistedIP, ranges []domain.DenylistedRange) (int64, int64, error) {
	var ipCount, rangeCount int64

	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.DenylistedIP{}).Error; err != nil {
			return fmt.Errorf("clear denylisted ips: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&domain.DenylistedRange{}).Error; err != nil {
			return fmt.Errorf("clear denylisted ranges: %w", err)
		}

		if len(ips) > 0 {
			if err := tx.CreateInBatches(ips, 500).Error; err != nil {
				return fmt.Errorf("insert denylisted ips: %w", err)
			}
			ipCount = int64(len(ips))
		}
		if len(ranges) > 0 {
			if err := tx.CreateInBatches(ranges, 500).Error; err != nil {
				return fmt.Errorf("insert denylisted ranges: %w", err)
			}
			rangeCount = int64(len(ranges))
		}

		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("database: replace denylist data: %w", err)
	}

	return ipCount, rangeCount, nil
}

func cidrBounds(cidr string) (uint32, uint32, bool) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil || ipnet == nil {
		return 0, 0, false
	}

	base := ipnet.IP.To4()
	if base == nil {
		return 0, 0, false
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return 0, 0, false
	}

	start := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	hostCount := uint32(1) << uint32(bits-ones)

	return start, start + hostCount - 1, true
}
