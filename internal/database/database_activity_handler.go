package database

import (
	"net/netip"
	"sort"

	"shrike/internal/domain"
)

// Target type names used in activity logs.
const (
	TargetAbuseReport = "abuse_report"
	TargetCollection  = "collection"
	TargetBlock       = "block"
	TargetUser        = "user"
)

// RecordActivity writes a log entry for an action against a target, with the
// originating client address when one is known.
func RecordActivity(action int, userID *uint, targetType string, targetID uint64, addr netip.Addr) error {
	entry := domain.ActivityLog{
		Action:     action,
		UserID:     userID,
		TargetType: targetType,
		TargetID:   targetID,
	}

	if addr.IsValid() {
		var ipLog domain.IPLog
		ipLog.SetIP(addr)
		entry.IPLogs = []domain.IPLog{ipLog}
	}

	return DB.Create(&entry).Error
}

// KnownIPAddresses returns every distinct address seen in the activity of a
// single target, sorted. Listings get the same data in bulk through the
// aggregated column; this is the detail-view variant.
func KnownIPAddresses(targetType string, targetID uint64) ([]string, error) {
	var addresses []string
	err := DB.Table("ip_logs").
		Distinct("ip_logs.ip_address").
		Joins("JOIN activity_logs ON activity_logs.id = ip_logs.activity_log_id").
		Where("activity_logs.target_type = ? AND activity_logs.target_id = ?", targetType, targetID).
		Pluck("ip_logs.ip_address", &addresses).Error
	if err != nil {
		return nil, err
	}

	sort.Strings(addresses)
	return addresses, nil
}

// GetActivityForTarget returns the log entries for one target, newest first.
func GetActivityForTarget(targetType string, targetID uint64, limit int) ([]domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []domain.ActivityLog
	err := DB.Preload("IPLogs").Preload("User").
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}
