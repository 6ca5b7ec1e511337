package database

import (
	"fmt"
	"net/netip"
	"time"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/config"
	"shrike/internal/domain"
)

const (
	reportsPerPage    = 40
	maxReportsPerPage = 100
)

// AbuseReportListConfig describes how the report admin list searches. IP
// searches only match addresses logged for report submissions and appeals,
// not unrelated activity that happens to share a target.
func AbuseReportListConfig() adminsearch.ListConfig {
	return adminsearch.ListConfig{
		Table:            "abuse_reports",
		NumericThreshold: config.NumericSearchThreshold(),
		SearchFields: []string{
			"=guid",
			"message",
			"reporter_name",
			"reporter.email",
			"reporter.username",
		},
		Relations: map[string]adminsearch.RelationSpec{
			"reporter": {Join: "LEFT JOIN users AS reporter ON reporter.id = abuse_reports.reporter_id"},
		},
		IPSearch: &adminsearch.IPSearchConfig{
			TargetType: TargetAbuseReport,
			Actions:    []int{domain.ActionReportSubmitted, domain.ActionReportAppealed},
		},
	}
}

// CreateAbuseReport stores a report and logs the submission with the
// reporter's address.
func CreateAbuseReport(report *domain.AbuseReport, addr netip.Addr) error {
	if err := DB.Create(report).Error; err != nil {
		return fmt.Errorf("database: create abuse report: %w", err)
	}

	return RecordActivity(domain.ActionReportSubmitted, report.ReporterID, TargetAbuseReport, report.ID, addr)
}

func GetAbuseReportFromId(id uint64) (domain.AbuseReport, error) {
	var report domain.AbuseReport
	err := DB.Preload("Reporter").Preload("ModerationJob").First(&report, id).Error
	return report, err
}

// GetAbuseReportPage returns one page of the report admin list. The search
// string goes through term classification, so it may be free text, a bulk
// id set or addresses and networks.
func GetAbuseReportPage(page, pageSize int, search string, dateRange adminsearch.DateRange) (dto.AbuseReportPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxReportsPerPage {
		pageSize = reportsPerPage
	}

	cfg := AbuseReportListConfig()
	cls := adminsearch.Classify(search, cfg.NumericThreshold)

	query := DB.Model(&domain.AbuseReport{})
	query, _ = adminsearch.Apply(query, cfg, cls)
	query = adminsearch.ApplyDateRange(query, "abuse_reports.created_at", dateRange)

	// The grouped annotation makes plain Count misbehave, so the total is
	// counted over the assembled query as a subquery.
	var total int64
	if err := DB.Table("(?) AS report_rows", query).Count(&total).Error; err != nil {
		return dto.AbuseReportPage{}, fmt.Errorf("database: count abuse reports: %w", err)
	}

	rows := make([]dto.AbuseReportRow, 0, pageSize)
	err := query.
		Order("abuse_reports.created_at DESC, abuse_reports.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return dto.AbuseReportPage{}, fmt.Errorf("database: list abuse reports: %w", err)
	}

	return dto.AbuseReportPage{
		Reports:  abuseReportRowsToDTO(rows),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func abuseReportRowsToDTO(rows []dto.AbuseReportRow) []dto.AbuseReportInfo {
	results := make([]dto.AbuseReportInfo, 0, len(rows))
	for _, row := range rows {
		results = append(results, dto.AbuseReportInfo{
			Id:               row.Id,
			GUID:             row.GUID,
			Message:          row.Message,
			Reason:           row.Reason,
			ReporterEmail:    row.ReporterEmail,
			ReporterName:     row.ReporterName,
			CreatedAt:        row.CreatedAt,
			AppealDate:       row.AppealDate,
			KnownIPAddresses: adminsearch.SplitActivityIPs(row.KnownIPs),
		})
	}

	return results
}

// OpenReportIDs returns the ids of reports against a guid that no moderation
// job has picked up yet, oldest first.
func OpenReportIDs(guid string) ([]uint64, error) {
	var ids []uint64
	err := DB.Model(&domain.AbuseReport{}).
		Where("guid = ? AND moderation_job_id IS NULL", guid).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("database: open report ids: %w", err)
	}

	return ids, nil
}

// MarkReportAppealed stamps the reporter appeal date and links the report to
// the job opened for the appeal.
func MarkReportAppealed(report *domain.AbuseReport, appealJob *domain.ModerationJob, addr netip.Addr) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"reporter_appeal_date": now,
		"appellant_job_id":     appealJob.ID,
	}
	if err := DB.Model(report).Updates(updates).Error; err != nil {
		return fmt.Errorf("database: mark report appealed: %w", err)
	}

	report.ReporterAppealDate = &now
	report.AppellantJobID = &appealJob.ID

	return RecordActivity(domain.ActionReportAppealed, report.ReporterID, TargetAbuseReport, report.ID, addr)
}
