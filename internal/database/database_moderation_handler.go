package database

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/config"
	"shrike/internal/domain"

	"github.com/google/uuid"
)

const (
	jobsPerPage    = 40
	maxJobsPerPage = 100
)

var (
	ErrJobAlreadyDecided = errors.New("moderation job already decided")
	ErrJobNotDecided     = errors.New("moderation job has no decision to appeal")
	ErrReportNotOnJob    = errors.New("report does not belong to this job")
	ErrAlreadyAppealed   = errors.New("report was already appealed")
)

// ModerationJobListConfig describes the moderation job admin list. Job and
// target identifiers only match exactly, free text would flood the list.
func ModerationJobListConfig() adminsearch.ListConfig {
	return adminsearch.ListConfig{
		Table:            "moderation_jobs",
		NumericThreshold: config.NumericSearchThreshold(),
		SearchFields: []string{
			"=job_id",
			"=target_guid",
			"report.message",
			"report.reporter_email",
		},
		Relations: map[string]adminsearch.RelationSpec{
			"report": {
				Join:  "LEFT JOIN abuse_reports AS report ON report.moderation_job_id = moderation_jobs.id",
				Multi: true,
			},
		},
	}
}

// OpenModerationJob creates a job for a target and attaches the reports that
// triggered it.
func OpenModerationJob(targetGUID string, reportIDs []uint64) (domain.ModerationJob, error) {
	job := domain.ModerationJob{
		JobID:      uuid.NewString(),
		TargetGUID: targetGUID,
	}

	if err := DB.Create(&job).Error; err != nil {
		return domain.ModerationJob{}, fmt.Errorf("database: open moderation job: %w", err)
	}

	if len(reportIDs) > 0 {
		err := DB.Model(&domain.AbuseReport{}).
			Where("id IN ? AND moderation_job_id IS NULL", reportIDs).
			Update("moderation_job_id", job.ID).Error
		if err != nil {
			return domain.ModerationJob{}, fmt.Errorf("database: attach reports to job: %w", err)
		}
	}

	return job, nil
}

func GetModerationJobFromId(id uint64) (domain.ModerationJob, error) {
	var job domain.ModerationJob
	err := DB.Preload("Reports").Preload("Appellants").Preload("AppealJob").First(&job, id).Error
	return job, err
}

// DecideModerationJob records the final decision on a job and logs the
// resolution against every attached report. Decisions are immutable, an
// appeal opens a fresh job instead.
func DecideModerationJob(job *domain.ModerationJob, action uint8, actorID *uint, addr netip.Addr) error {
	if job.Decided() {
		return ErrJobAlreadyDecided
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"decision_action": action,
		"decision_date":   now,
	}
	if err := DB.Model(job).Updates(updates).Error; err != nil {
		return fmt.Errorf("database: decide moderation job: %w", err)
	}
	job.DecisionAction = action
	job.DecisionDate = &now

	var reportIDs []uint64
	if err := DB.Model(&domain.AbuseReport{}).
		Where("moderation_job_id = ?", job.ID).
		Pluck("id", &reportIDs).Error; err != nil {
		return err
	}

	for _, reportID := range reportIDs {
		if err := RecordActivity(domain.ActionReportResolved, actorID, TargetAbuseReport, reportID, addr); err != nil {
			return err
		}
	}

	return nil
}

// AppealDecision opens a follow-up job for a decided job on behalf of one of
// its reporters. The appellant report is stamped and linked to the new job.
func AppealDecision(job *domain.ModerationJob, reportID uint64, addr netip.Addr) (domain.ModerationJob, error) {
	if !job.Decided() {
		return domain.ModerationJob{}, ErrJobNotDecided
	}
	if job.AppealJobID != nil {
		appealJob, err := GetModerationJobFromId(*job.AppealJobID)
		if err != nil {
			return domain.ModerationJob{}, err
		}
		return appealJob, linkAppellant(&appealJob, job.ID, reportID, addr)
	}

	appealJob := domain.ModerationJob{
		JobID:      uuid.NewString(),
		TargetGUID: job.TargetGUID,
	}
	if err := DB.Create(&appealJob).Error; err != nil {
		return domain.ModerationJob{}, fmt.Errorf("database: open appeal job: %w", err)
	}

	if err := DB.Model(job).Update("appeal_job_id", appealJob.ID).Error; err != nil {
		return domain.ModerationJob{}, fmt.Errorf("database: link appeal job: %w", err)
	}
	job.AppealJobID = &appealJob.ID

	return appealJob, linkAppellant(&appealJob, job.ID, reportID, addr)
}

func linkAppellant(appealJob *domain.ModerationJob, decidedJobID, reportID uint64, addr netip.Addr) error {
	var report domain.AbuseReport
	if err := DB.First(&report, reportID).Error; err != nil {
		return err
	}
	if report.ModerationJobID == nil || *report.ModerationJobID != decidedJobID {
		return ErrReportNotOnJob
	}
	if report.ReporterAppealDate != nil {
		return ErrAlreadyAppealed
	}

	return MarkReportAppealed(&report, appealJob, addr)
}

// GetModerationStats aggregates the queue counters shown on the moderation
// dashboard.
func GetModerationStats() (dto.ModerationStats, error) {
	var stats dto.ModerationStats

	err := DB.Model(&domain.ModerationJob{}).
		Where("decision_date IS NULL").
		Count(&stats.OpenJobs).Error
	if err != nil {
		return dto.ModerationStats{}, fmt.Errorf("database: count open jobs: %w", err)
	}

	err = DB.Model(&domain.ModerationJob{}).
		Where("decision_date IS NOT NULL").
		Count(&stats.DecidedJobs).Error
	if err != nil {
		return dto.ModerationStats{}, fmt.Errorf("database: count decided jobs: %w", err)
	}

	err = DB.Model(&domain.AbuseReport{}).Count(&stats.TotalReports).Error
	if err != nil {
		return dto.ModerationStats{}, fmt.Errorf("database: count reports: %w", err)
	}

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	err = DB.Model(&domain.AbuseReport{}).
		Where("created_at >= ?", weekAgo).
		Count(&stats.ReportsLastWeek).Error
	if err != nil {
		return dto.ModerationStats{}, fmt.Errorf("database: count recent reports: %w", err)
	}

	return stats, nil
}

// GetModerationJobPage returns one page of the job admin list, undecided
// jobs first.
func GetModerationJobPage(page, pageSize int, search string) (dto.ModerationJobPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxJobsPerPage {
		pageSize = jobsPerPage
	}

	cfg := ModerationJobListConfig()
	cls := adminsearch.Classify(search, cfg.NumericThreshold)

	query := DB.Model(&domain.ModerationJob{})
	query, duplicates := adminsearch.Apply(query, cfg, cls)
	if duplicates {
		query = query.Distinct("moderation_jobs.*")
	}

	var total int64
	if err := DB.Table("(?) AS job_rows", query).Count(&total).Error; err != nil {
		return dto.ModerationJobPage{}, fmt.Errorf("database: count moderation jobs: %w", err)
	}

	var jobs []domain.ModerationJob
	err := query.
		Preload("Reports").
		Order("moderation_jobs.decision_date IS NOT NULL, moderation_jobs.created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	if err != nil {
		return dto.ModerationJobPage{}, fmt.Errorf("database: list moderation jobs: %w", err)
	}

	infos := make([]dto.ModerationJobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, dto.ModerationJobInfo{
			Id:             job.ID,
			JobID:          job.JobID,
			TargetGUID:     job.TargetGUID,
			DecisionAction: job.DecisionAction,
			DecisionLabel:  domain.DecisionLabel(job.DecisionAction),
			DecisionDate:   job.DecisionDate,
			ReportCount:    len(job.Reports),
			AppealJobID:    job.AppealJobID,
			CreatedAt:      job.CreatedAt,
		})
	}

	return dto.ModerationJobPage{
		Jobs:     infos,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
