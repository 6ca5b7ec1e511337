package dto

import "time"

type ModerationJobInfo struct {
	Id             uint64     `json:"id"`
	JobID          string     `json:"job_id"`
	TargetGUID     string     `json:"target_guid"`
	DecisionAction uint8      `json:"decision_action"`
	DecisionLabel  string     `json:"decision_label"`
	DecisionDate   *time.Time `json:"decision_date,omitempty"`
	ReportCount    int        `json:"report_count"`
	AppealJobID    *uint64    `json:"appeal_job_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ModerationJobPage struct {
	Jobs     []ModerationJobInfo `json:"jobs"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

type ModerationStats struct {
	OpenJobs        int64 `json:"open_jobs"`
	DecidedJobs     int64 `json:"decided_jobs"`
	TotalReports    int64 `json:"total_reports"`
	ReportsLastWeek int64 `json:"reports_last_week"`
}

type DecisionRequest struct {
	Action uint8 `json:"action"`
}

type AppealRequest struct {
	ReportID uint64 `json:"report_id"`
}

type BlockUpsert struct {
	GUID       string `json:"guid"`
	URL        string `json:"url"`
	Reason     string `json:"reason"`
	MinVersion string `json:"min_version"`
	MaxVersion string `json:"max_version"`
}

type BlockInfo struct {
	Id            uint64    `json:"id"`
	GUID          string    `json:"guid"`
	URL           string    `json:"url"`
	Reason        string    `json:"reason"`
	MinVersion    string    `json:"min_version"`
	MaxVersion    string    `json:"max_version"`
	UpdatedByName string    `json:"updated_by,omitempty"`
	DailyUsers    *int64    `json:"average_daily_users,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type BlockPage struct {
	Blocks   []BlockInfo `json:"blocks"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}
