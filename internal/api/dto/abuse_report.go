package dto

import "time"

// AbuseReportRow is the raw scan target for the report list query. KnownIPs
// carries the aggregated address column when the query includes one.
type AbuseReportRow struct {
	Id            uint64     `json:"id" gorm:"column:id"`
	GUID          string     `json:"guid" gorm:"column:guid"`
	Message       string     `json:"message" gorm:"column:message"`
	Reason        uint8      `json:"reason" gorm:"column:reason"`
	ReporterEmail string     `json:"reporter_email" gorm:"column:reporter_email"`
	ReporterName  string     `json:"reporter_name" gorm:"column:reporter_name"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at"`
	AppealDate    *time.Time `json:"reporter_appeal_date,omitempty" gorm:"column:reporter_appeal_date"`
	KnownIPs      string     `json:"-" gorm:"column:activity_ips"`
}

// AbuseReportInfo is the list entry returned to the admin UI.
type AbuseReportInfo struct {
	Id               uint64     `json:"id"`
	GUID             string     `json:"guid"`
	Message          string     `json:"message"`
	Reason           uint8      `json:"reason"`
	ReporterEmail    string     `json:"reporter_email"`
	ReporterName     string     `json:"reporter_name"`
	CreatedAt        time.Time  `json:"created_at"`
	AppealDate       *time.Time `json:"reporter_appeal_date,omitempty"`
	KnownIPAddresses []string   `json:"known_ip_addresses"`
}

type AbuseReportPage struct {
	Reports  []AbuseReportInfo `json:"reports"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
