package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/auth"
	"shrike/internal/database"
	reportqueue "shrike/internal/jobs/queue/reports"
)

type abuseReportSubmission struct {
	GUID          string `json:"guid"`
	Message       string `json:"message"`
	Reason        string `json:"reason"`
	ReporterEmail string `json:"reporter_email"`
	ReporterName  string `json:"reporter_name"`
}

// submitAbuseReport accepts a report from anyone and buffers it in the intake
// queue. Authenticated reporters get linked to their account.
func submitAbuseReport(w http.ResponseWriter, r *http.Request) {
	var submission abuseReportSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	submission.GUID = strings.TrimSpace(submission.GUID)
	if submission.GUID == "" {
		writeError(w, "guid is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(submission.Message) == "" {
		writeError(w, "message is required", http.StatusBadRequest)
		return
	}

	queued := reportqueue.QueuedReport{
		GUID:          submission.GUID,
		Message:       submission.Message,
		Reason:        submission.Reason,
		ReporterEmail: strings.TrimSpace(submission.ReporterEmail),
		ReporterName:  strings.TrimSpace(submission.ReporterName),
		SubmittedAt:   time.Now(),
	}

	if addr := requestAddr(r); addr.IsValid() {
		queued.IPAddress = addr.String()
	}
	if userID, err := auth.GetUserIDFromRequest(r); err == nil {
		queued.ReporterID = &userID
	}

	if err := reportqueue.PublicReportQueue.Enqueue(queued); err != nil {
		log.Error("Failed to enqueue abuse report", "guid", queued.GUID, "error", err)
		writeError(w, "Failed to accept report", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func listAbuseReports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parsePositiveInt(query.Get("page"), 1)
	pageSize := parsePositiveInt(query.Get("page_size"), 0)
	search := query.Get("q")
	dateRange := adminsearch.ParseDateRange(query.Get("created_from"), query.Get("created_to"))

	result, err := database.GetAbuseReportPage(page, pageSize, search, dateRange)
	if err != nil {
		log.Error("Failed to list abuse reports", "error", err)
		writeError(w, "Failed to load reports", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func getAbuseReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid report id", http.StatusBadRequest)
		return
	}

	report, err := database.GetAbuseReportFromId(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, "Report not found", http.StatusNotFound)
		} else {
			writeError(w, "Failed to load report", http.StatusInternalServerError)
		}
		return
	}

	info := dto.AbuseReportInfo{
		Id:            report.ID,
		GUID:          report.GUID,
		Message:       report.Message,
		Reason:        report.Reason,
		ReporterEmail: report.ReporterEmail,
		ReporterName:  report.ReporterName,
		CreatedAt:     report.CreatedAt,
		AppealDate:    report.ReporterAppealDate,
	}
	if report.Reporter != nil {
		info.ReporterEmail = report.Reporter.Email
		info.ReporterName = report.Reporter.Username
	}

	writeJSON(w, http.StatusOK, info)
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
