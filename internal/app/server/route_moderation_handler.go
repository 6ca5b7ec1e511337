package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"shrike/internal/api/dto"
	"shrike/internal/auth"
	"shrike/internal/database"
	"shrike/internal/domain"
)

func listModerationJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := parsePositiveInt(query.Get("page"), 1)
	pageSize := parsePositiveInt(query.Get("page_size"), 0)

	result, err := database.GetModerationJobPage(page, pageSize, query.Get("q"))
	if err != nil {
		log.Error("Failed to list moderation jobs", "error", err)
		writeError(w, "Failed to load moderation jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func getModerationJob(w http.ResponseWriter, r *http.Request) {
	job, ok := moderationJobFromPath(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, dto.ModerationJobInfo{
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

func decideModerationJob(w http.ResponseWriter, r *http.Request) {
	job, ok := moderationJobFromPath(w, r)
	if !ok {
		return
	}

	var request dto.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if request.Action == domain.DecisionNone {
		writeError(w, "A decision action is required", http.StatusBadRequest)
		return
	}

	var actorID *uint
	if userID, err := auth.GetUserIDFromRequest(r); err == nil {
		actorID = &userID
	}

	if err := database.DecideModerationJob(&job, request.Action, actorID, requestAddr(r)); err != nil {
		if errors.Is(err, database.ErrJobAlreadyDecided) {
			writeError(w, "Job already decided", http.StatusConflict)
			return
		}
		log.Error("Failed to decide moderation job", "job", job.JobID, "error", err)
		writeError(w, "Failed to record decision", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":         job.JobID,
		"decision":       request.Action,
		"decision_label": domain.DecisionLabel(request.Action),
	})
}

// appealModerationJob lets a reporter contest a decided job. The appeal opens
// (or reuses) a follow-up job and stamps the appellant report, so no
// authentication is needed beyond knowing the report.
func appealModerationJob(w http.ResponseWriter, r *http.Request) {
	job, ok := moderationJobFromPath(w, r)
	if !ok {
		return
	}

	var request dto.AppealRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.ReportID == 0 {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	appealJob, err := database.AppealDecision(&job, request.ReportID, requestAddr(r))
	if err != nil {
		switch {
		case errors.Is(err, database.ErrJobNotDecided):
			writeError(w, "Job has no decision to appeal", http.StatusConflict)
		case errors.Is(err, database.ErrReportNotOnJob):
			writeError(w, "Report does not belong to this job", http.StatusBadRequest)
		case errors.Is(err, database.ErrAlreadyAppealed):
			writeError(w, "Report was already appealed", http.StatusConflict)
		default:
			log.Error("Failed to appeal moderation job", "job", job.JobID, "error", err)
			writeError(w, "Failed to record appeal", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"appeal_job_id": appealJob.JobID})
}

func moderationJobFromPath(w http.ResponseWriter, r *http.Request) (domain.ModerationJob, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid job id", http.StatusBadRequest)
		return domain.ModerationJob{}, false
	}

	job, err := database.GetModerationJobFromId(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, "Job not found", http.StatusNotFound)
		} else {
			writeError(w, "Failed to load job", http.StatusInternalServerError)
		}
		return domain.ModerationJob{}, false
	}

	return job, true
}
