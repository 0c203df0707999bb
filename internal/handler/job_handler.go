package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/dandantas/assessment-orchestrator/internal/service"
	"github.com/dandantas/assessment-orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EstimatedProcessingTime is reported to submitters
const EstimatedProcessingTime = "30-120 seconds"

// JobHandler handles assessment job submission and polling
type JobHandler struct {
	jobs    *service.JobService
	baseURL string
	now     func() time.Time
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs *service.JobService, baseURL string) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

// SubmitRequest is the optional body of a submission
type SubmitRequest struct {
	Conditions []string `json:"conditions" validate:"omitempty,max=20,dive,required,min=1,max=100"`
}

// SubmitResponse acknowledges an accepted submission
type SubmitResponse struct {
	Success                 bool   `json:"success"`
	Message                 string `json:"message"`
	JobID                   string `json:"jobId"`
	InstanceID              string `json:"instanceId"`
	SessionID               string `json:"sessionId"`
	StatusURL               string `json:"statusUrl"`
	ResultURL               string `json:"resultUrl"`
	EstimatedProcessingTime string `json:"estimatedProcessingTime"`
}

// JobListResponse lists the jobs of a session
type JobListResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"sessionId"`
	Total     int             `json:"total"`
	Jobs      []model.JobView `json:"jobs"`
}

// Submit handles POST /sessions/{sessionId}/extended-risk-assessment
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if strings.TrimSpace(sessionID) == "" {
		writeError(w, r, http.StatusBadRequest, "Session ID is required")
		return
	}

	var req SubmitRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	sub, err := h.jobs.Submit(r.Context(), sessionID, req.Conditions)
	if err != nil {
		h.writeSubmitError(w, r, err, sessionID)
		return
	}

	writeJSON(w, r, http.StatusAccepted, h.submitResponse(sub, "Extended risk assessment started"))
}

// Retry handles POST /jobs/{jobId}/retry
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	sub, err := h.jobs.Retry(r.Context(), jobID)
	if err != nil {
		h.writeSubmitError(w, r, err, "")
		return
	}

	writeJSON(w, r, http.StatusAccepted, h.submitResponse(sub, "Extended risk assessment resubmitted"))
}

// Get handles GET /jobs/{jobId}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, service.ErrJobNotFound) {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("Job %s not found", jobID))
		return
	}
	if err != nil {
		middleware.Logger(r.Context()).Error("Failed to get job", "job_id", jobID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to get job status")
		return
	}

	writeJSON(w, r, http.StatusOK, job.ToView(h.now()))
}

// ListBySession handles GET /sessions/{sessionId}/jobs
func (h *JobHandler) ListBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	jobs, err := h.jobs.ListBySession(r.Context(), sessionID)
	if err != nil {
		middleware.Logger(r.Context()).Error("Failed to list jobs", "session_id", sessionID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	now := h.now()
	views := make([]model.JobView, len(jobs))
	for i := range jobs {
		views[i] = jobs[i].ToView(now)
	}

	writeJSON(w, r, http.StatusOK, JobListResponse{
		Success:   true,
		SessionID: sessionID,
		Total:     len(views),
		Jobs:      views,
	})
}

// jobID extracts the job id path parameter, rejecting malformed ids
func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := chi.URLParam(r, "jobId")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid job ID format")
		return "", false
	}
	return jobID, true
}

func (h *JobHandler) submitResponse(sub *service.Submission, message string) SubmitResponse {
	return SubmitResponse{
		Success:                 true,
		Message:                 message,
		JobID:                   sub.JobID,
		InstanceID:              sub.InstanceID,
		SessionID:               sub.SessionID,
		StatusURL:               h.baseURL + "/jobs/" + sub.JobID,
		ResultURL:               h.baseURL + "/sessions/" + sub.SessionID + "/extended-risk-assessment",
		EstimatedProcessingTime: EstimatedProcessingTime,
	}
}

func (h *JobHandler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error, sessionID string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "Session not found")
	case errors.Is(err, service.ErrJobNotFound):
		writeError(w, r, http.StatusNotFound, "Job not found")
	case errors.Is(err, service.ErrJobNotRetryable):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		middleware.Logger(r.Context()).Error("Failed to submit extended assessment",
			"session_id", sessionID,
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "Failed to start extended risk assessment")
	}
}
