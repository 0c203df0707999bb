package model

import (
	"time"
)

// JobStatus represents the status of an extended assessment job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DefaultMaxRetries is the resubmission budget of a new job
const DefaultMaxRetries = 3

// IsTerminal reports whether no further transitions are allowed from s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// rank orders statuses along the job lifecycle
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// JobRecord is the externally visible progress of one assessment job
type JobRecord struct {
	JobID              string            `json:"jobId" bson:"job_id"`
	SessionID          string            `json:"sessionId" bson:"session_id"`
	InstanceID         string            `json:"instanceId,omitempty" bson:"instance_id,omitempty"`
	Status             JobStatus         `json:"status" bson:"status"`
	ProgressPercentage int               `json:"progressPercentage" bson:"progress_percentage"`
	CurrentStep        string            `json:"currentStep,omitempty" bson:"current_step,omitempty"`
	CreatedAt          time.Time         `json:"createdAt" bson:"created_at"`
	StartedAt          *time.Time        `json:"startedAt,omitempty" bson:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty" bson:"completed_at,omitempty"`
	ProcessingTimeMs   *int64            `json:"processingTimeMs,omitempty" bson:"processing_time_ms,omitempty"`
	Result             *AssessmentResult `json:"result,omitempty" bson:"result,omitempty"`
	ErrorMessage       string            `json:"errorMessage,omitempty" bson:"error_message,omitempty"`
	ErrorDetails       string            `json:"errorDetails,omitempty" bson:"error_details,omitempty"`
	ModelUsed          string            `json:"modelUsed,omitempty" bson:"model_used,omitempty"`
	RetryCount         int               `json:"retryCount" bson:"retry_count"`
	MaxRetries         int               `json:"maxRetries" bson:"max_retries"`
	PreviousJobID      string            `json:"previousJobId,omitempty" bson:"previous_job_id,omitempty"`
	Conditions         []string          `json:"conditions,omitempty" bson:"conditions,omitempty"`
}

// NewJobRecord builds a queued record for a session
func NewJobRecord(jobID, sessionID string, now time.Time) *JobRecord {
	return &JobRecord{
		JobID:       jobID,
		SessionID:   sessionID,
		Status:      JobStatusQueued,
		CurrentStep: "Job created, waiting to start processing...",
		CreatedAt:   now,
		MaxRetries:  DefaultMaxRetries,
	}
}

// IsCompleted reports whether the job reached a terminal state
func (j *JobRecord) IsCompleted() bool {
	return j.Status.IsTerminal()
}

// IsProcessing reports whether the job is in flight
func (j *JobRecord) IsProcessing() bool {
	return j.Status == JobStatusProcessing
}

// CanRetry reports whether a caller may resubmit this job
func (j *JobRecord) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ElapsedTime returns the time since creation, frozen at completion
func (j *JobRecord) ElapsedTime(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}

// ApplyStatus applies a progress update in place and reports whether the
// record changed. Terminal records and regressions are ignored.
func (j *JobRecord) ApplyStatus(status JobStatus, progress int, currentStep string, now time.Time) bool {
	if j.Status.IsTerminal() || status.IsTerminal() {
		return false
	}
	if status.rank() < j.Status.rank() {
		return false
	}

	progress = ClampProgress(progress)
	changed := false

	if status != j.Status {
		j.Status = status
		changed = true
	}
	if progress > j.ProgressPercentage {
		j.ProgressPercentage = progress
		changed = true
	}
	if currentStep != "" && currentStep != j.CurrentStep {
		j.CurrentStep = currentStep
		changed = true
	}
	if status == JobStatusProcessing && j.StartedAt == nil {
		started := now
		j.StartedAt = &started
		changed = true
	}

	return changed
}

// ApplyCompletion transitions the record to completed. It returns false when
// the record already failed.
func (j *JobRecord) ApplyCompletion(result *AssessmentResult, processingTimeMs int64, modelUsed string, now time.Time) bool {
	if j.Status == JobStatusFailed {
		return false
	}

	j.Status = JobStatusCompleted
	j.ProgressPercentage = 100
	j.CurrentStep = "Assessment completed successfully"
	j.Result = result
	j.ProcessingTimeMs = &processingTimeMs
	j.ModelUsed = modelUsed
	j.ErrorMessage = ""
	j.ErrorDetails = ""
	if j.CompletedAt == nil {
		completed := now
		j.CompletedAt = &completed
	}
	return true
}

// ApplyFailure transitions the record to failed. It returns false when the
// record already completed.
func (j *JobRecord) ApplyFailure(errorMessage, errorDetails string, now time.Time) bool {
	if j.Status == JobStatusCompleted {
		return false
	}

	j.Status = JobStatusFailed
	j.CurrentStep = "Assessment failed"
	j.ErrorMessage = errorMessage
	j.ErrorDetails = errorDetails
	j.Result = nil
	if j.CompletedAt == nil {
		completed := now
		j.CompletedAt = &completed
	}
	start := j.CreatedAt
	if j.StartedAt != nil {
		start = *j.StartedAt
	}
	elapsed := j.CompletedAt.Sub(start).Milliseconds()
	j.ProcessingTimeMs = &elapsed
	return true
}

// ClampProgress bounds a percentage to 0..100
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// JobView is the polling projection of a JobRecord
type JobView struct {
	JobID              string            `json:"jobId"`
	SessionID          string            `json:"sessionId"`
	InstanceID         string            `json:"instanceId,omitempty"`
	Status             JobStatus         `json:"status"`
	ProgressPercentage int               `json:"progressPercentage"`
	CurrentStep        string            `json:"currentStep,omitempty"`
	CreatedAt          string            `json:"createdAt"`
	StartedAt          string            `json:"startedAt,omitempty"`
	CompletedAt        string            `json:"completedAt,omitempty"`
	ProcessingTimeMs   *int64            `json:"processingTimeMs,omitempty"`
	ElapsedTimeMs      int64             `json:"elapsedTimeMs"`
	IsCompleted        bool              `json:"isCompleted"`
	IsProcessing       bool              `json:"isProcessing"`
	ErrorMessage       string            `json:"errorMessage,omitempty"`
	ErrorDetails       string            `json:"errorDetails,omitempty"`
	Result             *AssessmentResult `json:"result,omitempty"`
	ModelUsed          string            `json:"modelUsed,omitempty"`
	RetryCount         int               `json:"retryCount"`
	CanRetry           bool              `json:"canRetry"`
	PreviousJobID      string            `json:"previousJobId,omitempty"`
}

// ToView converts JobRecord to JobView
func (j *JobRecord) ToView(now time.Time) JobView {
	view := JobView{
		JobID:              j.JobID,
		SessionID:          j.SessionID,
		InstanceID:         j.InstanceID,
		Status:             j.Status,
		ProgressPercentage: j.ProgressPercentage,
		CurrentStep:        j.CurrentStep,
		CreatedAt:          j.CreatedAt.UTC().Format(time.RFC3339Nano),
		ProcessingTimeMs:   j.ProcessingTimeMs,
		ElapsedTimeMs:      j.ElapsedTime(now).Milliseconds(),
		IsCompleted:        j.IsCompleted(),
		IsProcessing:       j.IsProcessing(),
		ErrorMessage:       j.ErrorMessage,
		ErrorDetails:       j.ErrorDetails,
		Result:             j.Result,
		ModelUsed:          j.ModelUsed,
		RetryCount:         j.RetryCount,
		CanRetry:           j.CanRetry(),
		PreviousJobID:      j.PreviousJobID,
	}

	// Convert optional timestamps to ISO 8601 strings
	if j.StartedAt != nil {
		view.StartedAt = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		view.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	return view
}
