package assessment

import (
	"context"
	"log/slog"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// OrchestratorName is the name the workflow is registered under
const OrchestratorName = "ExtendedAssessmentOrchestrator"

// InstancePrefix prefixes every orchestration instance id
const InstancePrefix = "ext-assessment-"

// InstanceID derives the orchestration instance id bound to a job
func InstanceID(jobID string) string {
	return InstancePrefix + jobID
}

// Activity names
const (
	ActivityCheckpoint         = "Checkpoint"
	ActivityUpdateJobStatus    = "UpdateJobStatus"
	ActivityValidateSession    = "ValidateSession"
	ActivityGenerateAssessment = "GenerateAssessment"
	ActivityPersistResult      = "PersistResult"
	ActivityCompleteJob        = "CompleteJob"
	ActivityFailJob            = "FailJob"
)

// Progress steps shown to pollers
const (
	StepValidating = "Validating session and preparing assessment..."
	StepGenerating = "Calling AI service for extended assessment... This may take 30-120 seconds."
	StepPersisting = "Saving assessment results to session..."
)

// Failure messages recorded on the job
const (
	MsgValidationFailed = "Session validation failed"
	MsgGenerationFailed = "Failed to generate extended assessment"
	MsgPersistFailed    = "Failed to save assessment to session"
)

// DefaultModelLabel is recorded as modelUsed when the submitter gives none
const DefaultModelLabel = "extended-assessment"

// Generator produces an extended assessment for a session
type Generator interface {
	Generate(ctx context.Context, session *model.SessionRecord, conditions []string) (*model.AssessmentResult, error)
}

// Runtime is what the state machine needs from the orchestration engine.
// *durable.Context implements it.
type Runtime interface {
	Now() time.Time
	CallActivity(name string, input any, out any) error
	IsReplaying() bool
	Logger() *slog.Logger
}

// Input is the orchestration input
type Input struct {
	JobID      string   `json:"jobId"`
	SessionID  string   `json:"sessionId"`
	Conditions []string `json:"conditions,omitempty"`
	ModelLabel string   `json:"modelLabel,omitempty"`
}

// Output is the orchestration output stored on the instance
type Output struct {
	JobID            string     `json:"jobId"`
	SessionID        string     `json:"sessionId"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
}

// Activity inputs

// JobRef names the job an activity acts on
type JobRef struct {
	JobID string `json:"jobId"`
}

// StatusUpdate is the input of the status activity
type StatusUpdate struct {
	JobID              string          `json:"jobId"`
	Status             model.JobStatus `json:"status"`
	ProgressPercentage int             `json:"progressPercentage"`
	CurrentStep        string          `json:"currentStep,omitempty"`
}

// SessionRef is the input of session validation
type SessionRef struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
}

// GenerationInput is the input of the AI generation activity
type GenerationInput struct {
	JobID      string   `json:"jobId"`
	SessionID  string   `json:"sessionId"`
	Conditions []string `json:"conditions,omitempty"`
}

// PersistInput carries a generated result to save on the session
type PersistInput struct {
	JobID     string                  `json:"jobId"`
	SessionID string                  `json:"sessionId"`
	Result    *model.AssessmentResult `json:"result"`
}

// CompletionInput closes a job as completed
type CompletionInput struct {
	JobID            string                  `json:"jobId"`
	Result           *model.AssessmentResult `json:"result"`
	ProcessingTimeMs int64                   `json:"processingTimeMs"`
	ModelUsed        string                  `json:"modelUsed,omitempty"`
}

// FailureInput closes a job as failed
type FailureInput struct {
	JobID        string `json:"jobId"`
	ErrorMessage string `json:"errorMessage"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// Outcome is the terminal result of a job: Completed or Failed
type Outcome interface {
	isOutcome()
}

// Completed carries the payload of a successful job
type Completed struct {
	Result           *model.AssessmentResult
	ProcessingTimeMs int64
	ModelUsed        string
}

// Failed carries the error of an unsuccessful job
type Failed struct {
	Message string
	Details string
}

func (Completed) isOutcome() {}
func (Failed) isOutcome()    {}
