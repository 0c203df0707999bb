package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/durable"
	"github.com/dandantas/assessment-orchestrator/internal/metrics"
	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// Activities holds the side-effecting steps of the workflow
type Activities struct {
	jobs      database.JobStore
	sessions  database.SessionStore
	generator Generator
	clock     func() time.Time
}

// NewActivities creates the workflow activities
func NewActivities(jobs database.JobStore, sessions database.SessionStore, generator Generator) *Activities {
	return &Activities{
		jobs:      jobs,
		sessions:  sessions,
		generator: generator,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Register makes every activity available on the engine. Store mutations are
// retried; generation never is.
func (a *Activities) Register(engine *durable.Engine) {
	retry := durable.DefaultRetryPolicy()

	engine.RegisterActivity(ActivityCheckpoint, durable.Activity(a.Checkpoint), durable.NoRetry())
	engine.RegisterActivity(ActivityUpdateJobStatus, durable.Activity(a.UpdateJobStatus), retry)
	engine.RegisterActivity(ActivityValidateSession, durable.Activity(a.ValidateSession), retry)
	engine.RegisterActivity(ActivityGenerateAssessment, durable.Activity(a.GenerateAssessment), durable.NoRetry())
	engine.RegisterActivity(ActivityPersistResult, durable.Activity(a.PersistResult), retry)
	engine.RegisterActivity(ActivityCompleteJob, durable.Activity(a.CompleteJob), retry)
	engine.RegisterActivity(ActivityFailJob, durable.Activity(a.FailJob), retry)
}

// Checkpoint does nothing. Calling it forces a durable checkpoint.
func (a *Activities) Checkpoint(_ context.Context, _ JobRef) (bool, error) {
	return true, nil
}

// UpdateJobStatus records progress on the job
func (a *Activities) UpdateJobStatus(ctx context.Context, update StatusUpdate) (bool, error) {
	slog.Info("Updating job status",
		"job_id", update.JobID,
		"status", update.Status,
		"progress", update.ProgressPercentage,
		"step", update.CurrentStep,
	)

	found, err := a.jobs.UpdateStatus(ctx, update.JobID, update.Status, update.ProgressPercentage, update.CurrentStep)
	if err != nil {
		return false, err
	}
	if !found {
		slog.Warn("Job not found while updating status", "job_id", update.JobID)
	}
	return found, nil
}

// ValidateSession reports whether the session exists. It does not check for
// an existing assessment so a caller can regenerate one.
func (a *Activities) ValidateSession(ctx context.Context, in SessionRef) (bool, error) {
	session, err := a.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			slog.Warn("Session not found", "job_id", in.JobID, "session_id", in.SessionID)
		} else {
			slog.Error("Failed to validate session", "job_id", in.JobID, "session_id", in.SessionID, "error", err)
		}
		return false, nil
	}

	slog.Info("Session validated", "job_id", in.JobID, "session_id", session.SessionID)
	return true, nil
}

// GenerateAssessment runs the AI generation. Every failure is recorded on the
// job and reported as a nil result. The only error returned is the context's,
// when the engine interrupts the call.
func (a *Activities) GenerateAssessment(ctx context.Context, in GenerationInput) (result *model.AssessmentResult, err error) {
	logger := slog.With("job_id", in.JobID, "session_id", in.SessionID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Assessment generation panicked", "panic", r)
			a.recordGenerationFailure(ctx, in.JobID, fmt.Sprint(r))
			result, err = nil, nil
		}
	}()

	session, err := a.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("Failed to load session for generation", "error", err)
		a.recordGenerationFailure(ctx, in.JobID, fmt.Sprintf("session %s unavailable: %v", in.SessionID, err))
		return nil, nil
	}

	logger.Info("Starting extended assessment generation", "conditions", len(in.Conditions))
	start := time.Now()

	generated, err := a.generator.Generate(ctx, session, in.Conditions)
	if err != nil {
		// Cancelled by engine shutdown: the instance is resumed and generation runs again
		if ctx.Err() != nil {
			logger.Warn("Extended assessment generation interrupted", "error", ctx.Err())
			return nil, ctx.Err()
		}
		logger.Error("Extended assessment generation failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		a.recordGenerationFailure(ctx, in.JobID, err.Error())
		return nil, nil
	}
	if generated == nil {
		logger.Error("AI service returned no assessment")
		a.recordGenerationFailure(ctx, in.JobID, "AI service returned no assessment")
		return nil, nil
	}

	logger.Info("Extended assessment generated", "duration_ms", time.Since(start).Milliseconds())
	return generated, nil
}

func (a *Activities) recordGenerationFailure(ctx context.Context, jobID, reason string) {
	step := "Error during assessment generation: " + reason
	if _, err := a.jobs.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 30, step); err != nil {
		slog.Error("Failed to record generation failure", "job_id", jobID, "error", err)
	}
}

// PersistResult attaches the assessment to the session. It reports false
// when the session vanished or could not be written.
func (a *Activities) PersistResult(ctx context.Context, in PersistInput) (bool, error) {
	logger := slog.With("job_id", in.JobID, "session_id", in.SessionID)

	session, err := a.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		logger.Error("Failed to load session for saving assessment", "error", err)
		return false, nil
	}

	session.ExtendedRiskAssessment = in.Result
	session.UpdatedAt = a.clock()

	saved, err := a.sessions.UpdateSession(ctx, session)
	if err != nil {
		logger.Error("Failed to save assessment to session", "error", err)
		return false, nil
	}
	if !saved {
		logger.Error("Session disappeared before the assessment was saved")
		return false, nil
	}

	logger.Info("Assessment saved to session")
	return true, nil
}

// CompleteJob finalizes a successful job
func (a *Activities) CompleteJob(ctx context.Context, in CompletionInput) (bool, error) {
	ok, err := a.jobs.CompleteJob(ctx, in.JobID, in.Result, in.ProcessingTimeMs, in.ModelUsed)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.IncreaseJobsFinishedMetric(string(model.JobStatusCompleted))
	}

	slog.Info("Completed job", "job_id", in.JobID, "processing_time_ms", in.ProcessingTimeMs, "accepted", ok)
	return ok, nil
}

// FailJob finalizes an unsuccessful job
func (a *Activities) FailJob(ctx context.Context, in FailureInput) (bool, error) {
	ok, err := a.jobs.FailJob(ctx, in.JobID, in.ErrorMessage, in.ErrorDetails)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.IncreaseJobsFinishedMetric(string(model.JobStatusFailed))
	}

	slog.Error("Failed job", "job_id", in.JobID, "error_message", in.ErrorMessage, "accepted", ok)
	return ok, nil
}
