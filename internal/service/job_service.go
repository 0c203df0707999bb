package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dandantas/assessment-orchestrator/internal/assessment"
	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/metrics"
	"github.com/dandantas/assessment-orchestrator/internal/model"
)

var (
	// ErrSessionNotFound is returned when the session to assess does not exist
	ErrSessionNotFound = errors.New("session not found")
	// ErrJobNotFound is returned when a job id is unknown
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotRetryable is returned when a resubmission is not allowed
	ErrJobNotRetryable = errors.New("job cannot be retried")
)

// InstanceStarter starts durable orchestration instances
type InstanceStarter interface {
	StartInstance(ctx context.Context, name, instanceID string, input any) error
}

// Submission is the outcome of accepting an assessment request
type Submission struct {
	JobID      string
	InstanceID string
	SessionID  string
}

// JobService accepts extended assessment requests and exposes job progress
type JobService struct {
	jobs       database.JobStore
	sessions   database.SessionStore
	starter    InstanceStarter
	modelLabel string
}

// NewJobService creates a new job service
func NewJobService(jobs database.JobStore, sessions database.SessionStore, starter InstanceStarter, modelLabel string) *JobService {
	return &JobService{
		jobs:       jobs,
		sessions:   sessions,
		starter:    starter,
		modelLabel: modelLabel,
	}
}

// Submit creates a job for the session and starts its orchestration. It
// returns as soon as the instance is durable.
func (s *JobService) Submit(ctx context.Context, sessionID string, conditions []string) (*Submission, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.submit(ctx, sessionID, database.CreateJobOptions{Conditions: conditions})
}

// Retry resubmits a failed job as a new job for the same session
func (s *JobService) Retry(ctx context.Context, jobID string) (*Submission, error) {
	previous, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !previous.CanRetry() {
		return nil, fmt.Errorf("%w: status %s, retry %d of %d",
			ErrJobNotRetryable, previous.Status, previous.RetryCount, previous.MaxRetries)
	}
	if err := s.ensureSession(ctx, previous.SessionID); err != nil {
		return nil, err
	}

	// A failed job has at most one successor
	siblings, err := s.ListBySession(ctx, previous.SessionID)
	if err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		if sibling.PreviousJobID == previous.JobID {
			return nil, fmt.Errorf("%w: already resubmitted as %s", ErrJobNotRetryable, sibling.JobID)
		}
	}

	return s.submit(ctx, previous.SessionID, database.CreateJobOptions{
		RetryCount:    previous.RetryCount + 1,
		MaxRetries:    previous.MaxRetries,
		PreviousJobID: previous.JobID,
		Conditions:    previous.Conditions,
	})
}

func (s *JobService) submit(ctx context.Context, sessionID string, opts database.CreateJobOptions) (*Submission, error) {
	jobID, err := s.jobs.CreateJob(ctx, sessionID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	instanceID := assessment.InstanceID(jobID)
	if err := s.jobs.SetInstanceID(ctx, jobID, instanceID); err != nil {
		s.closeUnstartedJob(ctx, jobID, err)
		return nil, fmt.Errorf("failed to link job to instance: %w", err)
	}

	input := assessment.Input{
		JobID:      jobID,
		SessionID:  sessionID,
		Conditions: opts.Conditions,
		ModelLabel: s.modelLabel,
	}
	if err := s.starter.StartInstance(ctx, assessment.OrchestratorName, instanceID, input); err != nil {
		s.closeUnstartedJob(ctx, jobID, err)
		return nil, fmt.Errorf("failed to start orchestration: %w", err)
	}

	metrics.IncreaseJobsSubmittedMetric()

	slog.Info("Extended assessment job submitted",
		"job_id", jobID,
		"instance_id", instanceID,
		"session_id", sessionID,
		"retry_count", opts.RetryCount,
	)

	return &Submission{JobID: jobID, InstanceID: instanceID, SessionID: sessionID}, nil
}

// closeUnstartedJob fails a job that no orchestration will ever drive, so
// pollers see a terminal state instead of a queued job forever
func (s *JobService) closeUnstartedJob(ctx context.Context, jobID string, cause error) {
	if _, err := s.jobs.FailJob(ctx, jobID, "Failed to start assessment orchestration", cause.Error()); err != nil {
		slog.Error("Failed to mark unstarted job as failed", "job_id", jobID, "error", err)
	}
}

// GetJob returns the current record of a job
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListBySession returns every job of a session, newest first
func (s *JobService) ListBySession(ctx context.Context, sessionID string) ([]model.JobRecord, error) {
	jobs, err := s.jobs.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *JobService) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	return nil
}
