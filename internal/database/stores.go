package database

import (
	"context"
	"errors"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// CreateJobOptions carries the resubmission lineage of a new job
type CreateJobOptions struct {
	RetryCount    int
	MaxRetries    int
	PreviousJobID string
	Conditions    []string
}

// JobStore persists the externally visible progress of assessment jobs.
// The boolean results report whether the job was found (and, for the terminal
// operations, whether the transition was accepted); errors are reserved for
// infrastructure failures.
type JobStore interface {
	CreateJob(ctx context.Context, sessionID string, opts CreateJobOptions) (string, error)
	UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, progress int, currentStep string) (bool, error)
	CompleteJob(ctx context.Context, jobID string, result *model.AssessmentResult, processingTimeMs int64, modelUsed string) (bool, error)
	FailJob(ctx context.Context, jobID, errorMessage, errorDetails string) (bool, error)
	GetJob(ctx context.Context, jobID string) (*model.JobRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.JobRecord, error)
	SetInstanceID(ctx context.Context, jobID, instanceID string) error
}

// SessionStore reads and writes screening sessions
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*model.SessionRecord, error)
	UpdateSession(ctx context.Context, session *model.SessionRecord) (bool, error)
}

// HistoryStore persists orchestration instances and their checkpoint history
type HistoryStore interface {
	CreateInstance(ctx context.Context, instance *model.OrchestrationInstance) (bool, error)
	GetInstance(ctx context.Context, instanceID string) (*model.OrchestrationInstance, error)
	ListInstances(ctx context.Context, status model.InstanceStatus) ([]model.OrchestrationInstance, error)
	FinishInstance(ctx context.Context, instanceID string, status model.InstanceStatus, output []byte, errorMessage string) error
	AppendEvent(ctx context.Context, event model.HistoryEvent) error
	LoadHistory(ctx context.Context, instanceID string) ([]model.HistoryEvent, error)
}

// LeaseStore hands out per-instance leases so only one pod drives an instance
type LeaseStore interface {
	AcquireLease(ctx context.Context, instanceID, podID string, ttl time.Duration) (bool, error)
	ExtendLease(ctx context.Context, instanceID, podID string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, instanceID, podID string) error
	ReleaseAllLeases(ctx context.Context, podID string) error
	CleanExpiredLeases(ctx context.Context) (int64, error)
}
