package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxWriteConflicts bounds the optimistic read-modify-write loop
const maxWriteConflicts = 5

// JobRepository handles assessment job records
type JobRepository struct {
	collection *mongo.Collection
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *MongoDB) *JobRepository {
	return &JobRepository{
		collection: db.GetCollection(CollectionJobs),
	}
}

// CreateJob inserts a queued job for the session and returns its id
func (r *JobRepository) CreateJob(ctx context.Context, sessionID string, opts CreateJobOptions) (string, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	job := model.NewJobRecord(uuid.NewString(), sessionID, time.Now().UTC())
	job.RetryCount = opts.RetryCount
	job.PreviousJobID = opts.PreviousJobID
	job.Conditions = opts.Conditions
	if opts.MaxRetries > 0 {
		job.MaxRetries = opts.MaxRetries
	}

	if _, err := r.collection.InsertOne(ctxTimeout, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	slog.Info("Created assessment job", "job_id", job.JobID, "session_id", sessionID)
	return job.JobID, nil
}

// UpdateStatus records progress. It reports false only when the job is unknown.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, progress int, currentStep string) (bool, error) {
	found, _, err := r.mutate(ctx, jobID, func(job *model.JobRecord, now time.Time) bool {
		return job.ApplyStatus(status, progress, currentStep, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return found, nil
}

// CompleteJob marks the job completed. It reports false when the job is
// unknown or already failed.
func (r *JobRepository) CompleteJob(ctx context.Context, jobID string, result *model.AssessmentResult, processingTimeMs int64, modelUsed string) (bool, error) {
	found, applied, err := r.mutate(ctx, jobID, func(job *model.JobRecord, now time.Time) bool {
		return job.ApplyCompletion(result, processingTimeMs, modelUsed, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return found && applied, nil
}

// FailJob marks the job failed. It reports false when the job is unknown or
// already completed.
func (r *JobRepository) FailJob(ctx context.Context, jobID, errorMessage, errorDetails string) (bool, error) {
	found, applied, err := r.mutate(ctx, jobID, func(job *model.JobRecord, now time.Time) bool {
		return job.ApplyFailure(errorMessage, errorDetails, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return found && applied, nil
}

// GetJob retrieves a job by id
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var job model.JobRecord
	err := r.collection.FindOne(ctxTimeout, bson.M{"job_id": jobID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ListBySession returns every job of a session, newest first
func (r *JobRepository) ListBySession(ctx context.Context, sessionID string) ([]model.JobRecord, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctxTimeout, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	jobs := []model.JobRecord{}
	if err := cursor.All(ctxTimeout, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	return jobs, nil
}

// SetInstanceID binds the orchestration instance to the job
func (r *JobRepository) SetInstanceID(ctx context.Context, jobID, instanceID string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.collection.UpdateOne(ctxTimeout,
		bson.M{"job_id": jobID},
		bson.M{"$set": bson.M{"instance_id": instanceID}},
	)
	if err != nil {
		return fmt.Errorf("failed to set instance id: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// mutate applies fn to the stored record and writes it back only if nobody
// changed the lifecycle fields in between.
func (r *JobRepository) mutate(ctx context.Context, jobID string, fn func(*model.JobRecord, time.Time) bool) (found bool, applied bool, err error) {
	for attempt := 0; attempt < maxWriteConflicts; attempt++ {
		job, err := r.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, false, nil
			}
			return false, false, err
		}

		filter := bson.M{
			"job_id":              job.JobID,
			"status":              job.Status,
			"progress_percentage": job.ProgressPercentage,
			"current_step":        job.CurrentStep,
		}

		if !fn(job, time.Now().UTC()) {
			return true, false, nil
		}

		ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
		result, err := r.collection.ReplaceOne(ctxTimeout, filter, job)
		cancel()
		if err != nil {
			return true, false, err
		}
		if result.MatchedCount > 0 {
			return true, true, nil
		}

		slog.Debug("Job write conflict, retrying", "job_id", jobID, "attempt", attempt+1)
	}

	return true, false, fmt.Errorf("job %s: too many concurrent writes", jobID)
}
