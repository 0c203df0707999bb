package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dandantas/assessment-orchestrator/internal/assessment"
	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startedInstance struct {
	name       string
	instanceID string
	input      assessment.Input
}

type recordingStarter struct {
	started []startedInstance
	err     error
}

func (s *recordingStarter) StartInstance(_ context.Context, name, instanceID string, input any) error {
	if s.err != nil {
		return s.err
	}
	s.started = append(s.started, startedInstance{name: name, instanceID: instanceID, input: input.(assessment.Input)})
	return nil
}

func newJobServiceFixture() (*JobService, *database.MemoryJobStore, *database.MemorySessionStore, *recordingStarter) {
	jobs := database.NewMemoryJobStore()
	sessions := database.NewMemorySessionStore()
	sessions.Put(&model.SessionRecord{SessionID: "s1"})
	starter := &recordingStarter{}
	return NewJobService(jobs, sessions, starter, "gpt-test"), jobs, sessions, starter
}

func TestJobService_Submit(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, starter := newJobServiceFixture()

	sub, err := svc.Submit(ctx, "s1", []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, "s1", sub.SessionID)
	assert.Equal(t, assessment.InstanceID(sub.JobID), sub.InstanceID)

	require.Len(t, starter.started, 1)
	started := starter.started[0]
	assert.Equal(t, assessment.OrchestratorName, started.name)
	assert.Equal(t, sub.InstanceID, started.instanceID)
	assert.Equal(t, assessment.Input{JobID: sub.JobID, SessionID: "s1", Conditions: []string{"a", "b"}, ModelLabel: "gpt-test"}, started.input)

	job, err := jobs.GetJob(ctx, sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.ProgressPercentage)
	assert.Equal(t, sub.InstanceID, job.InstanceID)
}

func TestJobService_SubmitUnknownSession(t *testing.T) {
	svc, _, _, starter := newJobServiceFixture()

	_, err := svc.Submit(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, starter.started)
}

func TestJobService_SubmitStartFailureClosesJob(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, starter := newJobServiceFixture()
	starter.err = errors.New("history store unavailable")

	_, err := svc.Submit(ctx, "s1", nil)
	require.Error(t, err)

	list, err := jobs.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.JobStatusFailed, list[0].Status)
}

type unlinkableJobStore struct {
	*database.MemoryJobStore
}

func (unlinkableJobStore) SetInstanceID(context.Context, string, string) error {
	return errors.New("write concern timeout")
}

func TestJobService_SubmitLinkFailureClosesJob(t *testing.T) {
	ctx := context.Background()
	jobs := database.NewMemoryJobStore()
	sessions := database.NewMemorySessionStore()
	sessions.Put(&model.SessionRecord{SessionID: "s1"})
	starter := &recordingStarter{}
	svc := NewJobService(unlinkableJobStore{jobs}, sessions, starter, "gpt-test")

	_, err := svc.Submit(ctx, "s1", nil)
	require.Error(t, err)
	assert.Empty(t, starter.started)

	list, err := jobs.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.JobStatusFailed, list[0].Status)
	assert.Contains(t, list[0].ErrorDetails, "write concern timeout")
	assert.NotNil(t, list[0].CompletedAt)
}

func TestJobService_GetJob(t *testing.T) {
	svc, _, _, _ := newJobServiceFixture()

	_, err := svc.GetJob(context.Background(), "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_Retry(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, starter := newJobServiceFixture()

	first, err := svc.Submit(ctx, "s1", []string{"a"})
	require.NoError(t, err)

	_, err = svc.Retry(ctx, first.JobID)
	assert.ErrorIs(t, err, ErrJobNotRetryable)

	_, err = jobs.FailJob(ctx, first.JobID, "Failed to generate extended assessment", "")
	require.NoError(t, err)

	second, err := svc.Retry(ctx, first.JobID)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)

	job, err := jobs.GetJob(ctx, second.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, first.JobID, job.PreviousJobID)
	assert.Equal(t, []string{"a"}, starter.started[1].input.Conditions)

	list, err := svc.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestJobService_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, _ := newJobServiceFixture()

	jobID, err := jobs.CreateJob(ctx, "s1", database.CreateJobOptions{RetryCount: 3, MaxRetries: 3})
	require.NoError(t, err)
	_, err = jobs.FailJob(ctx, jobID, "boom", "")
	require.NoError(t, err)

	_, err = svc.Retry(ctx, jobID)
	assert.ErrorIs(t, err, ErrJobNotRetryable)
}

func TestJobService_RetryOnlyOnce(t *testing.T) {
	ctx := context.Background()
	svc, jobs, _, starter := newJobServiceFixture()

	first, err := svc.Submit(ctx, "s1", nil)
	require.NoError(t, err)
	_, err = jobs.FailJob(ctx, first.JobID, "Failed to generate extended assessment", "")
	require.NoError(t, err)

	_, err = svc.Retry(ctx, first.JobID)
	require.NoError(t, err)

	_, err = svc.Retry(ctx, first.JobID)
	assert.ErrorIs(t, err, ErrJobNotRetryable)

	list, err := svc.ListBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Len(t, starter.started, 2)
}
