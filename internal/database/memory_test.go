package database

import (
	"context"
	"testing"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryJobStore_CreateJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	first, err := store.CreateJob(ctx, "session-1", CreateJobOptions{})
	require.NoError(t, err)
	second, err := store.CreateJob(ctx, "session-1", CreateJobOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	_, err = uuid.Parse(first)
	assert.NoError(t, err)

	job, err := store.GetJob(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.ProgressPercentage)
	assert.Equal(t, "session-1", job.SessionID)
	assert.Equal(t, model.DefaultMaxRetries, job.MaxRetries)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestMemoryJobStore_GetJobUnknown(t *testing.T) {
	_, err := NewMemoryJobStore().GetJob(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJobStore_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	jobID, err := store.CreateJob(ctx, "s", CreateJobOptions{})
	require.NoError(t, err)

	updates := []struct {
		progress int
		want     int
	}{
		{10, 10},
		{30, 30},
		{20, 30},
		{80, 80},
		{150, 100},
		{-5, 100},
	}

	for _, u := range updates {
		found, err := store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, u.progress, "")
		require.NoError(t, err)
		require.True(t, found)

		job, err := store.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, u.want, job.ProgressPercentage, "after update to %d", u.progress)
	}
}

func TestMemoryJobStore_UpdateStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryJobStore().WithClock(clock.Now)
	jobID, err := store.CreateJob(ctx, "s", CreateJobOptions{})
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 30, "Generating")
	require.NoError(t, err)
	once, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 30, "Generating")
	require.NoError(t, err)
	twice, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestMemoryJobStore_StartedAtSetOnFirstProcessing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryJobStore().WithClock(clock.Now)
	jobID, _ := store.CreateJob(ctx, "s", CreateJobOptions{})

	clock.Advance(time.Second)
	_, _ = store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 10, "Validating")
	clock.Advance(time.Second)
	_, _ = store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 30, "")

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, clock.now.Add(-time.Second), *job.StartedAt)
	assert.Equal(t, "Validating", job.CurrentStep)
}

func TestMemoryJobStore_TerminalPayloadIsExclusive(t *testing.T) {
	ctx := context.Background()
	result := &model.AssessmentResult{OverallRiskLevel: "Low", IsExtended: true}

	t.Run("complete then fail", func(t *testing.T) {
		store := NewMemoryJobStore()
		jobID, _ := store.CreateJob(ctx, "s", CreateJobOptions{})

		ok, err := store.CompleteJob(ctx, jobID, result, 1200, "gpt-4")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.FailJob(ctx, jobID, "late failure", "")
		require.NoError(t, err)
		assert.False(t, ok)

		job, _ := store.GetJob(ctx, jobID)
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.Equal(t, 100, job.ProgressPercentage)
		assert.NotNil(t, job.Result)
		assert.Empty(t, job.ErrorMessage)
		assert.Equal(t, int64(1200), *job.ProcessingTimeMs)
	})

	t.Run("fail then complete", func(t *testing.T) {
		store := NewMemoryJobStore()
		jobID, _ := store.CreateJob(ctx, "s", CreateJobOptions{})

		ok, err := store.FailJob(ctx, jobID, "Failed to generate extended assessment", "")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.CompleteJob(ctx, jobID, result, 10, "gpt-4")
		require.NoError(t, err)
		assert.False(t, ok)

		job, _ := store.GetJob(ctx, jobID)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Nil(t, job.Result)
		assert.Equal(t, "Failed to generate extended assessment", job.ErrorMessage)
		assert.NotNil(t, job.CompletedAt)
		assert.NotNil(t, job.ProcessingTimeMs)
	})

	t.Run("terminal ignores progress updates", func(t *testing.T) {
		store := NewMemoryJobStore()
		jobID, _ := store.CreateJob(ctx, "s", CreateJobOptions{})
		_, _ = store.FailJob(ctx, jobID, "boom", "")

		found, err := store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 90, "late")
		require.NoError(t, err)
		assert.True(t, found)

		job, _ := store.GetJob(ctx, jobID)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, "Assessment failed", job.CurrentStep)
	})
}

func TestMemoryJobStore_FailJobProcessingTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryJobStore().WithClock(clock.Now)
	jobID, _ := store.CreateJob(ctx, "s", CreateJobOptions{})

	clock.Advance(2 * time.Second)
	_, _ = store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, 10, "Validating")
	clock.Advance(3 * time.Second)
	_, _ = store.FailJob(ctx, jobID, "Session validation failed", "")

	// Measured from startedAt, not createdAt
	job, _ := store.GetJob(ctx, jobID)
	assert.Equal(t, int64(3000), *job.ProcessingTimeMs)

	// completedAt is first-write-wins
	clock.Advance(time.Second)
	_, _ = store.FailJob(ctx, jobID, "again", "")
	again, _ := store.GetJob(ctx, jobID)
	assert.Equal(t, job.CompletedAt, again.CompletedAt)
}

func TestMemoryJobStore_UnknownJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()
	unknown := uuid.NewString()

	found, err := store.UpdateStatus(ctx, unknown, model.JobStatusProcessing, 10, "")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := store.CompleteJob(ctx, unknown, &model.AssessmentResult{}, 1, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.FailJob(ctx, unknown, "x", "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.SetInstanceID(ctx, unknown, "i"), ErrNotFound)
}

func TestMemoryJobStore_ListBySession(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryJobStore().WithClock(clock.Now)

	first, _ := store.CreateJob(ctx, "s", CreateJobOptions{})
	clock.Advance(time.Minute)
	second, _ := store.CreateJob(ctx, "s", CreateJobOptions{RetryCount: 1, PreviousJobID: first})
	_, _ = store.CreateJob(ctx, "other", CreateJobOptions{})

	jobs, err := store.ListBySession(ctx, "s")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].JobID)
	assert.Equal(t, first, jobs[0].PreviousJobID)
	assert.Equal(t, 1, jobs[0].RetryCount)
	assert.Equal(t, first, jobs[1].JobID)
}

func TestMemoryHistoryStore_AppendEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryHistoryStore()

	created, err := store.CreateInstance(ctx, &model.OrchestrationInstance{InstanceID: "i-1", Status: model.InstanceStatusRunning})
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.CreateInstance(ctx, &model.OrchestrationInstance{InstanceID: "i-1", Status: model.InstanceStatusRunning})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, store.AppendEvent(ctx, model.HistoryEvent{InstanceID: "i-1", Seq: 1, Name: "b"}))
	require.NoError(t, store.AppendEvent(ctx, model.HistoryEvent{InstanceID: "i-1", Seq: 0, Name: "a"}))
	require.NoError(t, store.AppendEvent(ctx, model.HistoryEvent{InstanceID: "i-1", Seq: 1, Name: "overwrite"}))

	history, err := store.LoadHistory(ctx, "i-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].Name)
	assert.Equal(t, "b", history[1].Name)

	require.NoError(t, store.FinishInstance(ctx, "i-1", model.InstanceStatusCompleted, nil, ""))
	assert.ErrorIs(t, store.FinishInstance(ctx, "i-1", model.InstanceStatusFailed, nil, "x"), ErrNotFound)

	running, err := store.ListInstances(ctx, model.InstanceStatusRunning)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestMemoryLeaseStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryLeaseStore().WithClock(clock.Now)

	ok, err := store.AcquireLease(ctx, "i-1", "pod-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLease(ctx, "i-1", "pod-b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "lease held by another pod")

	ok, err = store.AcquireLease(ctx, "i-1", "pod-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "owner may refresh")

	assert.ErrorIs(t, store.ExtendLease(ctx, "i-1", "pod-b", time.Minute), ErrLeaseLost)

	clock.Advance(time.Minute)
	cleaned, err := store.CleanExpiredLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned)

	ok, err = store.AcquireLease(ctx, "i-1", "pod-b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ReleaseAllLeases(ctx, "pod-b"))
	ok, err = store.AcquireLease(ctx, "i-1", "pod-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
