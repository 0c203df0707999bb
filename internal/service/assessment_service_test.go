package service

import (
	"context"
	"testing"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAssessmentService_GetAndStatus(t *testing.T) {
	ctx := context.Background()
	sessions := database.NewMemorySessionStore()
	generatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.Put(&model.SessionRecord{
		SessionID:  "with",
		Prediction: bson.M{"label": "low"},
		ExtendedRiskAssessment: &model.AssessmentResult{
			OverallRiskLevel: "Low",
			GeneratedAt:      generatedAt,
			ProcessingTimeMs: 1200,
		},
	})
	sessions.Put(&model.SessionRecord{SessionID: "without", Transcription: "hello"})
	svc := NewAssessmentService(sessions)

	result, err := svc.Get(ctx, "with")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Low", result.OverallRiskLevel)

	result, err = svc.Get(ctx, "without")
	require.NoError(t, err)
	assert.Nil(t, result)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	status, err := svc.Status(ctx, "with")
	require.NoError(t, err)
	assert.True(t, status.HasExtendedAssessment)
	assert.True(t, status.CanGenerate)
	assert.Equal(t, generatedAt, *status.GeneratedAt)
	assert.Equal(t, int64(1200), *status.ProcessingTimeMs)

	status, err = svc.Status(ctx, "without")
	require.NoError(t, err)
	assert.False(t, status.HasExtendedAssessment)
	assert.True(t, status.HasTranscription)
	assert.False(t, status.CanGenerate)
	assert.Nil(t, status.GeneratedAt)
}

func TestAssessmentService_Delete(t *testing.T) {
	ctx := context.Background()
	sessions := database.NewMemorySessionStore()
	sessions.Put(&model.SessionRecord{SessionID: "s", Transcription: "keep", ExtendedRiskAssessment: &model.AssessmentResult{}})
	svc := NewAssessmentService(sessions)

	deleted, err := svc.Delete(ctx, "s")
	require.NoError(t, err)
	assert.True(t, deleted)

	session, err := sessions.GetSession(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, session.ExtendedRiskAssessment)
	assert.Equal(t, "keep", session.Transcription)

	deleted, err = svc.Delete(ctx, "s")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
