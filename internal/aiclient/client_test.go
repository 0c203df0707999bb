package aiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Endpoint: server.URL,
		APIKey:   "secret",
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestClient_Generate(t *testing.T) {
	var request chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		content := "```json\n{\"overallRiskLevel\":\"High\",\"riskScore\":14,\"summary\":\"s\",\"confidenceLevel\":1.7," +
			"\"schizophreniaAssessment\":{\"overallLikelihood\":\"Low\"}}\n```"
		_ = json.NewEncoder(w).Encode(chatResponse(content))
	})

	session := &model.SessionRecord{SessionID: "s1", Transcription: "patient reports"}
	result, err := client.Generate(context.Background(), session, nil)
	require.NoError(t, err)

	assert.Equal(t, "High", result.OverallRiskLevel)
	assert.Equal(t, 10, result.RiskScore)
	assert.Equal(t, 1.0, result.ConfidenceLevel)
	assert.True(t, result.IsExtended)
	assert.False(t, result.IsMultiCondition)
	assert.Equal(t, []string{DefaultCondition}, result.EvaluatedConditions)
	assert.Equal(t, "test-model", result.ModelVersion)
	assert.Equal(t, "Low", result.SchizophreniaAssessment["overallLikelihood"])
	assert.False(t, result.GeneratedAt.IsZero())

	require.Len(t, request.Messages, 2)
	assert.Equal(t, "system", request.Messages[0].Role)
	assert.Contains(t, request.Messages[1].Content, "patient reports")
	assert.Equal(t, "test-model", request.Model)
}

func TestClient_GenerateMultiCondition(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := `{"overallRiskLevel":"Low","riskScore":0,"conditionAssessments":[{"conditionId":"a"},{"conditionId":"b"}]}`
		_ = json.NewEncoder(w).Encode(chatResponse(content))
	})

	session := &model.SessionRecord{SessionID: "s1", DSM5Conditions: []string{"a", "b"}}
	result, err := client.Generate(context.Background(), session, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RiskScore)
	assert.True(t, result.IsMultiCondition)
	assert.Equal(t, []string{"a", "b"}, result.EvaluatedConditions)
	assert.Len(t, result.ConditionAssessments, 2)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "upstream status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusTooManyRequests)
			},
			want: "status 429",
		},
		{
			name: "missing content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			want: "no completion content",
		},
		{
			name: "content is not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse("I cannot help with that"))
			},
			want: "failed to parse assessment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			result, err := client.Generate(context.Background(), &model.SessionRecord{SessionID: "s"}, []string{"x"})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_CustomResponsePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"text":"{\"overallRiskLevel\":\"Moderate\",\"riskScore\":5}"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, ResponsePath: "$.output.text", Timeout: time.Second})
	require.NoError(t, err)

	result, err := client.Generate(context.Background(), &model.SessionRecord{SessionID: "s"}, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "Moderate", result.OverallRiskLevel)
	assert.Equal(t, 5, result.RiskScore)
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Generate(context.Background(), &model.SessionRecord{SessionID: "s"}, []string{"x"})
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, client.Breaker().State())

	_, err := client.Generate(context.Background(), &model.SessionRecord{SessionID: "s"}, []string{"x"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestInvalidResponsePath(t *testing.T) {
	_, err := NewClient(Config{ResponsePath: "choices"})
	assert.Error(t, err)
}
