package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/oliveagle/jsonpath"
)

// DefaultResponsePath locates the completion text in a chat-completions response
const DefaultResponsePath = "$.choices[0].message.content"

// Config configures the AI generation client
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ResponsePath string
	Temperature  float64
}

// Client generates extended assessments through a chat-completions HTTP API
type Client struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	model        string
	temperature  float64
	responsePath *jsonpath.Compiled
	breaker      *CircuitBreaker
}

// NewClient creates a new AI client
func NewClient(cfg Config) (*Client, error) {
	if cfg.ResponsePath == "" {
		cfg.ResponsePath = DefaultResponsePath
	}

	pattern, err := jsonpath.Compile(cfg.ResponsePath)
	if err != nil {
		return nil, fmt.Errorf("invalid response path '%s': %w", cfg.ResponsePath, err)
	}

	return &Client{
		httpClient:   NewHTTPClient(cfg.Timeout),
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		responsePath: pattern,
		breaker:      NewCircuitBreaker(5, 1, 60*time.Second),
	}, nil
}

// NewHTTPClient creates an HTTP client with connection pooling
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Breaker exposes the circuit breaker state for readiness reporting
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// completion is the JSON object the model is asked to produce
type completion struct {
	OverallRiskLevel        string           `json:"overallRiskLevel"`
	RiskScore               float64          `json:"riskScore"`
	Summary                 string           `json:"summary"`
	KeyFactors              []string         `json:"keyFactors"`
	Recommendations         []string         `json:"recommendations"`
	ImmediateActions        []string         `json:"immediateActions"`
	FollowUpRecommendations []string         `json:"followUpRecommendations"`
	ConfidenceLevel         float64          `json:"confidenceLevel"`
	SchizophreniaAssessment map[string]any   `json:"schizophreniaAssessment"`
	ConditionAssessments    []map[string]any `json:"conditionAssessments"`
}

// Generate produces an extended assessment for the session
func (c *Client) Generate(ctx context.Context, session *model.SessionRecord, conditions []string) (*model.AssessmentResult, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	start := time.Now()
	conditions = resolveConditions(session, conditions)

	content, err := c.complete(ctx, buildPrompt(session, conditions))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()

	result, err := parseAssessment(content)
	if err != nil {
		return nil, err
	}

	result.GeneratedAt = time.Now().UTC()
	result.ModelVersion = c.model
	result.IsExtended = true
	result.IsMultiCondition = len(conditions) > 1
	result.EvaluatedConditions = conditions
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	slog.Info("AI service returned extended assessment",
		"session_id", session.SessionID,
		"model", c.model,
		"conditions", len(conditions),
		"duration_ms", result.ProcessingTimeMs,
	)

	return result, nil
}

// complete sends one chat request and extracts the completion text
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	// Reasoning models reject sampling parameters
	if c.temperature > 0 {
		temperature := c.temperature
		body.Temperature = &temperature
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "assessment-orchestrator/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("AI service request failed: %w", err)
	}
	defer resp.Body.Close()

	// Limit response body size to 1MB
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read AI service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("AI service returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return "", fmt.Errorf("AI service returned invalid JSON: %w", err)
	}

	value, err := c.responsePath.Lookup(document)
	if err != nil {
		return "", fmt.Errorf("AI service response has no completion content: %w", err)
	}

	content, ok := value.(string)
	if !ok || strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("AI service returned empty completion content")
	}

	return content, nil
}

// parseAssessment decodes the model's JSON answer, tolerating a markdown fence
func parseAssessment(content string) (*model.AssessmentResult, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return nil, fmt.Errorf("completion content is empty after cleaning")
	}

	var c completion
	if err := json.Unmarshal([]byte(clean), &c); err != nil {
		return nil, fmt.Errorf("failed to parse assessment: %w", err)
	}

	result := &model.AssessmentResult{
		OverallRiskLevel:        c.OverallRiskLevel,
		RiskScore:               clampInt(int(math.Round(c.RiskScore)), 1, 10),
		Summary:                 c.Summary,
		KeyFactors:              c.KeyFactors,
		Recommendations:         c.Recommendations,
		ImmediateActions:        c.ImmediateActions,
		FollowUpRecommendations: c.FollowUpRecommendations,
		ConfidenceLevel:         math.Max(0, math.Min(1, c.ConfidenceLevel)),
		SchizophreniaAssessment: c.SchizophreniaAssessment,
	}
	for _, assessment := range c.ConditionAssessments {
		result.ConditionAssessments = append(result.ConditionAssessments, assessment)
	}

	return result, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
