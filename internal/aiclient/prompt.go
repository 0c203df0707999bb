package aiclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// DefaultCondition is evaluated when neither the request nor the session
// names any DSM-5 condition
const DefaultCondition = "schizophrenia_295_90_f20_9"

const systemPrompt = "You are an experienced licensed psychiatrist and clinical psychologist with expertise in " +
	"DSM-5 diagnostic criteria, risk assessment and differential diagnosis. Provide thorough, evidence-based " +
	"clinical assessments and state the limits of what the available data supports."

// resolveConditions picks the conditions to evaluate
func resolveConditions(session *model.SessionRecord, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if len(session.DSM5Conditions) > 0 {
		return session.DSM5Conditions
	}
	return []string{DefaultCondition}
}

// buildPrompt renders the user message for an extended assessment
func buildPrompt(session *model.SessionRecord, conditions []string) string {
	var b strings.Builder

	if len(conditions) == 1 {
		fmt.Fprintf(&b, "Perform an extended clinical risk assessment including a DSM-5 evaluation for condition %s.\n\n", conditions[0])
	} else {
		fmt.Fprintf(&b, "Perform an extended clinical risk assessment including DSM-5 evaluations for %d selected conditions: %s.\n\n",
			len(conditions), strings.Join(conditions, ", "))
	}

	b.WriteString("SESSION DATA\n")
	fmt.Fprintf(&b, "Session ID: %s\n", session.SessionID)
	if session.Prediction != nil {
		fmt.Fprintf(&b, "Prediction results: %s\n", compactJSON(session.Prediction))
	}
	if session.RiskAssessment != nil {
		fmt.Fprintf(&b, "Standard risk assessment: %s\n", compactJSON(session.RiskAssessment))
	}
	if session.Transcription != "" {
		fmt.Fprintf(&b, "Transcription:\n%s\n", session.Transcription)
	}

	b.WriteString(`
Respond with a single JSON object and nothing else, using these fields:
{
  "overallRiskLevel": "Low|Moderate|High|Critical",
  "riskScore": 1-10,
  "summary": "string",
  "keyFactors": ["string"],
  "recommendations": ["string"],
  "immediateActions": ["string"],
  "followUpRecommendations": ["string"],
  "confidenceLevel": 0.0-1.0,
`)
	if len(conditions) == 1 {
		b.WriteString(`  "schizophreniaAssessment": { "overallLikelihood": "string", "confidenceScore": 0.0-1.0, "assessmentSummary": "string" }
}
`)
	} else {
		b.WriteString(`  "conditionAssessments": [ { "conditionId": "string", "conditionName": "string", "overallLikelihood": "string", "confidenceScore": 0.0-1.0, "assessmentSummary": "string" } ]
}
`)
	}

	return b.String()
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
