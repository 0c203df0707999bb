package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// AssessmentResult is the AI-generated extended risk assessment. Clinical
// sections are kept as opaque documents; the workflow never interprets them.
type AssessmentResult struct {
	OverallRiskLevel        string    `json:"overallRiskLevel" bson:"overall_risk_level"`
	RiskScore               int       `json:"riskScore" bson:"risk_score"`
	Summary                 string    `json:"summary" bson:"summary"`
	KeyFactors              []string  `json:"keyFactors,omitempty" bson:"key_factors,omitempty"`
	Recommendations         []string  `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
	ImmediateActions        []string  `json:"immediateActions,omitempty" bson:"immediate_actions,omitempty"`
	FollowUpRecommendations []string  `json:"followUpRecommendations,omitempty" bson:"follow_up_recommendations,omitempty"`
	ConfidenceLevel         float64   `json:"confidenceLevel" bson:"confidence_level"`
	GeneratedAt             time.Time `json:"generatedAt" bson:"generated_at"`
	ModelVersion            string    `json:"modelVersion,omitempty" bson:"model_version,omitempty"`
	IsExtended              bool      `json:"isExtended" bson:"is_extended"`
	IsMultiCondition        bool      `json:"isMultiCondition" bson:"is_multi_condition"`
	EvaluatedConditions     []string  `json:"evaluatedConditions,omitempty" bson:"evaluated_conditions,omitempty"`
	ProcessingTimeMs        int64     `json:"processingTimeMs" bson:"processing_time_ms"`
	SchizophreniaAssessment bson.M    `json:"schizophreniaAssessment,omitempty" bson:"schizophrenia_assessment,omitempty"`
	ConditionAssessments    []bson.M  `json:"conditionAssessments,omitempty" bson:"condition_assessments,omitempty"`
}
