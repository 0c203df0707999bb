package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// SessionRecord is the subset of a screening session the assessment workflow
// reads and writes. Other fields owned by the session store are carried
// through untouched in Extra.
type SessionRecord struct {
	SessionID              string            `json:"sessionId" bson:"session_id"`
	UserID                 string            `json:"userId,omitempty" bson:"user_id,omitempty"`
	GroupID                string            `json:"groupId,omitempty" bson:"group_id,omitempty"`
	Status                 string            `json:"status,omitempty" bson:"status,omitempty"`
	Transcription          string            `json:"transcription,omitempty" bson:"transcription,omitempty"`
	Prediction             bson.M            `json:"prediction,omitempty" bson:"prediction,omitempty"`
	RiskAssessment         bson.M            `json:"riskAssessment,omitempty" bson:"risk_assessment,omitempty"`
	ExtendedRiskAssessment *AssessmentResult `json:"extendedRiskAssessment,omitempty" bson:"extended_risk_assessment,omitempty"`
	DSM5Conditions         []string          `json:"dsm5Conditions,omitempty" bson:"dsm5_conditions,omitempty"`
	CreatedAt              time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt              time.Time         `json:"updatedAt" bson:"updated_at"`
	Extra                  bson.M            `json:"-" bson:",inline"`
}

// Clone returns a copy safe to mutate without touching the original's
// top-level fields
func (s *SessionRecord) Clone() *SessionRecord {
	c := *s
	if s.DSM5Conditions != nil {
		c.DSM5Conditions = append([]string(nil), s.DSM5Conditions...)
	}
	return &c
}

// AssessmentStatus is the availability summary of a session's extended assessment
type AssessmentStatus struct {
	Success               bool       `json:"success"`
	SessionID             string     `json:"sessionId"`
	HasExtendedAssessment bool       `json:"hasExtendedAssessment"`
	HasStandardAssessment bool       `json:"hasStandardAssessment"`
	HasTranscription      bool       `json:"hasTranscription"`
	HasPrediction         bool       `json:"hasPrediction"`
	GeneratedAt           *time.Time `json:"generatedAt,omitempty"`
	ProcessingTimeMs      *int64     `json:"processingTimeMs,omitempty"`
	CanGenerate           bool       `json:"canGenerate"`
}

// ToAssessmentStatus summarizes which assessment inputs and outputs exist
func (s *SessionRecord) ToAssessmentStatus() AssessmentStatus {
	status := AssessmentStatus{
		Success:               true,
		SessionID:             s.SessionID,
		HasExtendedAssessment: s.ExtendedRiskAssessment != nil,
		HasStandardAssessment: s.RiskAssessment != nil,
		HasTranscription:      s.Transcription != "",
		HasPrediction:         s.Prediction != nil,
		CanGenerate:           s.Prediction != nil,
	}

	if a := s.ExtendedRiskAssessment; a != nil {
		if !a.GeneratedAt.IsZero() {
			generatedAt := a.GeneratedAt
			status.GeneratedAt = &generatedAt
		}
		processingTime := a.ProcessingTimeMs
		status.ProcessingTimeMs = &processingTime
	}

	return status
}
