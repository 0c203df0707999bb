package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/assessment-orchestrator/internal/database"
	"github.com/dandantas/assessment-orchestrator/internal/model"
)

// AssessmentService reads and clears the extended assessment stored on a session
type AssessmentService struct {
	sessions database.SessionStore
	now      func() time.Time
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(sessions database.SessionStore) *AssessmentService {
	return &AssessmentService{
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the session's extended assessment, nil when none was generated
func (s *AssessmentService) Get(ctx context.Context, sessionID string) (*model.AssessmentResult, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.ExtendedRiskAssessment, nil
}

// Status summarizes which assessment inputs and outputs the session has
func (s *AssessmentService) Status(ctx context.Context, sessionID string) (*model.AssessmentStatus, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	status := session.ToAssessmentStatus()
	return &status, nil
}

// Delete clears the session's extended assessment and reports whether there
// was one to clear
func (s *AssessmentService) Delete(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.ExtendedRiskAssessment == nil {
		return false, nil
	}

	updated := session.Clone()
	updated.ExtendedRiskAssessment = nil
	updated.UpdatedAt = s.now()

	found, err := s.sessions.UpdateSession(ctx, updated)
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	if !found {
		return false, ErrSessionNotFound
	}

	slog.Info("Extended assessment deleted", "session_id", sessionID)
	return true, nil
}

func (s *AssessmentService) session(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}
