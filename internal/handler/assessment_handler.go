package handler

import (
	"errors"
	"net/http"

	"github.com/dandantas/assessment-orchestrator/internal/model"
	"github.com/dandantas/assessment-orchestrator/internal/service"
	"github.com/dandantas/assessment-orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

// AssessmentHandler serves the extended assessment stored on a session
type AssessmentHandler struct {
	assessments *service.AssessmentService
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(assessments *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

// AssessmentResponse is the result of reading a session's extended assessment
type AssessmentResponse struct {
	Success                bool                    `json:"success"`
	SessionID              string                  `json:"sessionId"`
	HasExtendedAssessment  bool                    `json:"hasExtendedAssessment"`
	ExtendedRiskAssessment *model.AssessmentResult `json:"extendedRiskAssessment"`
}

// Get handles GET /sessions/{sessionId}/extended-risk-assessment
func (h *AssessmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	result, err := h.assessments.Get(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, sessionID, err)
		return
	}

	writeJSON(w, r, http.StatusOK, AssessmentResponse{
		Success:                true,
		SessionID:              sessionID,
		HasExtendedAssessment:  result != nil,
		ExtendedRiskAssessment: result,
	})
}

// Status handles GET /sessions/{sessionId}/extended-risk-assessment/status
func (h *AssessmentHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	status, err := h.assessments.Status(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, sessionID, err)
		return
	}

	writeJSON(w, r, http.StatusOK, status)
}

// Delete handles DELETE /sessions/{sessionId}/extended-risk-assessment
func (h *AssessmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	deleted, err := h.assessments.Delete(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, sessionID, err)
		return
	}
	if !deleted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sessionID,
		"message":   "Extended risk assessment deleted",
	})
}

func (h *AssessmentHandler) writeError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	middleware.Logger(r.Context()).Error("Failed to access extended assessment", "session_id", sessionID, "error", err)
	writeError(w, r, http.StatusInternalServerError, "Failed to access extended risk assessment")
}
