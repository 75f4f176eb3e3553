package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/services"
)

type ConceptHandler struct {
	log    *logger.Logger
	graphs services.SubjectGraphService
}

func NewConceptHandler(log *logger.Logger, graphs services.SubjectGraphService) *ConceptHandler {
	return &ConceptHandler{
		log:    log.With("handler", "ConceptHandler"),
		graphs: graphs,
	}
}

// POST /api/subjects/:id/concepts/:conceptId/exercises
func (h *ConceptHandler) GenerateExercises(c *gin.Context) {
	subjectID, conceptID, ok := h.pathIDs(c)
	if !ok {
		return
	}

	exercises, err := h.graphs.GenerateExercises(c.Request.Context(), subjectID, conceptID)
	if err != nil {
		h.respondGraphError(c, err)
		return
	}
	RespondOK(c, gin.H{"exercises": exercises})
}

type masteryRequest struct {
	Score *float64 `json:"score" binding:"required"`
}

// POST /api/subjects/:id/concepts/:conceptId/mastery
func (h *ConceptHandler) UpdateMastery(c *gin.Context) {
	subjectID, conceptID, ok := h.pathIDs(c)
	if !ok {
		return
	}

	var req masteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	concept, err := h.graphs.UpdateMastery(c.Request.Context(), subjectID, conceptID, *req.Score)
	if err != nil {
		h.respondGraphError(c, err)
		return
	}
	RespondOK(c, gin.H{"concept": concept})
}

func (h *ConceptHandler) pathIDs(c *gin.Context) (uuid.UUID, string, bool) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return uuid.Nil, "", false
	}
	conceptID := c.Param("conceptId")
	if conceptID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("concept id required"))
		return uuid.Nil, "", false
	}
	return subjectID, conceptID, true
}

func (h *ConceptHandler) respondGraphError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSubjectNotFound), errors.Is(err, services.ErrConceptNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrNoGraph), errors.Is(err, services.ErrInvalidInput):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, services.ErrNotConfigured):
		RespondError(c, http.StatusServiceUnavailable, "ai_not_configured", err)
	case errors.Is(err, services.ErrRateLimited):
		RespondError(c, http.StatusTooManyRequests, "rate_limited", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
