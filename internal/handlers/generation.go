package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/services"
)

type GenerationHandler struct {
	log    *logger.Logger
	runner services.GenerationRunnerService
}

func NewGenerationHandler(log *logger.Logger, runner services.GenerationRunnerService) *GenerationHandler {
	return &GenerationHandler{
		log:    log.With("handler", "GenerationHandler"),
		runner: runner,
	}
}

type generateTextRequest struct {
	Text string `json:"text"`
}

// POST /api/subjects/:id/generate
// Accepts either multipart form-data with a "file" part, or a JSON body with
// raw text. Responds immediately with the run; progress streams over SSE on
// the subject's channel.
func (h *GenerationHandler) Generate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return
	}

	input, err := h.readInput(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}

	run, err := h.runner.Start(c.Request.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubjectNotFound):
			RespondError(c, http.StatusNotFound, "not_found", err)
		case errors.Is(err, services.ErrGenerationInProgress):
			RespondError(c, http.StatusConflict, "generation_in_progress", err)
		case errors.Is(err, services.ErrInvalidInput):
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
		default:
			RespondError(c, http.StatusInternalServerError, "start_failed", err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (h *GenerationHandler) readInput(c *gin.Context) (services.GenerateGraphInput, error) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		header, err := c.FormFile("file")
		if err != nil {
			return services.GenerateGraphInput{}, fmt.Errorf("missing file part: %w", err)
		}
		f, err := header.Open()
		if err != nil {
			return services.GenerateGraphInput{}, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return services.GenerateGraphInput{}, fmt.Errorf("read upload: %w", err)
		}
		return services.GenerateGraphInput{File: &services.GraphFileInput{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		}}, nil
	}

	var req generateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return services.GenerateGraphInput{}, fmt.Errorf("invalid body: %w", err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return services.GenerateGraphInput{}, fmt.Errorf("text is required")
	}
	return services.GenerateGraphInput{Text: req.Text}, nil
}

// GET /api/subjects/:id/generation
func (h *GenerationHandler) GetLatest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return
	}

	run, err := h.runner.LatestRun(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	// run is nil when the subject has never generated
	RespondOK(c, gin.H{"run": run})
}

// POST /api/subjects/:id/generation/cancel
func (h *GenerationHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return
	}
	if !h.runner.Cancel(id) {
		RespondError(c, http.StatusNotFound, "no_active_run", fmt.Errorf("no generation running for this subject"))
		return
	}
	RespondOK(c, gin.H{"cancelled": true})
}
