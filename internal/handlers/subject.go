package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/repos"
	"github.com/yungbote/studyos-backend/internal/types"
)

type SubjectHandler struct {
	log         *logger.Logger
	subjectRepo repos.SubjectRepo
}

func NewSubjectHandler(log *logger.Logger, subjectRepo repos.SubjectRepo) *SubjectHandler {
	return &SubjectHandler{
		log:         log.With("handler", "SubjectHandler"),
		subjectRepo: subjectRepo,
	}
}

type createSubjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// POST /api/subjects
func (h *SubjectHandler) Create(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("name is required"))
		return
	}

	subjects, err := h.subjectRepo.Create(c.Request.Context(), nil, []*types.Subject{{
		Name:   name,
		Status: types.SubjectStatusReady,
	}})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subject": subjects[0]})
}

// GET /api/subjects
func (h *SubjectHandler) List(c *gin.Context) {
	subjects, err := h.subjectRepo.List(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"subjects": subjects})
}

// GET /api/subjects/:id
func (h *SubjectHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return
	}

	subjects, err := h.subjectRepo.GetByIDs(c.Request.Context(), nil, []uuid.UUID{id})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if len(subjects) == 0 {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("subject not found"))
		return
	}
	RespondOK(c, gin.H{"subject": subjects[0]})
}

// DELETE /api/subjects/:id
func (h *SubjectHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid subject id"))
		return
	}
	if err := h.subjectRepo.Delete(c.Request.Context(), nil, id); err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}
