package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/sse"
)

type StreamHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewStreamHandler(log *logger.Logger, hub *sse.Hub) *StreamHandler {
	return &StreamHandler{
		log: log.With("handler", "StreamHandler"),
		hub: hub,
	}
}

// GET /sse/stream?channel=<subjectID>
// Opens an event stream subscribed to one subject's channel. Multiple
// channels can be requested comma-separated.
func (h *StreamHandler) Stream(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("channel"))
	if raw == "" {
		RespondError(c, http.StatusBadRequest, "missing_channel", fmt.Errorf("channel query parameter required"))
		return
	}

	client := h.hub.NewClient()
	for _, ch := range strings.Split(raw, ",") {
		h.hub.Subscribe(client, ch)
	}
	h.log.Info("SSE stream open", "client_id", client.ID, "channels", raw)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
}
