package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/session"
)

type HealthHandler struct {
	session   *session.Session
	startedAt time.Time
}

func NewHealthHandler(sess *session.Session) *HealthHandler {
	return &HealthHandler{session: sess, startedAt: time.Now()}
}

func (h *HealthHandler) Check(c *gin.Context) {
	doc, hasDoc := h.session.ActiveDocument()
	payload := gin.H{
		"status":        "ok",
		"uptime_sec":    int(time.Since(h.startedAt).Seconds()),
		"session_state": h.session.State().String(),
	}
	if hasDoc {
		payload["active_document"] = doc
	}
	c.JSON(http.StatusOK, payload)
}
