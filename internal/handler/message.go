package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"carmatch/internal/model"
)

// Conversations runs customer turns
type Conversations interface {
	HandleTurn(ctx context.Context, sessionID, raw string) string
	Reset(ctx context.Context, sessionID string) error
}

// MessageHandler is the intake adapter for customer messages
type MessageHandler struct {
	conversations Conversations
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(conversations Conversations) *MessageHandler {
	return &MessageHandler{conversations: conversations}
}

// Receive handles POST /api/v1/messages
func (h *MessageHandler) Receive(c *gin.Context) {
	var req model.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	start := time.Now()
	reply := h.conversations.HandleTurn(c.Request.Context(), sessionID, req.Text)

	c.JSON(http.StatusOK, model.MessageResponse{
		SessionID: sessionID,
		Reply:     reply,
		Took:      time.Since(start).Milliseconds(),
	})
}

// Reset handles POST /api/v1/sessions/:id/reset
func (h *MessageHandler) Reset(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}
	if err := h.conversations.Reset(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset session: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session_id": sessionID})
}
