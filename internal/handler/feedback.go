package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carmatch/internal/model"
)

var validActions = map[string]bool{
	"click":        true,
	"contact":      true,
	"view_details": true,
	"dismiss":      true,
}

// FeedbackLogger records reactions to recommended vehicles
type FeedbackLogger interface {
	LogFeedback(ctx context.Context, sessionID, vehicleID, action string) error
}

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	feedback FeedbackLogger
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(feedback FeedbackLogger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !validActions[req.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Must be one of: click, contact, view_details, dismiss"})
		return
	}

	if err := h.feedback.LogFeedback(c.Request.Context(), req.SessionID, req.VehicleID, req.Action); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log feedback: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}
