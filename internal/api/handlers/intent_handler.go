package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type IntentHandler struct {
	svc services.IntentService
}

func NewIntentHandler(svc services.IntentService) *IntentHandler {
	return &IntentHandler{svc: svc}
}

type intentRequest struct {
	Transcript    string `json:"transcript"`
	PendingAction string `json:"pending_action"`
}

// Classify resolves a short user utterance against a pending confirmation.
func (h *IntentHandler) Classify(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "IntentHandler.Classify", "invalid json body", err))
		return
	}

	state := h.svc.Classify(c.Request.Context(), req.Transcript)
	c.JSON(http.StatusOK, gin.H{"state": state})
}
