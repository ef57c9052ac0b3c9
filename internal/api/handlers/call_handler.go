package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type CallHandler struct {
	svc services.CallService
}

func NewCallHandler(svc services.CallService) *CallHandler {
	return &CallHandler{svc: svc}
}

type startCallRequest struct {
	CallType    string `json:"call_type"` // "phone" | "teams_user"
	PhoneNumber string `json:"phone_number"`
	User        string `json:"user"`
}

func (h *CallHandler) Start(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "CallHandler.Start", "invalid json body", err))
		return
	}

	var (
		call interface{}
		err  error
	)
	switch req.CallType {
	case "phone":
		call, err = h.svc.StartPhoneCall(c.Request.Context(), req.PhoneNumber)
	case "teams_user":
		call, err = h.svc.StartTeamsCall(c.Request.Context(), req.User)
	default:
		err = utils.E(utils.CodeInvalidArgument, "CallHandler.Start", "call_type must be phone or teams_user", nil)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h *CallHandler) Status(c *gin.Context) {
	call, err := h.svc.Status(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h *CallHandler) End(c *gin.Context) {
	if err := h.svc.End(c.Request.Context(), c.Param("call_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}

func (h *CallHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.svc.List()})
}

// Events receives provider callback notifications. Always accepted; the
// provider retries aggressively on anything else.
func (h *CallHandler) Events(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err == nil {
		h.svc.HandleCallback(payload)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// ACSEvents receives Event Grid and Call Automation notifications for the
// inbound PSTN leg. Event Grid sends a JSON array; the subscription
// validation handshake must echo the code back with a 200.
func (h *CallHandler) ACSEvents(c *gin.Context) {
	var events []map[string]any
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		return
	}
	if code := h.svc.HandleACSEvents(c.Request.Context(), events); code != "" {
		c.JSON(http.StatusOK, gin.H{"validationResponse": code})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
