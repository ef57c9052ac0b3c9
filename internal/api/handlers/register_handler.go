package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type RegisterHandler struct {
	svc services.RegisterService
}

func NewRegisterHandler(svc services.RegisterService) *RegisterHandler {
	return &RegisterHandler{svc: svc}
}

type registerRequest struct {
	CustomerName string `json:"customer_name"`
	ContactInfo  string `json:"contact_info"`
}

func (h *RegisterHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "RegisterHandler.Register", "invalid json body", err))
		return
	}

	reg, err := h.svc.Register(c.Request.Context(), req.CustomerName, req.ContactInfo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "registered",
		"account_id": reg.AccountID,
		"contact_id": reg.ContactID,
	})
}
