package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type QuoteHandler struct {
	svc services.QuoteService
}

func NewQuoteHandler(svc services.QuoteService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

func (h *QuoteHandler) Create(c *gin.Context) {
	var req services.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QuoteHandler.Create", "invalid json body", err))
		return
	}

	resp, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type confirmRequest struct {
	SessionID string                 `json:"session_id"`
	QuoteData *services.QuoteRequest `json:"quote_data"`
}

// Confirm commits a quote either from an explicit quote_data payload or from
// the draft a voice session produced.
func (h *QuoteHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QuoteHandler.Confirm", "invalid json body", err))
		return
	}

	var (
		resp *services.QuoteResponse
		err  error
	)
	switch {
	case req.QuoteData != nil:
		resp, err = h.svc.Create(c.Request.Context(), *req.QuoteData)
	case req.SessionID != "":
		resp, err = h.svc.ConfirmSession(c.Request.Context(), req.SessionID)
	default:
		err = utils.E(utils.CodeInvalidArgument, "QuoteHandler.Confirm", "session_id or quote_data is required", nil)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type cancelRequest struct {
	SessionID string `json:"session_id"`
}

func (h *QuoteHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "QuoteHandler.Cancel", "invalid json body", err))
		return
	}
	if err := h.svc.CancelSession(c.Request.Context(), req.SessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *QuoteHandler) Get(c *gin.Context) {
	quote, err := h.svc.Get(c.Request.Context(), c.Param("quote_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *QuoteHandler) List(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	quotes, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}
