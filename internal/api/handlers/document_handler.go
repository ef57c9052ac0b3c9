package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/services"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type DocumentHandler struct {
	svc services.SearchService
}

func NewDocumentHandler(svc services.SearchService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type indexDocumentRequest struct {
	ChunkID string   `json:"chunk_id"`
	Title   string   `json:"title"`
	Chunk   string   `json:"chunk"`
	Tags    []string `json:"tags"`
}

// Upsert indexes one knowledge-base chunk. Re-posting a chunk_id replaces
// the stored chunk and refreshes its embedding.
func (h *DocumentHandler) Upsert(c *gin.Context) {
	var req indexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "DocumentHandler.Upsert", "invalid json body", err))
		return
	}

	doc := models.Document{
		ChunkID: req.ChunkID,
		Title:   req.Title,
		Chunk:   req.Chunk,
		Tags:    req.Tags,
	}
	if err := h.svc.Index(c.Request.Context(), doc); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "indexed", "chunk_id": req.ChunkID})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.svc.Chunk(c.Request.Context(), c.Param("chunk_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
