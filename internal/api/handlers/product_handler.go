package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Alserial/VoiceRAG/internal/services"
)

type ProductHandler struct {
	svc services.ProductService
}

func NewProductHandler(svc services.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List returns the product catalog. An unreachable CRM yields an empty list
// rather than an error so the voice flow can keep going.
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.svc.Products(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}
