package handlers

import (
	"net/http"

	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
)

// FAQHandler handles the help page questions
type FAQHandler struct {
	faqs *service.FAQService
}

// NewFAQHandler creates a new FAQ handler
func NewFAQHandler(faqs *service.FAQService) *FAQHandler {
	return &FAQHandler{faqs: faqs}
}

// List handles GET /api/faqs?category=
func (h *FAQHandler) List(c *gin.Context) {
	faqs, err := h.faqs.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, faqs)
}

// Create handles POST /api/faqs
func (h *FAQHandler) Create(c *gin.Context) {
	var req service.CreateFAQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	faq, err := h.faqs.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, faq)
}

// Delete handles DELETE /api/faqs/:id
func (h *FAQHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.faqs.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
