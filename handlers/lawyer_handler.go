package handlers

import (
	"net/http"
	"strconv"

	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
)

// LawyerHandler handles lawyer profiles and matching
type LawyerHandler struct {
	lawyers *service.LawyerService
}

// NewLawyerHandler creates a new lawyer handler
func NewLawyerHandler(lawyers *service.LawyerService) *LawyerHandler {
	return &LawyerHandler{lawyers: lawyers}
}

// Match handles POST /api/lawyers/match
func (h *LawyerHandler) Match(c *gin.Context) {
	var req service.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.lawyers.MatchLawyers(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Create handles POST /api/lawyers
func (h *LawyerHandler) Create(c *gin.Context) {
	var in service.LawyerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	lawyer, err := h.lawyers.CreateLawyer(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, lawyer)
}

// Get handles GET /api/lawyers/:id
func (h *LawyerHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	lawyer, err := h.lawyers.GetLawyer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, lawyer)
}

// List handles GET /api/lawyers?specialization=&page=&limit=
func (h *LawyerHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	lawyers, err := h.lawyers.ListLawyers(c.Request.Context(), service.ListLawyersRequest{
		Specialization: c.Query("specialization"),
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, lawyers)
}

// Update handles PUT /api/lawyers/:id
func (h *LawyerHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in service.LawyerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	lawyer, err := h.lawyers.UpdateLawyer(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, lawyer)
}
