package handlers

import (
	"net/http"
	"strconv"

	"legalmatch-backend/service"

	"github.com/gin-gonic/gin"
)

// LegalHandler handles the legal analysis and article routes
type LegalHandler struct {
	analysis *service.AnalysisService
	articles *service.ArticleService
	lawyers  *service.LawyerService
}

// NewLegalHandler creates a new legal handler
func NewLegalHandler(analysis *service.AnalysisService, articles *service.ArticleService, lawyers *service.LawyerService) *LegalHandler {
	return &LegalHandler{
		analysis: analysis,
		articles: articles,
		lawyers:  lawyers,
	}
}

// Analyze handles POST /api/legal/analyze
func (h *LegalHandler) Analyze(c *gin.Context) {
	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.analysis.Analyze(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"analysis":           result.Analysis,
		"applicableArticles": result.ApplicableArticles,
		"isFallback":         result.IsFallback,
		"isDatabaseFallback": result.IsDatabaseFallback,
		"isCached":           result.IsCached,
	})
}

// ProcessQuery handles POST /api/legal/process
func (h *LegalHandler) ProcessQuery(c *gin.Context) {
	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	qc, err := h.lawyers.ProcessLegalQuery(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, qc)
}

// Categories handles GET /api/legal/categories
func (h *LegalHandler) Categories(c *gin.Context) {
	categories, err := h.articles.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, categories)
}

// ListArticles handles GET /api/legal/articles/:type/:subclass
func (h *LegalHandler) ListArticles(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.articles.ListArticles(c.Request.Context(), c.Param("type"), c.Param("subclass"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// InsertArticles handles POST /api/legal/articles. A partial insert
// answers 207 Multi-Status and a fully failed one 422.
func (h *LegalHandler) InsertArticles(c *gin.Context) {
	var req service.InsertArticlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	report, err := h.articles.InsertArticles(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	writeBatchReport(c, report, report)
}

func writeBatchReport(c *gin.Context, report *service.BatchReport, data any) {
	status := http.StatusCreated
	switch report.Outcome() {
	case service.BatchPartial:
		status = http.StatusMultiStatus
	case service.BatchFailed:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"success": report.Outcome() != service.BatchFailed,
		"data":    data,
	})
}
