package learning

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/service/reflexion"
	"github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/httputil"
)

type Handler struct {
	service reflexion.Service
}

func NewHandler(service reflexion.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	learning := r.Group("/learning")
	{
		learning.GET("/metrics", h.PerformanceMetrics)
		learning.GET("/patterns", h.AnalyzePatterns)
		learning.GET("/insights", h.GenerateInsights)
		learning.GET("/prompt-improvements", h.PromptImprovements)
		learning.GET("/export", h.Export)
		learning.POST("/import", h.Import)
	}
}

func specialty(c *gin.Context) string {
	return strings.TrimSpace(c.Query("specialty"))
}

func (h *Handler) PerformanceMetrics(c *gin.Context) {
	metrics, err := h.service.PerformanceMetrics(c.Request.Context(), specialty(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, metrics)
}

func (h *Handler) AnalyzePatterns(c *gin.Context) {
	patterns, err := h.service.AnalyzePatterns(c.Request.Context(), specialty(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patterns)
}

func (h *Handler) GenerateInsights(c *gin.Context) {
	insights, err := h.service.GenerateInsights(c.Request.Context(), specialty(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, insights, len(insights))
}

func (h *Handler) PromptImprovements(c *gin.Context) {
	improvements, err := h.service.PromptImprovements(c.Request.Context(), specialty(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, improvements)
}

func (h *Handler) Export(c *gin.Context) {
	data, err := h.service.Export(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, data)
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (h *Handler) Import(c *gin.Context) {
	var data model.LearningExport
	if err := c.ShouldBindJSON(&data); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid learning export", err))
		return
	}

	n, err := h.service.Import(c.Request.Context(), data)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, importResponse{Imported: n})
}
