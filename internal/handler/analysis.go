package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/service/analysis"
)

// AnalysisService 重新评分
type AnalysisService interface {
	AnalyzeContent(ctx context.Context, content string) (*analysis.Result, error)
	AnalyzePost(ctx context.Context, id string) (*model.Post, *analysis.Result, error)
}

type AnalysisHandler struct {
	service AnalysisService
}

func NewAnalysisHandler(service AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

type analyzeRequest struct {
	Content string `json:"content"`
}

// Analyze 对请求中的正文评分，结果不落盘
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.service.AnalyzeContent(c.Request.Context(), req.Content)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AnalyzePost 重新评分并写回文章
func (h *AnalysisHandler) AnalyzePost(c *gin.Context) {
	post, res, err := h.service.AnalyzePost(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post, "result": res})
}

func writeAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analysis.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrAnalysisUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		writePostError(c, err)
	}
}
