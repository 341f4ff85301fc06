package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/cost"
)

// CostSource 已持久化的计费记录
type CostSource interface {
	List(ctx context.Context, limit int) ([]model.CostRecord, error)
}

type CostHandler struct {
	source CostSource
	now    func() time.Time
}

func NewCostHandler(source CostSource) *CostHandler {
	return &CostHandler{source: source, now: time.Now}
}

func (h *CostHandler) entries(c *gin.Context) ([]model.CostEntry, bool) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return nil, false
		}
		limit = n
	}
	records, err := h.source.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	entries := make([]model.CostEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.ToEntry())
	}
	return entries, true
}

func (h *CostHandler) List(c *gin.Context) {
	entries, ok := h.entries(c)
	if !ok {
		return
	}
	summary := cost.Summarize(entries)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   summary.TotalCost,
		"summary": summary,
	})
}

func (h *CostHandler) Report(c *gin.Context) {
	entries, ok := h.entries(c)
	if !ok {
		return
	}
	report := cost.Summarize(entries).Report(h.now())
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report))
}
