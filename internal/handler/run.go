package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/service/orchestrator"
	"github.com/blogforge/backend/internal/service/runs"
)

// RunService 后台生成任务
type RunService interface {
	Submit(topic string, mode model.Mode) (string, error)
	Get(id string) (runs.Run, error)
}

type RunHandler struct {
	service RunService
}

func NewRunHandler(service RunService) *RunHandler {
	return &RunHandler{service: service}
}

type createRunRequest struct {
	Topic string `json:"topic" binding:"required"`
	Mode  string `json:"mode"`
}

func (h *RunHandler) Create(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode == "" {
		req.Mode = string(model.ModeAuto)
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.Submit(req.Topic, mode)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyTopic) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, runs.ErrManagerStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.service.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}
