package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/markdown"
	"github.com/blogforge/backend/internal/service/postmanager"
)

// PostService 文章读写
type PostService interface {
	List(ctx context.Context) ([]model.PostSummary, error)
	Load(ctx context.Context, id string) (*model.Post, error)
	Markdown(ctx context.Context, id string) (string, error)
	Update(ctx context.Context, id string, upd postmanager.PostUpdate) (*model.Post, error)
}

type PostHandler struct {
	service PostService
}

func NewPostHandler(service PostService) *PostHandler {
	return &PostHandler{service: service}
}

func (h *PostHandler) List(c *gin.Context) {
	posts, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.service.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		writePostError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostHandler) Markdown(c *gin.Context) {
	md, err := h.service.Markdown(c.Request.Context(), c.Param("id"))
	if err != nil {
		writePostError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (h *PostHandler) Preview(c *gin.Context) {
	md, err := h.service.Markdown(c.Request.Context(), c.Param("id"))
	if err != nil {
		writePostError(c, err)
		return
	}
	html, err := markdown.ToHTML(md)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

type updatePostRequest struct {
	ID      *string `json:"id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (h *PostHandler) Update(c *gin.Context) {
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	post, err := h.service.Update(c.Request.Context(), c.Param("id"), postmanager.PostUpdate{
		ID:      req.ID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writePostError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func writePostError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, postmanager.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
	case errors.Is(err, postmanager.ErrIDImmutable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
