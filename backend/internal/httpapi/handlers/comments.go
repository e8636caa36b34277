package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"annotation-service/backend/internal/anchor"
	"annotation-service/backend/internal/cache"
	"annotation-service/backend/internal/markup"
)

// CommentsNotifier 在批注被修改后通知已打开的文档会话
type CommentsNotifier interface {
	CommentsChanged(ctx context.Context, docID string) error
}

type CommentHandler struct {
	cache    cache.CommentCache
	notifier CommentsNotifier
}

func NewCommentHandler(c cache.CommentCache, n CommentsNotifier) *CommentHandler {
	return &CommentHandler{cache: c, notifier: n}
}

func (h *CommentHandler) Register(r gin.IRoutes) {
	r.GET("/documents/:docId/comments", h.List())
	r.POST("/documents/:docId/comments", h.Create())
	r.PUT("/documents/:docId/comments/:id", h.Update())
	r.DELETE("/documents/:docId/comments/:id", h.Delete())
}

type commentReq struct {
	Range   *anchor.Range `json:"range" binding:"required"`
	Message any           `json:"message"`
}

func (r commentReq) valid() bool {
	return r.Range != nil && r.Range.Index >= 0 && r.Range.Length >= 0
}

func (h *CommentHandler) notify(c *gin.Context, docID string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.CommentsChanged(c.Request.Context(), docID); err != nil {
		// 缓存已经改好，会话下次重算时会读到
		log.Printf("notify comments changed (doc=%s): %v", docID, err)
	}
}

func (h *CommentHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		comments, err := h.cache.Snapshot(c.Request.Context(), c.Param("docId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"comments": comments})
	}
}

func (h *CommentHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		docID := c.Param("docId")
		var req commentReq
		if err := c.ShouldBindJSON(&req); err != nil || !req.valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment range"})
			return
		}
		id, err := markup.NewCommentID()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := h.cache.Put(c.Request.Context(), docID, id, anchor.Comment{Range: *req.Range, Message: req.Message}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.notify(c, docID)
		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

func (h *CommentHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, id := c.Param("docId"), c.Param("id")
		var req commentReq
		if err := c.ShouldBindJSON(&req); err != nil || !req.valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment range"})
			return
		}
		if _, err := h.cache.Get(c.Request.Context(), docID, id); err != nil {
			if errors.Is(err, cache.ErrCommentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := h.cache.Put(c.Request.Context(), docID, id, anchor.Comment{Range: *req.Range, Message: req.Message}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.notify(c, docID)
		c.JSON(http.StatusOK, gin.H{"id": id})
	}
}

func (h *CommentHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, id := c.Param("docId"), c.Param("id")
		if err := h.cache.Delete(c.Request.Context(), docID, id); err != nil {
			if errors.Is(err, cache.ErrCommentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.notify(c, docID)
		c.Status(http.StatusNoContent)
	}
}
