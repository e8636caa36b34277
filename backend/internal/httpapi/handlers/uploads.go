package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"annotation-service/backend/internal/attachment"
)

type UploadHandler struct {
	svc *attachment.Service
}

func NewUploadHandler(svc *attachment.Service) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// Register 图片内容挂在 public 上：编辑器里的 <img> 带不了 Authorization
func (h *UploadHandler) Register(public, authed gin.IRoutes) {
	public.GET("/uploads/:id/raw", h.Raw())
	authed.POST("/uploads", h.Create())
	authed.GET("/uploads/:id", h.Get())
	authed.GET("/documents/:docId/uploads", h.ListByDoc())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, attachment.ErrAttachmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, attachment.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, attachment.ErrEmpty):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Create 接收 multipart 表单：file + docId，返回附件元数据
func (h *UploadHandler) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		docID := c.PostForm("docId")
		if docID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing docId"})
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		// 多读一个字节，超限交给 Save 判断
		data, err := io.ReadAll(io.LimitReader(f, h.svc.MaxBytes()+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := h.svc.Save(c.Request.Context(), docID, fh.Filename, data)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, a)
	}
}

func (h *UploadHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := h.svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// Raw 返回图片内容，编辑器里的 <img src> 指向这里
func (h *UploadHandler) Raw() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, data, err := h.svc.Open(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		// 附件内容不可变
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.Data(http.StatusOK, a.MIME, data)
	}
}

func (h *UploadHandler) ListByDoc() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.svc.ListByDoc(c.Request.Context(), c.Param("docId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"uploads": list})
	}
}
