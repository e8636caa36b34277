package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"annotation-service/backend/internal/blob"
	"annotation-service/backend/internal/entity"
	"annotation-service/backend/internal/store"
	"annotation-service/backend/internal/upload"
)

var (
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrTooLarge           = errors.New("attachment too large")
	ErrEmpty              = errors.New("attachment is empty")
)

// DefaultMaxBytes 没有配置上限时使用
const DefaultMaxBytes = 10 << 20

// BlobStore 是附件内容的存储
type BlobStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// Service 保存上传的图片：内容写 blob，元数据写 MySQL，返回可访问的 URL
type Service struct {
	blobs    BlobStore
	repo     store.AttachmentRepo
	baseURL  string
	maxBytes int64
}

func NewService(blobs BlobStore, repo store.AttachmentRepo, baseURL string, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		blobs:    blobs,
		repo:     repo,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

// URLFor 是附件内容的访问地址
func (s *Service) URLFor(id string) string {
	return s.baseURL + "/v1/uploads/" + id + "/raw"
}

func (s *Service) Save(ctx context.Context, docID, name string, data []byte) (*entity.Attachment, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxBytes)))
	}

	id := uuid.NewString()
	a := &entity.Attachment{
		ID:        id,
		DocID:     docID,
		Name:      name,
		MIME:      mimetype.Detect(data).String(),
		Size:      int64(len(data)),
		BlobKey:   blob.Key(id),
		URL:       s.URLFor(id),
		CreatedAt: time.Now(),
	}
	if err := s.blobs.Put(a.BlobKey, data); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := s.repo.Create(ctx, a); err != nil {
		// 元数据没写成功，内容也不留
		_ = s.blobs.Delete(a.BlobKey)
		return nil, fmt.Errorf("save attachment metadata: %w", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Attachment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAttachmentNotFound
	}
	return a, nil
}

// Open 返回元数据和内容
func (s *Service) Open(ctx context.Context, id string) (*entity.Attachment, []byte, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(a.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			return nil, nil, ErrAttachmentNotFound
		}
		return nil, nil, err
	}
	return a, data, nil
}

func (s *Service) ListByDoc(ctx context.Context, docID string) ([]entity.Attachment, error) {
	return s.repo.ListByDoc(ctx, docID)
}

// UploadFunc 把 Save 包装成编辑器上传回调
func (s *Service) UploadFunc(docID string) upload.UploadFunc {
	return func(ctx context.Context, f upload.File) (string, error) {
		a, err := s.Save(ctx, docID, f.Name, f.Data)
		if err != nil {
			return "", err
		}
		return a.URL, nil
	}
}
