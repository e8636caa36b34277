package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"annotation-service/backend/internal/entity"
)

type AttachmentRepo interface {
	Create(ctx context.Context, a *entity.Attachment) error
	// Get 没找到时返回 nil, nil
	Get(ctx context.Context, id string) (*entity.Attachment, error)
	ListByDoc(ctx context.Context, docID string) ([]entity.Attachment, error)
}

type mysqlAttachmentRepo struct {
	db *gorm.DB
}

var _ AttachmentRepo = (*mysqlAttachmentRepo)(nil)

func NewMySQLAttachmentRepo(db *gorm.DB) AttachmentRepo {
	return &mysqlAttachmentRepo{db: db}
}

func (r *mysqlAttachmentRepo) Create(ctx context.Context, a *entity.Attachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *mysqlAttachmentRepo) Get(ctx context.Context, id string) (*entity.Attachment, error) {
	var a entity.Attachment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没找到，返回 nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *mysqlAttachmentRepo) ListByDoc(ctx context.Context, docID string) ([]entity.Attachment, error) {
	var out []entity.Attachment
	err := r.db.WithContext(ctx).Where("doc_id = ?", docID).Order("created_at").Find(&out).Error
	return out, err
}
