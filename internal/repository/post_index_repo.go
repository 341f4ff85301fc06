package repository

import (
	"context"
	"errors"

	"github.com/blogforge/backend/internal/model"
	"gorm.io/gorm"
)

type postIndexRepository struct {
	db *gorm.DB
}

// NewPostIndexRepository 创建 PostIndex 仓储
func NewPostIndexRepository(db *gorm.DB) PostIndexRepository {
	return &postIndexRepository{db: db}
}

func (r *postIndexRepository) Create(ctx context.Context, idx *model.PostIndex) error {
	return r.db.WithContext(ctx).Create(idx).Error
}

func (r *postIndexRepository) Get(ctx context.Context, id string) (*model.PostIndex, error) {
	var idx model.PostIndex
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&idx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &idx, nil
}

func (r *postIndexRepository) List(ctx context.Context) ([]model.PostIndex, error) {
	var rows []model.PostIndex
	err := r.db.WithContext(ctx).Order("timestamp DESC").Order("id").Find(&rows).Error
	return rows, err
}

func (r *postIndexRepository) UpdateMeta(ctx context.Context, id, title string, lastModified float64) error {
	res := r.db.WithContext(ctx).
		Model(&model.PostIndex{}).
		Where("id = ?", id).
		Updates(map[string]any{"title": title, "last_modified": lastModified})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postIndexRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PostIndex{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
