package repository

import (
	"context"
	"time"

	"github.com/blogforge/backend/internal/model"
	"gorm.io/gorm"
)

type keywordHistoryRepository struct {
	db *gorm.DB
}

// NewKeywordHistoryRepository 创建关键词历史仓储
func NewKeywordHistoryRepository(db *gorm.DB) KeywordHistoryRepository {
	return &keywordHistoryRepository{db: db}
}

func (r *keywordHistoryRepository) Record(ctx context.Context, postID string, keywords []string, usedAt time.Time) error {
	seen := make(map[string]bool, len(keywords))
	rows := make([]model.KeywordUse, 0, len(keywords))
	for _, k := range keywords {
		key := model.KeywordKey(k)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, model.KeywordUse{Keyword: key, PostID: postID, UsedAt: usedAt})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *keywordHistoryRepository) LastUsed(ctx context.Context, keywords []string) (map[string]time.Time, error) {
	keys := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if key := model.KeywordKey(k); key != "" {
			keys = append(keys, key)
		}
	}
	last := make(map[string]time.Time, len(keys))
	if len(keys) == 0 {
		return last, nil
	}

	var rows []model.KeywordUse
	if err := r.db.WithContext(ctx).Where("keyword IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.UsedAt.After(last[row.Keyword]) {
			last[row.Keyword] = row.UsedAt
		}
	}
	return last, nil
}

func (r *keywordHistoryRepository) List(ctx context.Context, keyword string) ([]model.KeywordUse, error) {
	var rows []model.KeywordUse
	query := r.db.WithContext(ctx).Order("used_at DESC").Order("id DESC")
	if key := model.KeywordKey(keyword); key != "" {
		query = query.Where("keyword = ?", key)
	}
	err := query.Find(&rows).Error
	return rows, err
}
