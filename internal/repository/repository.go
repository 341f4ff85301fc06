package repository

import (
	"context"
	"errors"
	"time"

	"github.com/blogforge/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// PostIndexRepository 文章索引
type PostIndexRepository interface {
	Create(ctx context.Context, idx *model.PostIndex) error
	Get(ctx context.Context, id string) (*model.PostIndex, error)
	// List 按创建时间倒序
	List(ctx context.Context) ([]model.PostIndex, error)
	UpdateMeta(ctx context.Context, id, title string, lastModified float64) error
	Exists(ctx context.Context, id string) (bool, error)
}

// CostRecordRepository 计费记录
type CostRecordRepository interface {
	Create(ctx context.Context, record *model.CostRecord) error
	// List 按写入顺序返回，limit<=0 表示全部
	List(ctx context.Context, limit int) ([]model.CostRecord, error)
	SumByOperation(ctx context.Context) (map[string]float64, error)
}

// KeywordHistoryRepository 关键词使用历史
type KeywordHistoryRepository interface {
	Record(ctx context.Context, postID string, keywords []string, usedAt time.Time) error
	// LastUsed 返回每个关键词（按 KeywordKey）最近一次使用时间，从未用过的不在结果里
	LastUsed(ctx context.Context, keywords []string) (map[string]time.Time, error)
	// List 按使用时间倒序，keyword 为空时返回全部
	List(ctx context.Context, keyword string) ([]model.KeywordUse, error)
}
