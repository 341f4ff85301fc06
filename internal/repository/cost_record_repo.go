package repository

import (
	"context"

	"github.com/blogforge/backend/internal/model"
	"gorm.io/gorm"
)

type costRecordRepository struct {
	db *gorm.DB
}

// NewCostRecordRepository 创建 CostRecord 仓储
func NewCostRecordRepository(db *gorm.DB) CostRecordRepository {
	return &costRecordRepository{db: db}
}

// Create 新增计费记录
func (r *costRecordRepository) Create(ctx context.Context, record *model.CostRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// List 按写入顺序返回最近 limit 条
func (r *costRecordRepository) List(ctx context.Context, limit int) ([]model.CostRecord, error) {
	var records []model.CostRecord
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	// 反转回追加顺序
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// SumByOperation 按 operation 汇总费用
func (r *costRecordRepository) SumByOperation(ctx context.Context) (map[string]float64, error) {
	var rows []struct {
		Operation string
		Total     float64
	}
	err := r.db.WithContext(ctx).
		Model(&model.CostRecord{}).
		Select("operation, SUM(cost) AS total").
		Group("operation").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.Operation] = row.Total
	}
	return out, nil
}
