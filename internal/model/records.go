package model

import (
	"strings"
	"time"
)

// PostIndex 文章索引表，文件是数据本体，索引负责排序和定位
type PostIndex struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Title        string    `json:"title" gorm:"size:500"`
	Topic        string    `json:"topic" gorm:"size:255;index"`
	Timestamp    float64   `json:"timestamp" gorm:"index"`
	LastModified float64   `json:"last_modified"`
	JSONPath     string    `json:"json_path" gorm:"size:1000"`
	MarkdownPath string    `json:"markdown_path" gorm:"size:1000"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (PostIndex) TableName() string {
	return "post_index"
}

// CostRecord 计费记录落库
type CostRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Provider       string    `json:"provider" gorm:"size:100;index"`
	Model          string    `json:"model" gorm:"size:255;index"`
	Operation      string    `json:"operation" gorm:"size:255;index"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	Cost           float64   `json:"cost"`
	CumulativeCost float64   `json:"cumulative_cost"`
	Priced         bool      `json:"priced"`
	Warning        string    `json:"warning" gorm:"size:500"`
	RecordedAt     time.Time `json:"recorded_at" gorm:"index"`
	CreatedAt      time.Time `json:"created_at"`
}

func (CostRecord) TableName() string {
	return "cost_entries"
}

// ToEntry 转回内存中的计费条目
func (r CostRecord) ToEntry() CostEntry {
	return CostEntry{
		Timestamp:      r.RecordedAt,
		Provider:       r.Provider,
		Model:          r.Model,
		Operation:      r.Operation,
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
		Cost:           r.Cost,
		CumulativeCost: r.CumulativeCost,
		Priced:         r.Priced,
		Warning:        r.Warning,
	}
}

// KeywordUse 关键词使用记录，用于判断冷却期
type KeywordUse struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Keyword   string    `json:"keyword" gorm:"size:255;index"`
	PostID    string    `json:"post_id" gorm:"size:36;index"`
	UsedAt    time.Time `json:"used_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

func (KeywordUse) TableName() string {
	return "keyword_history"
}

// KeywordKey 关键词比较用的键：小写、折叠空白
func KeywordKey(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}
