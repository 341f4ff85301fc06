// Package stages 实现流水线的七个阶段。
// 每个阶段只读 GenerationState，产出 Output，由编排器合并回状态。
package stages

import (
	"context"
	"time"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/contextdocs"
	"github.com/blogforge/backend/internal/pkg/llm"
)

// 计费用的 operation 标签
const (
	OpContextAnalysis   = "context_analysis"
	OpKeywordExtraction = "keyword_extraction"
	OpResearch          = "research"
	OpOutline           = "outline_generation"
	OpContent           = "content_generation"
	OpQualityCheck      = "quality_check"
	OpHumanize          = "humanize_content"
	OpReanalysis        = "content_reanalysis"
)

// Settings 阶段用到的可调参数
type Settings struct {
	MaxKeywords       int
	OutlineMin        int
	OutlineMax        int
	HumanizerMinRatio float64
	KeywordCooldown   time.Duration
}

func DefaultSettings() Settings {
	return Settings{MaxKeywords: 20, OutlineMin: 8, OutlineMax: 14, HumanizerMinRatio: 0.6, KeywordCooldown: 24 * time.Hour}
}

// SettingsFromConfig 零值回落到默认值
func SettingsFromConfig(pc config.PipelineConfig) Settings {
	s := DefaultSettings()
	if pc.MaxKeywords > 0 {
		s.MaxKeywords = pc.MaxKeywords
	}
	if pc.OutlineMin > 0 {
		s.OutlineMin = pc.OutlineMin
	}
	if pc.OutlineMax > 0 {
		s.OutlineMax = pc.OutlineMax
	}
	if pc.HumanizerMinRatio > 0 {
		s.HumanizerMinRatio = pc.HumanizerMinRatio
	}
	if pc.KeywordCooldown > 0 {
		s.KeywordCooldown = pc.KeywordCooldown
	}
	return s
}

// Documents 背景文档来源
type Documents interface {
	Documents() []contextdocs.Document
}

// KeywordHistory 关键词最近一次使用时间，键为 model.KeywordKey
type KeywordHistory interface {
	LastUsed(ctx context.Context, keywords []string) (map[string]time.Time, error)
}

// Env 阶段运行环境
type Env struct {
	Invoker  *llm.Invoker
	Settings Settings
	Docs     Documents
	History  KeywordHistory
	Now      func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Output 阶段产出
type Output struct {
	// Apply 把结果合并进状态，只由编排器调用
	Apply    func(state *model.GenerationState)
	Summary  string
	Score    *float64
	Degraded bool
}

// Stage 流水线阶段
type Stage interface {
	Agent() model.AgentName
	Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error)
}

// Pipeline 固定顺序的七个阶段
func Pipeline() []Stage {
	return []Stage{
		ContextStage{},
		KeywordStage{},
		ResearchStage{},
		OutlineStage{},
		ContentStage{},
		QualityStage{},
		HumanizerStage{},
	}
}

func primary(op, system, user string, fallback func() string) llm.Call {
	return llm.Call{
		Target:    llm.TargetPrimary,
		Operation: op,
		System:    system,
		User:      user,
		Fallback:  fallback,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
