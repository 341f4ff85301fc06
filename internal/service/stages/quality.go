package stages

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/utils"
	"k8s.io/klog/v2"
)

// FallbackScore 审核失败时各维度的默认分
const FallbackScore = 7.0

const qualitySystemPrompt = "You are a content quality reviewer. Score the blog post from 0 to 10 on structure, accessibility and empathy. " +
	"Do not rewrite the post. Respond with JSON: " +
	`{"structure":{"score":0,"strengths":[],"weaknesses":[],"suggestions":[]},"accessibility":{...},"empathy":{...}}`

type dimensionPayload struct {
	Score       *float64       `json:"score"`
	Strengths   []string       `json:"strengths"`
	Weaknesses  []string       `json:"weaknesses"`
	Suggestions []string       `json:"suggestions"`
	Metadata    map[string]any `json:"metadata"`
}

type analysisPayload struct {
	Structure     *dimensionPayload `json:"structure"`
	Accessibility *dimensionPayload `json:"accessibility"`
	Empathy       *dimensionPayload `json:"empathy"`
}

// QualityStage 对初稿打分，不修改正文
type QualityStage struct{}

func (QualityStage) Agent() model.AgentName { return model.AgentQuality }

func (QualityStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	draft := state.DraftContent
	analysis, degraded, err := Analyze(ctx, env.Invoker, OpQualityCheck, draft)
	if err != nil {
		return Output{}, err
	}
	score := analysis.OverallScore
	return Output{
		Apply: func(s *model.GenerationState) {
			s.Analysis = analysis
			s.QualityContent = draft
		},
		Summary: fmt.Sprintf("Scored structure %.1f, accessibility %.1f, empathy %.1f",
			analysis.Structure.Score, analysis.Accessibility.Score, analysis.Empathy.Score),
		Score:    &score,
		Degraded: degraded,
	}, nil
}

// Analyze 对正文打分；模型失败或结果无法解析时返回默认评分并标记 degraded
func Analyze(ctx context.Context, invoker *llm.Invoker, operation, content string) (*model.Analysis, bool, error) {
	res, err := invoker.Invoke(ctx, primary(operation, qualitySystemPrompt, content, func() string {
		return utils.ToJSON(FallbackAnalysis())
	}))
	if err != nil {
		return nil, false, err
	}
	analysis, ok := ParseAnalysis(res.Text)
	if !ok {
		klog.Warningf("质量审核结果无法解析，使用默认评分: operation=%s", operation)
		return FallbackAnalysis(), true, nil
	}
	return analysis, res.Degraded, nil
}

// ParseAnalysis 解析审核 JSON，分数截断到 [0,10]，总分为三项平均
func ParseAnalysis(text string) (*model.Analysis, bool) {
	var p analysisPayload
	if err := utils.DecodeJSON(text, &p); err != nil {
		return nil, false
	}
	if p.Structure == nil && p.Accessibility == nil && p.Empathy == nil {
		return nil, false
	}
	a := &model.Analysis{
		Structure:     p.Structure.toDimension(),
		Accessibility: p.Accessibility.toDimension(),
		Empathy:       p.Empathy.toDimension(),
	}
	a.OverallScore = round2((a.Structure.Score + a.Accessibility.Score + a.Empathy.Score) / 3)
	return a, true
}

func (d *dimensionPayload) toDimension() model.DimensionAnalysis {
	if d == nil || d.Score == nil {
		return fallbackDimension()
	}
	return model.DimensionAnalysis{
		Score:       clamp(*d.Score, 0, 10),
		Strengths:   nonNil(d.Strengths),
		Weaknesses:  nonNil(d.Weaknesses),
		Suggestions: nonNil(d.Suggestions),
		Metadata:    d.Metadata,
	}
}

// FallbackAnalysis 各维度 7.0 分、反馈为空
func FallbackAnalysis() *model.Analysis {
	return &model.Analysis{
		OverallScore:  FallbackScore,
		Structure:     fallbackDimension(),
		Accessibility: fallbackDimension(),
		Empathy:       fallbackDimension(),
	}
}

func fallbackDimension() model.DimensionAnalysis {
	return model.DimensionAnalysis{
		Score:       FallbackScore,
		Strengths:   []string{},
		Weaknesses:  []string{},
		Suggestions: []string{},
	}
}

// Suggestions 汇总三个维度的改进建议
func Suggestions(a *model.Analysis) []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, d := range []model.DimensionAnalysis{a.Structure, a.Accessibility, a.Empathy} {
		for _, s := range d.Suggestions {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
