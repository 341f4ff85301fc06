// Package analysis 对已保存的文章或任意正文重新评分
package analysis

import (
	"context"
	"errors"
	"strings"

	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/service/postmanager"
	"github.com/blogforge/backend/internal/service/stages"
)

var (
	ErrEmptyContent = errors.New("content is required")
	// ErrAnalysisUnavailable 评分只能用兜底结果，不覆盖文章已有的分析
	ErrAnalysisUnavailable = errors.New("analysis unavailable")
)

// PostStore 文章读写
type PostStore interface {
	Load(ctx context.Context, id string) (*model.Post, error)
	Update(ctx context.Context, id string, upd postmanager.PostUpdate) (*model.Post, error)
}

// Result 一次评分的结果
type Result struct {
	Analysis    *model.Analysis `json:"analysis"`
	Suggestions []string        `json:"suggestions"`
	Degraded    bool            `json:"degraded"`
}

type Service struct {
	invoker *llm.Invoker
	posts   PostStore
}

func NewService(invoker *llm.Invoker, posts PostStore) *Service {
	return &Service{invoker: invoker, posts: posts}
}

// AnalyzeContent 对任意正文评分，不落盘
func (s *Service) AnalyzeContent(ctx context.Context, content string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	a, degraded, err := stages.Analyze(ctx, s.invoker, stages.OpReanalysis, content)
	if err != nil {
		return nil, err
	}
	return &Result{Analysis: a, Suggestions: stages.Suggestions(a), Degraded: degraded}, nil
}

// AnalyzePost 对已保存文章重新评分，分析结果和指标通过 Update 写回
func (s *Service) AnalyzePost(ctx context.Context, id string) (*model.Post, *Result, error) {
	post, err := s.posts.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.AnalyzeContent(ctx, postmanager.RenderPost(post))
	if err != nil {
		return nil, nil, err
	}
	if res.Degraded {
		klog.Warningf("[analysis] 评分不可用，保留原分析: postID=%s", id)
		return post, res, ErrAnalysisUnavailable
	}

	metrics := stages.BuildMetrics(&model.GenerationState{
		FinalContent: post.Content,
		Keywords:     post.Keywords,
		Analysis:     res.Analysis,
	})
	updated, err := s.posts.Update(ctx, id, postmanager.PostUpdate{Analysis: res.Analysis, Metrics: metrics})
	if err != nil {
		return nil, nil, err
	}
	klog.V(6).Infof("[analysis] 重新评分: postID=%s, overall=%.2f", id, res.Analysis.OverallScore)
	return updated, res, nil
}
