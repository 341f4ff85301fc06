package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/utils"
)

// DefaultKeyword 手动模式的固定关键词
const DefaultKeyword = "web accessibility"

const keywordSystemPrompt = "You are an SEO strategist. Propose ranked search keywords for the blog post, " +
	"most valuable first. Respond with a JSON array of strings."

// KeywordStage 选择关键词
type KeywordStage struct{}

func (KeywordStage) Agent() model.AgentName { return model.AgentKeyword }

func (KeywordStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	if state.Mode == model.ModeManual {
		return keywordOutput([]string{DefaultKeyword}, false), nil
	}

	user := fmt.Sprintf("Topic: %s\n\nBusiness context:\n%s\n\nReturn up to %d keywords.",
		state.Topic, state.Context, env.Settings.MaxKeywords)
	res, err := env.Invoker.Invoke(ctx, primary(OpKeywordExtraction, keywordSystemPrompt, user, func() string {
		return state.Topic
	}))
	if err != nil {
		return Output{}, err
	}
	keywords := dropCoolingDown(ctx, env, NormalizeKeywords(state.Topic, utils.ParseList(res.Text), 0))
	if limit := env.Settings.MaxKeywords; limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywordOutput(keywords, res.Degraded), nil
}

// dropCoolingDown 去掉冷却期内用过的关键词，第一个（话题本身）总是保留
func dropCoolingDown(ctx context.Context, env Env, keywords []string) []string {
	cooldown := env.Settings.KeywordCooldown
	if env.History == nil || cooldown <= 0 || len(keywords) <= 1 {
		return keywords
	}
	last, err := env.History.LastUsed(ctx, keywords[1:])
	if err != nil {
		klog.Warningf("读取关键词历史失败，跳过冷却检查: %v", err)
		return keywords
	}
	now := env.now()
	out := make([]string, 0, len(keywords))
	out = append(out, keywords[0])
	for _, k := range keywords[1:] {
		if used, ok := last[model.KeywordKey(k)]; ok && now.Sub(used) <= cooldown {
			klog.V(6).Infof("关键词仍在冷却期: keyword=%s, remaining=%s", k, (cooldown - now.Sub(used)).Round(time.Minute))
			continue
		}
		out = append(out, k)
	}
	return out
}

// NormalizeKeywords 话题放在首位，忽略大小写去重（先出现者保留），截断到 limit
func NormalizeKeywords(topic string, candidates []string, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(candidates)+1)
	add := func(k string) {
		k = strings.Join(strings.Fields(k), " ")
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, k)
	}
	add(topic)
	for _, c := range candidates {
		add(c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func keywordOutput(keywords []string, degraded bool) Output {
	return Output{
		Apply: func(s *model.GenerationState) {
			s.Keywords = keywords
		},
		Summary:  fmt.Sprintf("Selected %d keywords: %s", len(keywords), strings.Join(keywords, ", ")),
		Degraded: degraded,
	}
}
