package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/utils"
)

// DefaultConfidence 模型未自报置信度时使用
const DefaultConfidence = 0.7

const researchSystemPrompt = "You are a research assistant. Gather current facts, statistics, regulations and expert opinions " +
	"on the topic. Cite your sources. If you can, answer as JSON: " +
	`{"findings":[{"content":"...","sources":["..."],"confidence":0.0-1.0}]}`

var (
	sourceLine     = regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?(?:sources?|references?)\s*:\s*(\S.*?)\s*$`)
	confidenceLine = regexp.MustCompile(`(?i)confidence\s*[:=]\s*([0-9]*\.?[0-9]+)`)
)

type findingPayload struct {
	Content    string   `json:"content"`
	Sources    []string `json:"sources"`
	Confidence *float64 `json:"confidence"`
}

// ResearchStage 调用研究模型收集资料
type ResearchStage struct{}

func (ResearchStage) Agent() model.AgentName { return model.AgentResearch }

func (ResearchStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	user := fmt.Sprintf("Topic: %s\nKeywords: %s", state.Topic, strings.Join(state.Keywords, ", "))
	call := primary(OpResearch, researchSystemPrompt, user, func() string {
		return fmt.Sprintf("Research on %s is unavailable; rely on general knowledge.", state.Topic)
	})
	call.Target = llm.TargetResearch

	res, err := env.Invoker.Invoke(ctx, call)
	if err != nil {
		return Output{}, err
	}

	var findings []model.ResearchFinding
	if res.Degraded {
		findings = []model.ResearchFinding{{Content: res.Text, Sources: []string{}, Confidence: 0}}
	} else {
		findings = ParseFindings(res.Text, res.Sources)
	}
	return Output{
		Apply: func(s *model.GenerationState) {
			s.ResearchFindings = findings
		},
		Summary:  fmt.Sprintf("Collected %d research findings from %d sources", len(findings), countSources(findings)),
		Degraded: res.Degraded,
	}, nil
}

// ParseFindings 优先解析 JSON，否则整段文本作为一条结论
func ParseFindings(text string, citations []string) []model.ResearchFinding {
	var wrapped struct {
		Findings []findingPayload `json:"findings"`
	}
	var payloads []findingPayload
	if raw := utils.ExtractJSON(text); strings.HasPrefix(raw, "{") {
		if err := utils.DecodeJSON(raw, &wrapped); err == nil && len(wrapped.Findings) > 0 {
			payloads = wrapped.Findings
		} else {
			var single findingPayload
			if err := utils.DecodeJSON(raw, &single); err == nil && strings.TrimSpace(single.Content) != "" {
				payloads = []findingPayload{single}
			}
		}
	}

	if len(payloads) == 0 {
		conf := DefaultConfidence
		if m := confidenceLine.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				conf = v
			}
		}
		var sources []string
		for _, m := range sourceLine.FindAllStringSubmatch(text, -1) {
			sources = append(sources, splitSources(m[1])...)
		}
		return []model.ResearchFinding{{
			Content:    strings.TrimSpace(text),
			Sources:    mergeSources(citations, sources),
			Confidence: clamp(conf, 0, 1),
		}}
	}

	findings := make([]model.ResearchFinding, 0, len(payloads))
	for i, p := range payloads {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		conf := DefaultConfidence
		if p.Confidence != nil {
			conf = *p.Confidence
		}
		var extra []string
		if i == 0 {
			extra = citations
		}
		findings = append(findings, model.ResearchFinding{
			Content:    strings.TrimSpace(p.Content),
			Sources:    mergeSources(p.Sources, extra),
			Confidence: clamp(conf, 0, 1),
		})
	}
	return findings
}

func splitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mergeSources(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func countSources(findings []model.ResearchFinding) int {
	n := 0
	for _, f := range findings {
		n += len(f.Sources)
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
