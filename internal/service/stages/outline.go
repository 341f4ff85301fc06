package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/markdown"
	"github.com/blogforge/backend/internal/utils"
)

// 大纲中固定的三个小节
const (
	SectionTLDR       = "TLDR"
	SectionQuickFacts = "Quick Facts"
	SectionConclusion = "Conclusion"
)

const outlineSystemPrompt = "You are an SEO content strategist. Create a blog outline whose headings match what people type into " +
	"search engines. Include an In a Nutshell section, 5-9 main sections, a Quick Facts section and a short conclusion. " +
	"Return one heading per line."

var (
	titleLine    = regexp.MustCompile(`^\s*#\s+\S`)
	numberPrefix = regexp.MustCompile(`^(?:\d+[.)]|[ivx]+\.)\s+`)
)

// OutlineStage 生成章节大纲
type OutlineStage struct{}

func (OutlineStage) Agent() model.AgentName { return model.AgentOutline }

func (OutlineStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nKeywords: %s\n\nResearch findings:\n", state.Topic, strings.Join(state.Keywords, ", "))
	for _, f := range state.ResearchFindings {
		fmt.Fprintf(&b, "- %s\n", truncate(f.Content, 1500))
	}

	res, err := env.Invoker.Invoke(ctx, primary(OpOutline, outlineSystemPrompt, b.String(), func() string {
		return "- " + strings.Join(SectionPool(state.Topic)[:4], "\n- ")
	}))
	if err != nil {
		return Output{}, err
	}

	outline := NormalizeOutline(state.Topic, parseHeadings(res.Text), env.Settings.OutlineMin, env.Settings.OutlineMax)
	return Output{
		Apply: func(s *model.GenerationState) {
			s.Outline = outline
		},
		Summary:  fmt.Sprintf("Created outline with %d sections", len(outline)),
		Degraded: res.Degraded,
	}, nil
}

func parseHeadings(text string) []string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		// H1 是文章标题而不是小节
		if titleLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	items := utils.ParseList(strings.Join(kept, "\n"))
	for i, it := range items {
		items[i] = strings.TrimSpace(numberPrefix.ReplaceAllString(it, ""))
	}
	return items
}

// SectionPool 大纲不足时按顺序补充的小节
func SectionPool(topic string) []string {
	t := utils.TitleCase(topic)
	return []string{
		"Introduction",
		fmt.Sprintf("What Is %s?", t),
		fmt.Sprintf("Why %s Matters", t),
		fmt.Sprintf("How to Get Started with %s", t),
		fmt.Sprintf("Best Practices for %s", t),
		fmt.Sprintf("Common %s Mistakes", t),
		"Case Studies",
		"Industry Spotlight",
		"Tools and Resources",
		"FAQ",
		"Next Steps",
	}
}

// NormalizeOutline TLDR 在首位，Quick Facts 与 Conclusion 在末尾，
// 正文小节去重后用 SectionPool 补足到 minSections，超过 maxSections 时截断。
func NormalizeOutline(topic string, candidates []string, minSections, maxSections int) []string {
	const fixed = 3
	seen := map[string]bool{
		markdown.Key(SectionTLDR):       true,
		markdown.Key(SectionQuickFacts): true,
		markdown.Key(SectionConclusion): true,
	}
	var body []string
	add := func(title string) {
		// 大纲标题只保留纯文本，导出后的 H2 才能与大纲逐字一致
		title = strings.Join(strings.Fields(strings.Trim(markdown.PlainText(title), "#:-* ")), " ")
		key := markdown.Key(title)
		if key == "" || seen[key] || markdown.IsTLDR(title) || isConclusion(key) {
			return
		}
		seen[key] = true
		body = append(body, title)
	}
	for _, c := range candidates {
		add(c)
	}

	maxBody := maxSections - fixed
	if maxBody < 0 {
		maxBody = 0
	}
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	for _, p := range SectionPool(topic) {
		if len(body)+fixed >= minSections {
			break
		}
		add(p)
	}
	for i := 1; len(body)+fixed < minSections; i++ {
		add(fmt.Sprintf("Key Insight %d", i))
	}

	outline := make([]string, 0, len(body)+fixed)
	outline = append(outline, SectionTLDR)
	outline = append(outline, body...)
	return append(outline, SectionQuickFacts, SectionConclusion)
}

func isConclusion(key string) bool {
	return key == "conclusion" || strings.HasPrefix(key, "conclusion ") || key == "final thoughts" || key == "wrapping up"
}
