package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/markdown"
	"github.com/blogforge/backend/internal/utils"
)

const contentSystemPrompt = "You are an expert blog writer on digital accessibility. Write the full post in Markdown. " +
	"Start with a '# ' title, then write one '## ' section for every outline entry, in the given order and with the exact heading text. " +
	"Use the research findings, cite statistics, and keep a friendly, practical voice."

// ContentStage 按大纲撰写初稿
type ContentStage struct{}

func (ContentStage) Agent() model.AgentName { return model.AgentContent }

func (ContentStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nKeywords: %s\n\nBusiness context:\n%s\n\nOutline:\n",
		state.Topic, strings.Join(state.Keywords, ", "), state.Context)
	for _, o := range state.Outline {
		fmt.Fprintf(&b, "## %s\n", o)
	}
	b.WriteString("\nResearch findings:\n")
	for _, f := range state.ResearchFindings {
		fmt.Fprintf(&b, "- %s\n", truncate(f.Content, 2000))
	}

	res, err := env.Invoker.Invoke(ctx, primary(OpContent, contentSystemPrompt, b.String(), func() string {
		return SkeletonContent(state.Topic, state.Outline, state.ResearchFindings)
	}))
	if err != nil {
		return Output{}, err
	}

	text := utils.ExtractMarkdown(res.Text)
	title := markdown.Title(text)
	draft := AlignSections(state.Outline, markdown.StripTitle(text))
	return Output{
		Apply: func(s *model.GenerationState) {
			if title != "" {
				s.Title = title
			}
			s.DraftContent = draft
		},
		Summary:  fmt.Sprintf("Drafted %d words across %d sections", len(strings.Fields(draft)), len(state.Outline)),
		Degraded: res.Degraded,
	}, nil
}

// AlignSections 让正文的 H2 与大纲完全一致：按大纲顺序输出，缺失的小节补占位段落，
// 大纲外的小节降为 H3 并入前一个大纲小节
func AlignSections(outline []string, content string) string {
	preamble, sections := markdown.Split(content)
	bodies := make([]string, len(outline))
	found := make([]bool, len(outline))
	extras := make([][]string, len(outline))

	last := 0
	for _, s := range sections {
		idx := -1
		for i, o := range outline {
			if !found[i] && sameSection(o, s.Title) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			found[idx] = true
			bodies[idx] = markdown.CloseFences(strings.TrimSpace(s.Body))
			last = idx
			continue
		}
		if len(outline) == 0 {
			continue
		}
		sub := "### " + s.Title
		if body := strings.TrimSpace(s.Body); body != "" {
			sub += "\n\n" + markdown.CloseFences(body)
		}
		extras[last] = append(extras[last], sub)
	}

	var b strings.Builder
	if p := strings.TrimSpace(preamble); p != "" {
		b.WriteString(markdown.CloseFences(p))
		b.WriteString("\n\n")
	}
	for i, o := range outline {
		fmt.Fprintf(&b, "## %s\n\n", o)
		parts := make([]string, 0, 1+len(extras[i]))
		if found[i] && bodies[i] != "" {
			parts = append(parts, bodies[i])
		} else if !found[i] {
			parts = append(parts, placeholder(o))
		}
		parts = append(parts, extras[i]...)
		if len(parts) > 0 {
			b.WriteString(strings.Join(parts, "\n\n"))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sameSection(a, b string) bool {
	if markdown.IsTLDR(a) && markdown.IsTLDR(b) {
		return true
	}
	return markdown.Key(a) == markdown.Key(b)
}

func placeholder(title string) string {
	if markdown.IsTLDR(title) {
		return markdown.DefaultTLDR
	}
	return fmt.Sprintf("This section on %s will be expanded in a future revision.", strings.ToLower(title))
}

// SkeletonContent 内容生成失败时的兜底正文
func SkeletonContent(topic string, outline []string, findings []model.ResearchFinding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: A Comprehensive Guide\n\n", utils.TitleCase(topic))
	for i, o := range outline {
		fmt.Fprintf(&b, "## %s\n\n", o)
		switch {
		case markdown.IsTLDR(o):
			b.WriteString(markdown.DefaultTLDR)
		case i == 1 && len(findings) > 0 && strings.TrimSpace(findings[0].Content) != "":
			b.WriteString(strings.TrimSpace(findings[0].Content))
		default:
			fmt.Fprintf(&b, "Here are the key points about %s for this section.", topic)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
