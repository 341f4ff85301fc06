package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/markdown"
	"github.com/blogforge/backend/internal/utils"
	"k8s.io/klog/v2"
)

const humanizerSystemPrompt = "You are an editor who makes writing sound human, warm and conversational. " +
	"Rewrite the prose of the post but keep every '## ' heading exactly as written and in the same order. " +
	"Do not shorten the post. Return only the Markdown."

// HumanizerStage 润色正文，必须保持小节结构与篇幅
type HumanizerStage struct{}

func (HumanizerStage) Agent() model.AgentName { return model.AgentHumanizer }

func (HumanizerStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	input := state.QualityContent
	var b strings.Builder
	if suggestions := Suggestions(state.Analysis); len(suggestions) > 0 {
		b.WriteString("Reviewer suggestions:\n- ")
		b.WriteString(strings.Join(suggestions, "\n- "))
		b.WriteString("\n\n")
	}
	b.WriteString(input)

	res, err := env.Invoker.Invoke(ctx, primary(OpHumanize, humanizerSystemPrompt, b.String(), func() string {
		return input
	}))
	if err != nil {
		return Output{}, err
	}

	candidate := markdown.StripTitle(utils.ExtractMarkdown(res.Text))
	final := input
	degraded := res.Degraded
	summary := "Rewrote content in a conversational voice"
	if reason := CheckRewrite(input, candidate, env.Settings.HumanizerMinRatio); reason != "" {
		klog.Warningf("润色结果被拒绝，保留审核版本: runID=%s, reason=%s", state.RunID, reason)
		degraded = true
		summary = "Kept reviewed content: " + reason
	} else {
		final = candidate
	}
	if res.Degraded {
		summary = "Kept reviewed content after provider failure"
	}
	return Output{
		Apply: func(s *model.GenerationState) {
			s.FinalContent = final
		},
		Summary:  summary,
		Degraded: degraded,
	}, nil
}

// CheckRewrite 返回拒绝原因，空串表示可接受
func CheckRewrite(original, rewritten string, minRatio float64) string {
	want := sectionTitles(original)
	got := sectionTitles(rewritten)
	if len(want) != len(got) {
		return fmt.Sprintf("section count changed from %d to %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Sprintf("section %d changed from %q to %q", i+1, want[i], got[i])
		}
	}
	origLen := utf8.RuneCountInString(original)
	newLen := utf8.RuneCountInString(rewritten)
	if float64(newLen) < minRatio*float64(origLen) {
		return fmt.Sprintf("length %d below %.0f%% of %d", newLen, minRatio*100, origLen)
	}
	return ""
}

func sectionTitles(content string) []string {
	_, sections := markdown.Split(content)
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = markdown.PlainText(s.Title)
	}
	return titles
}
