package stages

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/cost"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/pkg/llm/llmtest"
	"github.com/blogforge/backend/internal/pkg/markdown"
)

type testEnv struct {
	env      Env
	primary  *llmtest.ScriptedProvider
	research *llmtest.ScriptedProvider
	ledger   *cost.Ledger
}

func newTestEnv() *testEnv {
	p := llmtest.New("openai", "gpt-4o-mini")
	r := llmtest.New("perplexity", "llama-3-sonar-small-online")
	ledger := cost.NewLedger()
	inv := llm.NewInvoker(
		cost.NewRecorder(cost.DefaultPriceTable(), ledger),
		llm.RetryPolicy{MaxRetries: 1},
		llm.WithEndpoint(llm.TargetPrimary, p, time.Second),
		llm.WithEndpoint(llm.TargetResearch, r, time.Second),
	)
	return &testEnv{
		env:      Env{Invoker: inv, Settings: DefaultSettings()},
		primary:  p,
		research: r,
		ledger:   ledger,
	}
}

func run(t *testing.T, stage Stage, state *model.GenerationState, env Env) Output {
	t.Helper()
	out, err := stage.Run(context.Background(), state, env)
	if err != nil {
		t.Fatalf("%s error: %v", stage.Agent(), err)
	}
	out.Apply(state)
	return out
}

func TestManualModeIsDeterministicWithoutCalls(t *testing.T) {
	te := newTestEnv()
	for _, topic := range []string{"WCAG Compliance", "Screen Readers"} {
		state := model.NewGenerationState("r", topic, model.ModeManual)
		run(t, ContextStage{}, state, te.env)
		run(t, KeywordStage{}, state, te.env)

		if state.Context != DefaultBusinessContext {
			t.Fatalf("unexpected context for %q: %s", topic, state.Context)
		}
		if len(state.Keywords) != 1 || state.Keywords[0] != DefaultKeyword {
			t.Fatalf("unexpected keywords for %q: %v", topic, state.Keywords)
		}
	}
	if te.primary.Total() != 0 || te.ledger.Len() != 0 {
		t.Fatalf("manual mode should not call providers: calls=%d entries=%d", te.primary.Total(), te.ledger.Len())
	}
}

func TestContextStageAutoUsesDocuments(t *testing.T) {
	te := newTestEnv()
	te.primary.On(OpContextAnalysis, llmtest.Step{Text: "  We sell accessibility audits to retailers.  "})
	state := model.NewGenerationState("r", "WCAG", model.ModeAuto)

	out := run(t, ContextStage{}, state, te.env)
	if state.Context != "We sell accessibility audits to retailers." || out.Degraded {
		t.Fatalf("unexpected context: %q degraded=%v", state.Context, out.Degraded)
	}
	if te.primary.Calls(OpContextAnalysis) != 1 {
		t.Fatalf("expected one context call")
	}
}

func TestKeywordStageAutoDedupAndCap(t *testing.T) {
	te := newTestEnv()
	te.env.Settings.MaxKeywords = 3
	te.primary.On(OpKeywordExtraction, llmtest.Step{Text: `["Web Accessibility", "ARIA", "aria", "WCAG", "alt text"]`})
	state := model.NewGenerationState("r", "web accessibility", model.ModeAuto)

	run(t, KeywordStage{}, state, te.env)
	want := []string{"web accessibility", "ARIA", "WCAG"}
	if strings.Join(state.Keywords, "|") != strings.Join(want, "|") {
		t.Fatalf("keywords = %v, want %v", state.Keywords, want)
	}
}

// fakeHistory 按小写关键词返回上次使用时间
type fakeHistory struct {
	last map[string]time.Time
	err  error
}

func (h fakeHistory) LastUsed(_ context.Context, keywords []string) (map[string]time.Time, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := map[string]time.Time{}
	for _, k := range keywords {
		if at, ok := h.last[model.KeywordKey(k)]; ok {
			out[model.KeywordKey(k)] = at
		}
	}
	return out, nil
}

func TestKeywordStageSkipsKeywordsInCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	te := newTestEnv()
	te.env.Settings.MaxKeywords = 3
	te.env.Settings.KeywordCooldown = 24 * time.Hour
	te.env.Now = func() time.Time { return now }
	te.env.History = fakeHistory{last: map[string]time.Time{
		"web accessibility": now.Add(-time.Hour),
		"aria":              now.Add(-2 * time.Hour),
		"wcag":              now.Add(-24 * time.Hour),
		"alt text":          now.Add(-48 * time.Hour),
	}}
	te.primary.On(OpKeywordExtraction, llmtest.Step{Text: `["ARIA", "WCAG", "alt text", "focus order"]`})
	state := model.NewGenerationState("r", "web accessibility", model.ModeAuto)

	run(t, KeywordStage{}, state, te.env)
	// 话题本身不受冷却期限制，刚好满 24 小时仍在冷却期
	want := []string{"web accessibility", "alt text", "focus order"}
	if strings.Join(state.Keywords, "|") != strings.Join(want, "|") {
		t.Fatalf("keywords = %v, want %v", state.Keywords, want)
	}
}

func TestKeywordStageIgnoresHistoryErrors(t *testing.T) {
	te := newTestEnv()
	te.env.Settings.KeywordCooldown = time.Hour
	te.env.History = fakeHistory{err: errors.New("database is locked")}
	te.primary.On(OpKeywordExtraction, llmtest.Step{Text: `["ARIA", "WCAG"]`})
	state := model.NewGenerationState("r", "web accessibility", model.ModeAuto)

	run(t, KeywordStage{}, state, te.env)
	if len(state.Keywords) != 3 {
		t.Fatalf("keywords = %v, want all kept", state.Keywords)
	}
}

func TestKeywordStageFallbackUsesTopic(t *testing.T) {
	te := newTestEnv()
	boom := errors.New("connection reset by peer")
	te.primary.On(OpKeywordExtraction, llmtest.Step{Err: boom}, llmtest.Step{Err: boom})
	state := model.NewGenerationState("r", "ADA compliance", model.ModeAuto)

	out := run(t, KeywordStage{}, state, te.env)
	if !out.Degraded || len(state.Keywords) != 1 || state.Keywords[0] != "ADA compliance" {
		t.Fatalf("unexpected fallback: degraded=%v keywords=%v", out.Degraded, state.Keywords)
	}
}

func TestParseFindings(t *testing.T) {
	findings := ParseFindings(`{"findings":[{"content":"96% of home pages fail WCAG","sources":["webaim.org"],"confidence":1.5},{"content":"Lawsuits rose","sources":[]}]}`,
		[]string{"https://webaim.org/projects/million"})
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	if findings[0].Confidence != 1 {
		t.Fatalf("confidence should be clamped to 1, got %v", findings[0].Confidence)
	}
	if len(findings[0].Sources) != 2 {
		t.Fatalf("citations should merge into first finding: %v", findings[0].Sources)
	}
	if findings[1].Confidence != DefaultConfidence {
		t.Fatalf("missing confidence should default, got %v", findings[1].Confidence)
	}

	text := ParseFindings("Most sites fail contrast checks.\nSource: webaim.org, w3.org", nil)
	if len(text) != 1 || text[0].Confidence != DefaultConfidence {
		t.Fatalf("unexpected text finding: %+v", text)
	}
	if strings.Join(text[0].Sources, ",") != "webaim.org,w3.org" {
		t.Fatalf("unexpected sources: %v", text[0].Sources)
	}
}

func TestResearchStageUsesResearchProvider(t *testing.T) {
	te := newTestEnv()
	te.research.On(OpResearch, llmtest.Step{Text: "Screen reader usage keeps growing.", Sources: []string{"https://webaim.org"}})
	state := model.NewGenerationState("r", "screen readers", model.ModeManual)

	run(t, ResearchStage{}, state, te.env)
	if te.research.Calls(OpResearch) != 1 || te.primary.Total() != 0 {
		t.Fatalf("research should go to the research provider")
	}
	f := state.ResearchFindings
	if len(f) != 1 || f[0].Confidence != DefaultConfidence || len(f[0].Sources) != 1 {
		t.Fatalf("unexpected findings: %+v", f)
	}
}

func TestResearchStageFallback(t *testing.T) {
	te := newTestEnv()
	boom := errors.New("upstream 502")
	te.research.On(OpResearch, llmtest.Step{Err: boom}, llmtest.Step{Err: boom})
	state := model.NewGenerationState("r", "WCAG", model.ModeAuto)

	out := run(t, ResearchStage{}, state, te.env)
	if !out.Degraded {
		t.Fatalf("expected degraded output")
	}
	f := state.ResearchFindings
	if len(f) != 1 || f[0].Confidence != 0 || len(f[0].Sources) != 0 {
		t.Fatalf("unexpected fallback finding: %+v", f)
	}
}

func TestNormalizeOutline(t *testing.T) {
	short := NormalizeOutline("wcag", []string{"In a Nutshell", "Intro to WCAG", "Conclusion", "Intro to WCAG"}, 8, 14)
	if len(short) != 8 {
		t.Fatalf("short outline should be padded to 8, got %d: %v", len(short), short)
	}
	if short[0] != SectionTLDR || short[1] != "Intro to WCAG" {
		t.Fatalf("unexpected head: %v", short)
	}
	if short[6] != SectionQuickFacts || short[7] != SectionConclusion {
		t.Fatalf("unexpected tail: %v", short)
	}

	var many []string
	for i := 0; i < 30; i++ {
		many = append(many, "Section "+string(rune('A'+i)))
	}
	long := NormalizeOutline("wcag", many, 8, 14)
	if len(long) != 14 || long[1] != "Section A" || long[13] != SectionConclusion {
		t.Fatalf("long outline should be trimmed to 14: %v", long)
	}

	again := NormalizeOutline("wcag", nil, 8, 14)
	if strings.Join(again, "|") != strings.Join(NormalizeOutline("wcag", nil, 8, 14), "|") {
		t.Fatalf("padding should be deterministic")
	}
}

func TestOutlineStageSkipsTitleLine(t *testing.T) {
	te := newTestEnv()
	te.primary.On(OpOutline, llmtest.Step{Text: "# WCAG: The Ultimate Guide\n## In a Nutshell\n1. What Is WCAG?\n2. 5 WCAG Compliance Tips\n- Quick Facts\n- Wrap Up"})
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)

	run(t, OutlineStage{}, state, te.env)
	o := state.Outline
	if len(o) < 8 || len(o) > 14 {
		t.Fatalf("outline length out of range: %v", o)
	}
	if o[0] != SectionTLDR || o[1] != "What Is WCAG?" || o[2] != "5 WCAG Compliance Tips" || o[3] != "Wrap Up" {
		t.Fatalf("unexpected outline: %v", o)
	}
	for _, s := range o {
		if strings.Contains(s, "Ultimate Guide") {
			t.Fatalf("title line leaked into outline: %v", o)
		}
	}
}

func TestAlignSections(t *testing.T) {
	outline := []string{"TLDR", "What Is WCAG?", "Why It Matters", "Conclusion"}
	content := "Intro line.\n\n## In a Nutshell\nShort summary.\n\n## Why It Matters\nBecause.\n\n## Bonus Tips\nExtra.\n\n## Conclusion\nDone."

	got := AlignSections(outline, content)
	if h := markdown.Headings(got, 2); strings.Join(h, "|") != strings.Join(outline, "|") {
		t.Fatalf("headings = %v, want %v\n%s", h, outline, got)
	}
	if !strings.Contains(got, "Short summary.") || !strings.Contains(got, "### Bonus Tips") {
		t.Fatalf("content lost:\n%s", got)
	}
	if !strings.Contains(got, "This section on what is wcag?") {
		t.Fatalf("missing placeholder:\n%s", got)
	}
	if !strings.HasPrefix(got, "Intro line.") {
		t.Fatalf("preamble should stay first:\n%s", got)
	}
}

func TestContentStageExtractsTitle(t *testing.T) {
	te := newTestEnv()
	te.primary.On(OpContent, llmtest.Step{Text: "```markdown\n# WCAG Made Simple\n\n## TLDR\nSummary.\n\n## Conclusion\nBye.\n```"})
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)
	state.Outline = []string{"TLDR", "Checklist", "Conclusion"}

	run(t, ContentStage{}, state, te.env)
	if state.Title != "WCAG Made Simple" {
		t.Fatalf("unexpected title: %q", state.Title)
	}
	if strings.Contains(state.DraftContent, "# WCAG Made Simple") {
		t.Fatalf("draft should not keep the H1:\n%s", state.DraftContent)
	}
	if h := markdown.Headings(state.DraftContent, 2); strings.Join(h, "|") != "TLDR|Checklist|Conclusion" {
		t.Fatalf("unexpected headings: %v", h)
	}
}

func TestContentStageFallbackIsDegraded(t *testing.T) {
	te := newTestEnv()
	boom := errors.New("timeout awaiting response headers")
	te.primary.On(OpContent, llmtest.Step{Err: boom}, llmtest.Step{Err: boom})
	state := model.NewGenerationState("r", "alt text", model.ModeManual)
	state.Outline = NormalizeOutline("alt text", nil, 8, 14)
	state.ResearchFindings = []model.ResearchFinding{{Content: "Alt text helps screen reader users."}}

	out := run(t, ContentStage{}, state, te.env)
	if !out.Degraded {
		t.Fatalf("expected degraded output")
	}
	if h := markdown.Headings(state.DraftContent, 2); len(h) != len(state.Outline) {
		t.Fatalf("fallback should keep outline structure: %v", h)
	}
	if !strings.Contains(state.DraftContent, "Alt text helps screen reader users.") {
		t.Fatalf("fallback should include research:\n%s", state.DraftContent)
	}
	if state.Title != "Alt Text: A Comprehensive Guide" {
		t.Fatalf("unexpected fallback title: %q", state.Title)
	}
}

func TestParseAnalysisClampsScores(t *testing.T) {
	a, ok := ParseAnalysis(`Here you go: {"structure":{"score":12,"strengths":["clear"]},"accessibility":{"score":-1},"empathy":{"score":8,"suggestions":["add stories"]}}`)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if a.Structure.Score != 10 || a.Accessibility.Score != 0 || a.Empathy.Score != 8 {
		t.Fatalf("unexpected scores: %+v", a)
	}
	if a.OverallScore != 6 {
		t.Fatalf("overall = %v, want 6", a.OverallScore)
	}
	if got := Suggestions(a); len(got) != 1 || got[0] != "add stories" {
		t.Fatalf("unexpected suggestions: %v", got)
	}
	if _, ok := ParseAnalysis("not json"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestQualityStageNeverModifiesContent(t *testing.T) {
	te := newTestEnv()
	te.primary.On(OpQualityCheck, llmtest.Step{Text: "I cannot score this."})
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)
	state.DraftContent = "## TLDR\n\nDraft body.\n"

	out := run(t, QualityStage{}, state, te.env)
	if state.QualityContent != state.DraftContent {
		t.Fatalf("quality stage must not rewrite content")
	}
	if !out.Degraded || state.Analysis.OverallScore != FallbackScore || *out.Score != FallbackScore {
		t.Fatalf("unparseable review should fall back to 7.0: %+v", state.Analysis)
	}
}

func TestCheckRewrite(t *testing.T) {
	orig := "## TLDR\n\nA fairly long summary of the post.\n\n## Details\n\nMany details about the topic here.\n"
	tests := []struct {
		name      string
		rewritten string
		ok        bool
	}{
		{"same structure", "## TLDR\n\nA friendly summary of this post.\n\n## Details\n\nLots of details about this topic.\n", true},
		{"renamed header", "## Summary\n\nA friendly summary of this post.\n\n## Details\n\nLots of details about this topic.\n", false},
		{"reordered", "## Details\n\nLots of details about this topic.\n\n## TLDR\n\nA friendly summary of this post.\n", false},
		{"too short", "## TLDR\n\nShort.\n\n## Details\n\nTiny.\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := CheckRewrite(orig, tt.rewritten, 0.6)
			if (reason == "") != tt.ok {
				t.Fatalf("CheckRewrite ok=%v, reason=%q", tt.ok, reason)
			}
		})
	}
}

func TestHumanizerRejectsShrunkRewrite(t *testing.T) {
	te := newTestEnv()
	te.primary.On(OpHumanize, llmtest.Step{Text: "## TLDR\n\nHi."})
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)
	state.QualityContent = "## TLDR\n\n" + strings.Repeat("Accessible sites reach more people. ", 10)

	out := run(t, HumanizerStage{}, state, te.env)
	if state.FinalContent != state.QualityContent || !out.Degraded {
		t.Fatalf("shrunk rewrite should be rejected: degraded=%v", out.Degraded)
	}
}

func TestHumanizerAcceptsRewrite(t *testing.T) {
	te := newTestEnv()
	quality := "## TLDR\n\nAccessible sites reach more people.\n\n## Conclusion\n\nStart today.\n"
	rewrite := "## TLDR\n\nWhen your site is accessible, more people can use it.\n\n## Conclusion\n\nWhy not start today?\n"
	te.primary.On(OpHumanize, llmtest.Step{Text: rewrite})
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)
	state.QualityContent = quality

	out := run(t, HumanizerStage{}, state, te.env)
	if out.Degraded || state.FinalContent != rewrite {
		t.Fatalf("rewrite should be accepted: degraded=%v final=%q", out.Degraded, state.FinalContent)
	}
}

func TestBuildMetrics(t *testing.T) {
	state := model.NewGenerationState("r", "wcag", model.ModeAuto)
	state.Keywords = []string{"WCAG", "screen readers"}
	state.FinalContent = "## TLDR\n\nAccording to WebAIM, 96% of home pages have WCAG failures. Read our case study below.\n"
	state.Analysis = &model.Analysis{Empathy: model.DimensionAnalysis{Score: 8}}

	m := BuildMetrics(state)
	if *m.SEOScore != 50 {
		t.Fatalf("seo score = %v, want 50", *m.SEOScore)
	}
	if !*m.HasRealData || !*m.HasCaseStudies || *m.HasExpertQuotes {
		t.Fatalf("unexpected heuristics: data=%v cases=%v quotes=%v", *m.HasRealData, *m.HasCaseStudies, *m.HasExpertQuotes)
	}
	if m.ReadTimeMinutes != 1 || m.FunnelStage != "middle" || m.EngagementScore == nil || *m.EngagementScore != 80 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.BusinessImpact["brand_authority"] != 80 {
		t.Fatalf("unexpected business impact: %v", m.BusinessImpact)
	}
}

func TestSettingsFromConfigDefaults(t *testing.T) {
	s := SettingsFromConfig(config.PipelineConfig{OutlineMin: 9})
	if s.OutlineMin != 9 || s.OutlineMax != 14 || s.MaxKeywords != 20 || s.HumanizerMinRatio != 0.6 {
		t.Fatalf("unexpected settings: %+v", s)
	}
}
