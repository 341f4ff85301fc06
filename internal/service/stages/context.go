package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/blogforge/backend/internal/model"
)

// DefaultBusinessContext 手动模式及兜底时使用的业务背景
const DefaultBusinessContext = "Business type: Technology. " +
	"Content goals: Educate, Engage, Convert. " +
	"Audience: website owners, marketers and developers responsible for digital accessibility. " +
	"Popular keywords: optimization, strategy, implementation, best practices, guide, tutorial. " +
	"Effective structures: Problem-Solution-Benefits, How-To Guide with Steps, List-Based Article."

const contextSystemPrompt = "You are a business analyst. Summarize the business context that matters for writing a blog post: " +
	"industry, audience, content goals, voice and key offerings. Answer in one short paragraph."

// ContextStage 提取业务背景
type ContextStage struct{}

func (ContextStage) Agent() model.AgentName { return model.AgentContext }

func (ContextStage) Run(ctx context.Context, state *model.GenerationState, env Env) (Output, error) {
	if state.Mode == model.ModeManual {
		return contextOutput(DefaultBusinessContext, "Using default business context", false), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", state.Topic)
	if env.Docs != nil {
		for _, doc := range env.Docs.Documents() {
			fmt.Fprintf(&b, "### %s\n%s\n\n", doc.Title, truncate(doc.Body, 4000))
		}
	}

	res, err := env.Invoker.Invoke(ctx, primary(OpContextAnalysis, contextSystemPrompt, b.String(), func() string {
		return DefaultBusinessContext
	}))
	if err != nil {
		return Output{}, err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return contextOutput(DefaultBusinessContext, "Model returned no context, using default", true), nil
	}
	return contextOutput(text, "Extracted business context from documents", res.Degraded), nil
}

func contextOutput(text, summary string, degraded bool) Output {
	return Output{
		Apply: func(s *model.GenerationState) {
			s.Context = text
		},
		Summary:  summary,
		Degraded: degraded,
	}
}
