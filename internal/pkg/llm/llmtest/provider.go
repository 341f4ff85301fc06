// Package llmtest 提供按脚本返回结果的 Provider，用于流水线测试
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blogforge/backend/internal/pkg/llm"
)

// Step 某个 operation 的一次预设响应
type Step struct {
	Text         string
	Err          error
	Delay        time.Duration
	InputTokens  int
	OutputTokens int
	Sources      []string
}

// ScriptedProvider 按 operation 依次弹出预设 Step，脚本用完后走 Default
type ScriptedProvider struct {
	Name    string
	Model   string
	Default func(req llm.Request) (string, error)

	mu      sync.Mutex
	scripts map[string][]Step
	calls   []llm.Request
}

func New(name, modelName string) *ScriptedProvider {
	return &ScriptedProvider{
		Name:    name,
		Model:   modelName,
		scripts: make(map[string][]Step),
	}
}

// On 追加某个 operation 的脚本
func (p *ScriptedProvider) On(operation string, steps ...Step) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[operation] = append(p.scripts[operation], steps...)
	return p
}

func (p *ScriptedProvider) ProviderName() string {
	return p.Name
}

func (p *ScriptedProvider) DefaultModel() string {
	return p.Model
}

func (p *ScriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var step Step
	queue := p.scripts[req.Operation]
	scripted := len(queue) > 0
	if scripted {
		step = queue[0]
		p.scripts[req.Operation] = queue[1:]
	}
	fallback := p.Default
	p.mu.Unlock()

	if !scripted {
		if fallback == nil {
			step.Text = fmt.Sprintf("response for %s", req.Operation)
		} else {
			text, err := fallback(req)
			step = Step{Text: text, Err: err}
		}
	}

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{
		Text:          step.Text,
		Model:         p.Model,
		InputTokens:   step.InputTokens,
		OutputTokens:  step.OutputTokens,
		Sources:       step.Sources,
		UsageReported: step.InputTokens > 0 || step.OutputTokens > 0,
	}, nil
}

// Calls 某个 operation 被调用的次数
func (p *ScriptedProvider) Calls(operation string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

// Total 总调用次数
func (p *ScriptedProvider) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
