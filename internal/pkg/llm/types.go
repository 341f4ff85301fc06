package llm

import (
	"fmt"

	"github.com/blogforge/backend/internal/model"
)

// ChatMessage OpenAI 兼容的消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest OpenAI 兼容的请求体
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatResponse OpenAI 兼容的响应体，citations 为 Perplexity 扩展字段
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations,omitempty"`
	Error     *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Request 发给 provider 的归一化请求
type Request struct {
	Model       string
	Operation   string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Response provider 归一化后的响应
type Response struct {
	Text          string
	Model         string
	InputTokens   int
	OutputTokens  int
	Sources       []string
	UsageReported bool
}

// Target 调用目标：主模型或研究模型
type Target string

const (
	TargetPrimary  Target = "primary"
	TargetResearch Target = "research"
)

// Options 透传给 provider 的生成参数，零值表示使用端点默认值
type Options struct {
	Temperature float64
	MaxTokens   int
}

func (o Options) Validate() error {
	if o.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %v", o.Temperature)
	}
	if o.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be non-negative, got %d", o.MaxTokens)
	}
	return nil
}

// Call 一次 Invoker 调用
type Call struct {
	Target    Target
	Operation string
	System    string
	User      string
	Options   Options
	// Fallback 重试耗尽后生成兜底文本，返回空串表示无法兜底
	Fallback func() string
}

// Result Invoker 调用结果
type Result struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Sources      []string
	Attempts     int
	Degraded     bool
	Entry        model.CostEntry
}
