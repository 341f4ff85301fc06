package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/blogforge/backend/config"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider 基于官方 openai-go SDK 的主模型适配器
type OpenAIProvider struct {
	name        string
	model       string
	maxTokens   int
	temperature float64
	client      openai.Client
}

func NewOpenAIProvider(pc config.ProviderConfig) *OpenAIProvider {
	// 重试由 Invoker 统一负责
	opts := []option.RequestOption{
		option.WithAPIKey(pc.APIKey),
		option.WithMaxRetries(0),
	}
	if pc.APIURL != "" {
		opts = append(opts, option.WithBaseURL(pc.APIURL))
	}
	if pc.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(pc.Timeout))
	}
	return &OpenAIProvider{
		name:        pc.Provider,
		model:       pc.Model,
		maxTokens:   pc.MaxTokens,
		temperature: pc.Temperature,
		client:      openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) ProviderName() string {
	return p.name
}

func (p *OpenAIProvider) DefaultModel() string {
	return p.model
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: msgs,
	}
	if t := pick(req.Temperature, p.temperature); t > 0 {
		params.Temperature = openai.Float(t)
	}
	if n := pickInt(req.MaxTokens, p.maxTokens); n > 0 {
		params.MaxTokens = openai.Int(int64(n))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	out := &Response{Text: resp.Choices[0].Message.Content, Model: modelName}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		out.InputTokens = int(resp.Usage.PromptTokens)
		out.OutputTokens = int(resp.Usage.CompletionTokens)
		out.UsageReported = true
	}
	return out, nil
}

func pick(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func pickInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
