package llm

import (
	"context"
	"strings"

	"github.com/blogforge/backend/config"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"
)

// EinoProvider 基于 eino ChatModel 的主模型适配器
type EinoProvider struct {
	name      string
	model     string
	chatModel model.BaseChatModel
}

// NewEinoProvider 创建 eino ChatModel
func NewEinoProvider(pc config.ProviderConfig) (*EinoProvider, error) {
	cfg := &einoopenai.ChatModelConfig{
		BaseURL: pc.APIURL,
		APIKey:  pc.APIKey,
		Model:   pc.Model,
		Timeout: pc.Timeout,
	}
	if pc.MaxTokens > 0 {
		maxTokens := pc.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	if pc.Temperature > 0 {
		temperature := float32(pc.Temperature)
		cfg.Temperature = &temperature
	}

	chatModel, err := einoopenai.NewChatModel(context.Background(), cfg)
	if err != nil {
		klog.Errorf("[EinoProvider] 创建 ChatModel 失败: %v", err)
		return nil, err
	}
	klog.V(6).Infof("[EinoProvider] ChatModel 创建成功: model=%s", pc.Model)
	return newEinoProvider(pc.Provider, pc.Model, chatModel), nil
}

func newEinoProvider(name, modelName string, chatModel model.BaseChatModel) *EinoProvider {
	return &EinoProvider{name: name, model: modelName, chatModel: chatModel}
}

func (p *EinoProvider) ProviderName() string {
	return p.name
}

func (p *EinoProvider) DefaultModel() string {
	return p.model
}

func (p *EinoProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]*schema.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, schema.SystemMessage(req.System))
	}
	messages = append(messages, schema.UserMessage(req.User))

	modelName := p.model
	var opts []model.Option
	if req.Model != "" {
		modelName = req.Model
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	msg, err := p.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, ErrEmptyResponse
	}

	resp := &Response{Text: msg.Content, Model: modelName}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		resp.InputTokens = msg.ResponseMeta.Usage.PromptTokens
		resp.OutputTokens = msg.ResponseMeta.Usage.CompletionTokens
		resp.UsageReported = resp.InputTokens > 0 || resp.OutputTokens > 0
	}
	return resp, nil
}
