package llm

import (
	"context"
	"fmt"

	"github.com/blogforge/backend/config"
)

// Provider 单个 LLM 服务的适配器，负责把各自 SDK 的响应归一化
type Provider interface {
	ProviderName() string
	DefaultModel() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewProvider 根据 driver 创建适配器：eino / openai / http
func NewProvider(pc config.ProviderConfig) (Provider, error) {
	switch pc.Driver {
	case "eino":
		return NewEinoProvider(pc)
	case "openai":
		return NewOpenAIProvider(pc), nil
	case "http", "":
		return NewClient(pc), nil
	}
	return nil, fmt.Errorf("unknown llm driver %q", pc.Driver)
}
