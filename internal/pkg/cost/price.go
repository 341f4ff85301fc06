package cost

import (
	"strings"

	"github.com/blogforge/backend/config"
)

// Rate 每 1K token 的价格（美元）
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

type priceKey struct {
	provider string
	model    string
}

// PriceTable 按 (provider, model) 查询价格
type PriceTable struct {
	rates map[priceKey]Rate
}

// DefaultPriceTable 内置价格表
func DefaultPriceTable() *PriceTable {
	t := &PriceTable{rates: make(map[priceKey]Rate)}
	t.Set("openai", "gpt-4", Rate{InputPer1K: 0.03, OutputPer1K: 0.06})
	t.Set("openai", "gpt-4-turbo", Rate{InputPer1K: 0.01, OutputPer1K: 0.03})
	t.Set("openai", "gpt-4o", Rate{InputPer1K: 0.005, OutputPer1K: 0.015})
	t.Set("openai", "gpt-4o-mini", Rate{InputPer1K: 0.005, OutputPer1K: 0.015})
	t.Set("openai", "gpt-3.5-turbo", Rate{InputPer1K: 0.0015, OutputPer1K: 0.002})
	t.Set("openai", "text-embedding-ada-002", Rate{InputPer1K: 0.0001})
	t.Set("anthropic", "claude-3-opus", Rate{InputPer1K: 0.015, OutputPer1K: 0.075})
	t.Set("anthropic", "claude-3-sonnet", Rate{InputPer1K: 0.003, OutputPer1K: 0.015})
	t.Set("anthropic", "claude-3-haiku", Rate{InputPer1K: 0.00025, OutputPer1K: 0.00125})
	// perplexity 按请求 token 总量计价，输出不单独计费
	t.Set("perplexity", "sonar-small-online", Rate{InputPer1K: 0.0008})
	t.Set("perplexity", "llama-3-sonar-small-online", Rate{InputPer1K: 0.0008})
	t.Set("perplexity", "sonar-medium-online", Rate{InputPer1K: 0.0024})
	t.Set("perplexity", "sonar-large-online", Rate{InputPer1K: 0.008})
	t.Set("perplexity", "sonar-deep-research", Rate{InputPer1K: 0.008})
	return t
}

// NewPriceTable 内置价格表叠加配置覆盖
func NewPriceTable(overrides []config.PriceConfig) *PriceTable {
	t := DefaultPriceTable()
	for _, p := range overrides {
		t.Set(p.Provider, p.Model, Rate{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K})
	}
	return t
}

func (t *PriceTable) Set(provider, model string, rate Rate) {
	t.rates[priceKey{normalize(provider), normalize(model)}] = rate
}

// Lookup 未知组合返回 false
func (t *PriceTable) Lookup(provider, model string) (Rate, bool) {
	if t == nil {
		return Rate{}, false
	}
	r, ok := t.rates[priceKey{normalize(provider), normalize(model)}]
	return r, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
