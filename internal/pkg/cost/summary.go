package cost

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blogforge/backend/internal/model"
)

// Summary 费用汇总
type Summary struct {
	TotalCost    float64            `json:"total_cost"`
	TotalCalls   int                `json:"total_calls"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	Unpriced     int                `json:"unpriced"`
	ByProvider   map[string]float64 `json:"by_provider"`
	ByModel      map[string]float64 `json:"by_model"`
	ByOperation  map[string]float64 `json:"by_operation"`
}

func Summarize(entries []model.CostEntry) Summary {
	s := Summary{
		ByProvider:  make(map[string]float64),
		ByModel:     make(map[string]float64),
		ByOperation: make(map[string]float64),
	}
	for _, e := range entries {
		s.TotalCost += e.Cost
		s.TotalCalls++
		s.InputTokens += e.InputTokens
		s.OutputTokens += e.OutputTokens
		if !e.Priced {
			s.Unpriced++
		}
		s.ByProvider[e.Provider] += e.Cost
		s.ByModel[e.Model] += e.Cost
		s.ByOperation[e.Operation] += e.Cost
	}
	s.TotalCost = Round4(s.TotalCost)
	return s
}

// Report 生成 markdown 格式的费用报告
func (s Summary) Report(now time.Time) string {
	var b strings.Builder
	b.WriteString("# API Cost Usage Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Total Cost:** $%.4f\n\n", s.TotalCost)
	fmt.Fprintf(&b, "**Total Calls:** %d (input tokens: %d, output tokens: %d)\n\n", s.TotalCalls, s.InputTokens, s.OutputTokens)
	if s.Unpriced > 0 {
		fmt.Fprintf(&b, "**Unpriced Calls:** %d\n\n", s.Unpriced)
	}
	writeBreakdown(&b, "Cost by Provider", s.ByProvider)
	writeBreakdown(&b, "Cost by Model", s.ByModel)
	writeBreakdown(&b, "Cost by Operation", s.ByOperation)
	return b.String()
}

func writeBreakdown(b *strings.Builder, title string, costs map[string]float64) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(costs) == 0 {
		b.WriteString("_No calls recorded._\n\n")
		return
	}
	keys := make([]string, 0, len(costs))
	for k := range costs {
		keys = append(keys, k)
	}
	// 费用降序，同费用按名称
	sort.Slice(keys, func(i, j int) bool {
		if costs[keys[i]] != costs[keys[j]] {
			return costs[keys[i]] > costs[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: $%.4f\n", k, costs[k])
	}
	b.WriteString("\n")
}
