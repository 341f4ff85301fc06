package cost

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/blogforge/backend/internal/model"
	"k8s.io/klog/v2"
)

// ErrPricingLookupMiss 价格表中没有对应的 (provider, model)
var ErrPricingLookupMiss = errors.New("pricing lookup miss")

// Recorder 计算费用并追加到账本
type Recorder struct {
	prices  *PriceTable
	ledgers []*Ledger
	now     func() time.Time
}

// NewRecorder 创建计费器，ledger 通常是进程级账本
func NewRecorder(prices *PriceTable, ledger *Ledger) *Recorder {
	r := &Recorder{prices: prices, now: time.Now}
	if ledger != nil {
		r.ledgers = []*Ledger{ledger}
	}
	return r
}

// With 返回一个同时写入额外账本的计费器，原计费器不受影响
func (r *Recorder) With(ledger *Ledger) *Recorder {
	cp := *r
	cp.ledgers = append(append([]*Ledger(nil), r.ledgers...), ledger)
	return &cp
}

// Price 计算费用，保留 4 位小数
func (r *Recorder) Price(provider, modelName string, inputTokens, outputTokens int) (float64, error) {
	rate, ok := r.prices.Lookup(provider, modelName)
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrPricingLookupMiss, provider, modelName)
	}
	c := float64(inputTokens)/1000*rate.InputPer1K + float64(outputTokens)/1000*rate.OutputPer1K
	return Round4(c), nil
}

// Record 计费并追加到所有账本，返回最后一个账本（最具体的那个）中的条目
func (r *Recorder) Record(provider, modelName, operation string, inputTokens, outputTokens int) model.CostEntry {
	entry := model.CostEntry{
		Timestamp:    r.now(),
		Provider:     provider,
		Model:        modelName,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Priced:       true,
	}
	c, err := r.Price(provider, modelName, inputTokens, outputTokens)
	if err != nil {
		entry.Priced = false
		entry.Warning = err.Error()
		klog.Warningf("计费未命中价格表: provider=%s, model=%s, operation=%s", provider, modelName, operation)
	}
	entry.Cost = c

	recorded := entry
	for _, l := range r.ledgers {
		recorded = l.Append(entry)
	}
	return recorded
}

// Round4 四舍五入到 4 位小数
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
