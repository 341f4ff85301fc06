package telemetry

import (
	"context"
	"time"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "blogforge/pipeline"

// Instruments 流水线指标
type Instruments struct {
	llmCalls      metric.Int64Counter
	llmCost       metric.Float64Counter
	stageDuration metric.Float64Histogram
	runs          metric.Int64Counter
}

// NewInstruments 使用全局 meter 创建指标
func NewInstruments() *Instruments {
	return NewInstrumentsWithMeter(Meter(scope))
}

func NewInstrumentsWithMeter(meter metric.Meter) *Instruments {
	calls, _ := meter.Int64Counter("blogforge.llm.calls",
		metric.WithDescription("LLM call attempts by provider, operation and outcome"),
	)
	costCounter, _ := meter.Float64Counter("blogforge.llm.cost",
		metric.WithDescription("Priced LLM spend"),
		metric.WithUnit("USD"),
	)
	stageDur, _ := meter.Float64Histogram("blogforge.stage.duration",
		metric.WithDescription("Pipeline stage duration (ms)"),
		metric.WithUnit("ms"),
	)
	runs, _ := meter.Int64Counter("blogforge.runs",
		metric.WithDescription("Finished pipeline runs by status"),
	)
	return &Instruments{
		llmCalls:      calls,
		llmCost:       costCounter,
		stageDuration: stageDur,
		runs:          runs,
	}
}

// ObserveCall 实现 llm.CallObserver
func (i *Instruments) ObserveCall(ctx context.Context, provider, modelName, operation string, kind llm.ErrorKind, cost float64) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", modelName),
		attribute.String("llm.operation", operation),
		attribute.String("llm.outcome", outcome),
	)
	if i.llmCalls != nil {
		i.llmCalls.Add(ctx, 1, attrs)
	}
	if i.llmCost != nil && cost > 0 {
		i.llmCost.Add(ctx, cost, attrs)
	}
}

// ObserveStage 记录阶段耗时
func (i *Instruments) ObserveStage(ctx context.Context, agent model.AgentName, status model.AgentStatus, d time.Duration) {
	if i.stageDuration == nil {
		return
	}
	i.stageDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("pipeline.agent", string(agent)),
		attribute.String("pipeline.status", string(status)),
	))
}

// ObserveRun 记录一次运行结束
func (i *Instruments) ObserveRun(ctx context.Context, status model.RunStatus, degraded bool) {
	if i.runs == nil {
		return
	}
	i.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline.status", string(status)),
		attribute.Bool("pipeline.degraded", degraded),
	))
}
