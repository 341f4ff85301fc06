package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/pkg/cost"
	"k8s.io/klog/v2"
)

// RetryPolicy 统一的重试策略，退避时间按 Backoff << (第几次重试-1) 翻倍
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Backoff: time.Second, MaxBackoff: 30 * time.Second}
}

// RetryPolicyFromConfig 从配置构建重试策略
func RetryPolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxRetries: rc.MaxRetries, Backoff: rc.Backoff, MaxBackoff: rc.MaxBackoff}
}

func (p RetryPolicy) delay(retry int) time.Duration {
	if retry < 1 || p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff << (retry - 1)
	if p.MaxBackoff > 0 && (d > p.MaxBackoff || d <= 0) {
		d = p.MaxBackoff
	}
	return d
}

// clamp 限流提示的等待时间同样受 MaxBackoff 约束
func (p RetryPolicy) clamp(d time.Duration) time.Duration {
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Endpoint 某个调用目标对应的 provider 与单次请求超时
type Endpoint struct {
	Provider Provider
	Timeout  time.Duration
}

// CallObserver 每次尝试结束后的回调，kind 为空表示成功
type CallObserver interface {
	ObserveCall(ctx context.Context, provider, model, operation string, kind ErrorKind, cost float64)
}

// Invoker 所有 LLM 调用的唯一入口：超时、重试、兜底、计费都在这里
type Invoker struct {
	endpoints map[Target]Endpoint
	policy    RetryPolicy
	recorder  *cost.Recorder
	observer  CallObserver
	sleep     func(ctx context.Context, d time.Duration) error
}

type InvokerOption func(*Invoker)

func WithEndpoint(target Target, provider Provider, timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.endpoints[target] = Endpoint{Provider: provider, Timeout: timeout}
	}
}

func WithObserver(observer CallObserver) InvokerOption {
	return func(i *Invoker) {
		i.observer = observer
	}
}

func NewInvoker(recorder *cost.Recorder, policy RetryPolicy, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		endpoints: make(map[Target]Endpoint),
		policy:    policy,
		recorder:  recorder,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewInvokerFromConfig 按配置创建主模型和研究模型两个端点
func NewInvokerFromConfig(cfg *config.Config, recorder *cost.Recorder, opts ...InvokerOption) (*Invoker, error) {
	primary, err := NewProvider(cfg.LLM.Primary)
	if err != nil {
		return nil, fmt.Errorf("create primary provider: %w", err)
	}
	research, err := NewProvider(cfg.LLM.Research)
	if err != nil {
		return nil, fmt.Errorf("create research provider: %w", err)
	}
	opts = append([]InvokerOption{
		WithEndpoint(TargetPrimary, primary, cfg.LLM.Primary.Timeout),
		WithEndpoint(TargetResearch, research, cfg.LLM.Research.Timeout),
	}, opts...)
	return NewInvoker(recorder, RetryPolicyFromConfig(cfg.Retry), opts...), nil
}

// ForRun 返回一个额外写入运行级账本的副本
func (i *Invoker) ForRun(ledger *cost.Ledger) *Invoker {
	cp := *i
	cp.recorder = i.recorder.With(ledger)
	return &cp
}

// Invoke 调用目标 provider；失败按策略重试，重试耗尽后使用兜底文本。
// 每次到达 provider 的尝试都会记一笔费用，兜底再记一笔 0 费用条目。
func (i *Invoker) Invoke(ctx context.Context, call Call) (*Result, error) {
	if err := call.Options.Validate(); err != nil {
		return nil, err
	}
	ep, ok := i.endpoints[call.Target]
	if !ok || ep.Provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, call.Target)
	}

	providerName := ep.Provider.ProviderName()
	modelName := ep.Provider.DefaultModel()
	req := Request{
		Operation:   call.Operation,
		System:      call.System,
		User:        call.User,
		Temperature: call.Options.Temperature,
		MaxTokens:   call.Options.MaxTokens,
	}
	inputEstimate := EstimateTokens(call.System + "\n" + call.User)

	var lastErr *ProviderError
	attempts := 0
	for attempt := 0; attempt <= max(i.policy.MaxRetries, 0); attempt++ {
		if attempt > 0 {
			d := i.policy.delay(attempt)
			if lastErr != nil && lastErr.Kind == KindRateLimit {
				d = i.policy.clamp(max(d, RetryAfter(lastErr.Err)))
			}
			klog.V(6).Infof("LLM 调用重试: operation=%s, attempt=%d, backoff=%s", call.Operation, attempt+1, d)
			if err := i.sleep(ctx, d); err != nil {
				lastErr = &ProviderError{Provider: providerName, Model: modelName, Operation: call.Operation, Kind: KindCanceled, Err: err}
				break
			}
		}
		attempts++

		resp, err := i.attempt(ctx, ep, req)
		if err == nil {
			if resp.Model != "" {
				modelName = resp.Model
			}
			in, out := resp.InputTokens, resp.OutputTokens
			if !resp.UsageReported {
				in = inputEstimate
				out = EstimateTokens(resp.Text)
			}
			entry := i.recorder.Record(providerName, modelName, call.Operation, in, out)
			i.observe(ctx, providerName, modelName, call.Operation, "", entry.Cost)
			return &Result{
				Text:         resp.Text,
				Provider:     providerName,
				Model:        modelName,
				InputTokens:  in,
				OutputTokens: out,
				Sources:      resp.Sources,
				Attempts:     attempts,
				Entry:        entry,
			}, nil
		}

		kind := ClassifyError(err)
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		lastErr = &ProviderError{Provider: providerName, Model: modelName, Operation: call.Operation, Kind: kind, Err: err}
		entry := i.recorder.Record(providerName, modelName, call.Operation, inputEstimate, 0)
		i.observe(ctx, providerName, modelName, call.Operation, kind, entry.Cost)
		klog.Warningf("LLM 调用失败: provider=%s, model=%s, operation=%s, attempt=%d, kind=%s, error=%v",
			providerName, modelName, call.Operation, attempts, kind, err)

		if !lastErr.Retryable() {
			break
		}
	}

	if call.Fallback != nil && lastErr.Kind != KindCanceled {
		if text := call.Fallback(); text != "" {
			klog.Warningf("LLM 调用使用兜底输出: operation=%s, cause=%v", call.Operation, lastErr)
			entry := i.recorder.Record(providerName, modelName, call.Operation+":fallback", 0, 0)
			return &Result{
				Text:     text,
				Provider: providerName,
				Model:    modelName,
				Attempts: attempts,
				Degraded: true,
				Entry:    entry,
			}, nil
		}
	}
	return nil, lastErr
}

func (i *Invoker) attempt(ctx context.Context, ep Endpoint, req Request) (*Response, error) {
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}
	return ep.Provider.Complete(ctx, req)
}

func (i *Invoker) observe(ctx context.Context, provider, modelName, operation string, kind ErrorKind, c float64) {
	if i.observer != nil {
		i.observer.ObserveCall(ctx, provider, modelName, operation, kind, c)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AsProviderError 便于调用方取出 ProviderError
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
