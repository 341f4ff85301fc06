package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blogforge/backend/internal/pkg/cost"
)

type stubProvider struct {
	mu    sync.Mutex
	name  string
	model string
	steps []func(ctx context.Context) (*Response, error)
	calls int
}

func (s *stubProvider) ProviderName() string { return s.name }
func (s *stubProvider) DefaultModel() string { return s.model }

func (s *stubProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.steps) {
		return s.steps[i](ctx)
	}
	return &Response{Text: "ok"}, nil
}

func fail(err error) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) { return nil, err }
}

func succeed(text string, in, out int) func(context.Context) (*Response, error) {
	return func(context.Context) (*Response, error) {
		return &Response{Text: text, InputTokens: in, OutputTokens: out, UsageReported: in > 0 || out > 0}, nil
	}
}

func hang(ctx context.Context) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestInvoker(p Provider, timeout time.Duration) (*Invoker, *cost.Ledger) {
	ledger := cost.NewLedger()
	inv := NewInvoker(cost.NewRecorder(cost.DefaultPriceTable(), ledger),
		RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond},
		WithEndpoint(TargetPrimary, p, timeout),
		WithEndpoint(TargetResearch, p, timeout))
	return inv, ledger
}

func countOp(ledger *cost.Ledger, op string) int {
	n := 0
	for _, e := range ledger.Entries() {
		if e.Operation == op {
			n++
		}
	}
	return n
}

func TestInvokeSuccessRecordsOneEntry(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){succeed("draft", 1000, 500)}}
	inv, ledger := newTestInvoker(p, 0)

	res, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "content_generation", User: "write"})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if res.Text != "draft" || res.Attempts != 1 || res.Degraded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", ledger.Len())
	}
	if res.Entry.Cost != 0.06 {
		t.Fatalf("unexpected cost %v", res.Entry.Cost)
	}
}

func TestInvokeEstimatesMissingUsage(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){succeed("twelve chars", 0, 0)}}
	inv, _ := newTestInvoker(p, 0)

	res, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "op", User: "abcdefgh"})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if res.InputTokens < 1 || res.OutputTokens != EstimateTokens("twelve chars") {
		t.Fatalf("expected estimated usage, got in=%d out=%d", res.InputTokens, res.OutputTokens)
	}
}

func TestInvokeTimeoutThenRetrySucceeds(t *testing.T) {
	p := &stubProvider{name: "perplexity", model: "sonar-small-online", steps: []func(context.Context) (*Response, error){hang, succeed("finding", 100, 50)}}
	inv, ledger := newTestInvoker(p, 20*time.Millisecond)

	res, err := inv.Invoke(context.Background(), Call{Target: TargetResearch, Operation: "research", User: "q"})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if res.Attempts != 2 || res.Degraded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := countOp(ledger, "research"); n != 2 {
		t.Fatalf("expected 2 research entries, got %d", n)
	}
	entries := ledger.Entries()
	if entries[0].OutputTokens != 0 {
		t.Fatalf("failed attempt should record 0 output tokens")
	}
}

func TestInvokeFallbackAfterRetries(t *testing.T) {
	boom := errors.New("connection refused")
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){fail(boom), fail(boom)}}
	inv, ledger := newTestInvoker(p, 0)

	res, err := inv.Invoke(context.Background(), Call{
		Target:    TargetPrimary,
		Operation: "content_generation",
		User:      "write",
		Fallback:  func() string { return "fallback text" },
	})
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if !res.Degraded || res.Text != "fallback text" || res.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", p.calls)
	}
	if countOp(ledger, "content_generation:fallback") != 1 {
		t.Fatalf("expected one fallback entry")
	}
	if res.Entry.Cost != 0 {
		t.Fatalf("fallback entry should cost 0")
	}
}

func TestInvokeWithoutFallbackReturnsProviderError(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){
		fail(&StatusError{StatusCode: 500, Message: "x"}),
		fail(&StatusError{StatusCode: 500, Message: "x"}),
	}}
	inv, _ := newTestInvoker(p, 0)

	_, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "outline"})
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "openai" || pe.Kind != KindNetwork || pe.Operation != "outline" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

func TestInvokeAuthErrorIsNotRetried(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){
		fail(&StatusError{StatusCode: 401, Message: "bad key"}),
	}}
	inv, _ := newTestInvoker(p, 0)

	_, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "outline"})
	if pe, ok := AsProviderError(err); !ok || pe.Kind != KindAuth {
		t.Fatalf("expected auth ProviderError, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", p.calls)
	}
}

func TestInvokeEmptyFallbackReturnsError(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){fail(errors.New("x")), fail(errors.New("x"))}}
	inv, _ := newTestInvoker(p, 0)

	_, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "op", Fallback: func() string { return "" }})
	if err == nil {
		t.Fatalf("expected error when fallback is empty")
	}
}

func TestInvokeUnknownTargetAndBadOptions(t *testing.T) {
	inv := NewInvoker(cost.NewRecorder(cost.DefaultPriceTable(), cost.NewLedger()), DefaultRetryPolicy())
	if _, err := inv.Invoke(context.Background(), Call{Target: TargetResearch}); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
	p := &stubProvider{name: "openai", model: "gpt-4"}
	inv2, _ := newTestInvoker(p, 0)
	if _, err := inv2.Invoke(context.Background(), Call{Target: TargetPrimary, Options: Options{Temperature: -1}}); err == nil {
		t.Fatalf("expected error for negative temperature")
	}
	if p.calls != 0 {
		t.Fatalf("invalid options must not reach provider")
	}
}

func TestForRunRecordsIntoRunLedger(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4"}
	inv, global := newTestInvoker(p, 0)
	run := cost.NewLedger()

	if _, err := inv.ForRun(run).Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "op"}); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if _, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "op"}); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if run.Len() != 1 || global.Len() != 2 {
		t.Fatalf("unexpected ledger sizes: run=%d global=%d", run.Len(), global.Len())
	}
}

func TestRetryPolicyDelayDoubles(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: time.Second, MaxBackoff: 3 * time.Second}
	if p.delay(1) != time.Second || p.delay(2) != 2*time.Second || p.delay(3) != 3*time.Second {
		t.Fatalf("unexpected delays: %s %s %s", p.delay(1), p.delay(2), p.delay(3))
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []ErrorKind
}

func (o *recordingObserver) ObserveCall(_ context.Context, _, _, _ string, kind ErrorKind, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

func TestInvokeNotifiesObserver(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4", steps: []func(context.Context) (*Response, error){fail(errors.New("too many requests")), succeed("ok", 1, 1)}}
	obs := &recordingObserver{}
	inv := NewInvoker(cost.NewRecorder(cost.DefaultPriceTable(), cost.NewLedger()),
		RetryPolicy{MaxRetries: 1},
		WithEndpoint(TargetPrimary, p, 0),
		WithObserver(obs))

	if _, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "op"}); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if len(obs.kinds) != 2 || obs.kinds[0] != KindRateLimit || obs.kinds[1] != "" {
		t.Fatalf("unexpected observed kinds: %v", obs.kinds)
	}
}

func TestRetryAfterParsesHint(t *testing.T) {
	cases := map[string]time.Duration{
		"429 Too Many Requests: Try again in 7s":   7 * time.Second,
		"rate limited, retry after 2m":             2 * time.Minute,
		"quota exceeded; please retry after 250ms": 250 * time.Millisecond,
		"rate limit exceeded":                      0,
	}
	for msg, want := range cases {
		if got := RetryAfter(errors.New(msg)); got != want {
			t.Errorf("RetryAfter(%q) = %s, want %s", msg, got, want)
		}
	}
}

func TestInvokeRateLimitHonorsRetryAfterWithinMaxBackoff(t *testing.T) {
	p := &stubProvider{name: "openai", model: "gpt-4o-mini", steps: []func(context.Context) (*Response, error){
		fail(&StatusError{StatusCode: 429, Message: "Rate limit reached. Try again in 20s"}),
		succeed("ok", 10, 5),
	}}
	inv := NewInvoker(cost.NewRecorder(cost.DefaultPriceTable(), cost.NewLedger()),
		RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond, MaxBackoff: 5 * time.Second},
		WithEndpoint(TargetPrimary, p, time.Second))
	var slept []time.Duration
	inv.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res, err := inv.Invoke(context.Background(), Call{Target: TargetPrimary, Operation: "outline_generation", User: "x"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Attempts)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("slept = %v, want [5s]", slept)
	}
}
