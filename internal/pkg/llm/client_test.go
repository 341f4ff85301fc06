package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blogforge/backend/config"
)

func TestNewClient(t *testing.T) {
	client := NewClient(config.ProviderConfig{
		Provider:  "perplexity",
		APIURL:    "https://api.example.com/",
		APIKey:    "test-key",
		Model:     "sonar-small-online",
		MaxTokens: 2000,
	})

	if client.BaseURL != "https://api.example.com" {
		t.Errorf("expected BaseURL https://api.example.com, got %s", client.BaseURL)
	}
	if client.ProviderName() != "perplexity" {
		t.Errorf("expected provider perplexity, got %s", client.ProviderName())
	}
	if client.DefaultModel() != "sonar-small-online" {
		t.Errorf("expected model sonar-small-online, got %s", client.DefaultModel())
	}
	if client.Client == nil || client.Client.Timeout == 0 {
		t.Error("expected HTTP client with timeout")
	}
}

func TestClientCompleteParsesUsageAndCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.Temperature != 0.3 {
			t.Errorf("expected per-call temperature 0.3, got %v", req.Temperature)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "test-id",
			"model": "sonar-small-online",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "WCAG 2.2 adds nine criteria."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
			"citations": ["https://www.w3.org/TR/WCAG22/"]
		}`))
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{Provider: "perplexity", APIURL: server.URL, APIKey: "test-key", Model: "sonar-small-online", Temperature: 0.2})
	resp, err := client.Complete(context.Background(), Request{System: "sys", User: "hi", Temperature: 0.3, Operation: "research"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Text != "WCAG 2.2 adds nine criteria." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if !resp.UsageReported || resp.InputTokens != 12 || resp.OutputTokens != 8 {
		t.Errorf("unexpected usage: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "https://www.w3.org/TR/WCAG22/" {
		t.Errorf("unexpected sources: %v", resp.Sources)
	}
}

func TestClientCompleteStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadGateway, KindNetwork},
		{http.StatusBadRequest, KindBadResponse},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error": {"message": "boom", "type": "x"}}`))
		}))

		client := NewClient(config.ProviderConfig{Provider: "openai", APIURL: server.URL, Model: "gpt-4"})
		_, err := client.Complete(context.Background(), Request{User: "hi"})
		server.Close()

		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != tc.status || se.Message != "boom" {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
		if kind := ClassifyError(err); kind != tc.kind {
			t.Fatalf("status %d: expected kind %s, got %s", tc.status, tc.kind, kind)
		}
	}
}

func TestClientCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewClient(config.ProviderConfig{APIURL: server.URL})
	_, err := client.Complete(context.Background(), Request{User: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewProviderDrivers(t *testing.T) {
	if _, err := NewProvider(config.ProviderConfig{Driver: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	p, err := NewProvider(config.ProviderConfig{Driver: "openai", Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"})
	if err != nil {
		t.Fatalf("openai driver error: %v", err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", p)
	}
	p, err = NewProvider(config.ProviderConfig{Driver: "http", Provider: "perplexity"})
	if err != nil {
		t.Fatalf("http driver error: %v", err)
	}
	if _, ok := p.(*Client); !ok {
		t.Fatalf("expected *Client, got %T", p)
	}
}
