package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blogforge/backend/config"
	"k8s.io/klog/v2"
)

// Client OpenAI 兼容的 HTTP 客户端，研究端点（Perplexity）默认走这里以拿到 citations
type Client struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Client      *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(pc config.ProviderConfig) *Client {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		Name:        pc.Provider,
		BaseURL:     strings.TrimRight(pc.APIURL, "/"),
		APIKey:      pc.APIKey,
		Model:       pc.Model,
		MaxTokens:   pc.MaxTokens,
		Temperature: pc.Temperature,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) ProviderName() string {
	return c.Name
}

func (c *Client) DefaultModel() string {
	return c.Model
}

// Complete 发送一次对话请求并归一化响应
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.Model
	}
	body := ChatRequest{
		Model:       modelName,
		Messages:    buildMessages(req),
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = req.Temperature
	}

	klog.V(6).Infof("Complete 请求: provider=%s, model=%s, operation=%s", c.Name, modelName, req.Operation)
	resp, err := c.sendRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	out := &Response{
		Text:    resp.Choices[0].Message.Content,
		Model:   modelName,
		Sources: resp.Citations,
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		out.InputTokens = resp.Usage.PromptTokens
		out.OutputTokens = resp.Usage.CompletionTokens
		out.UsageReported = true
	}
	return out, nil
}

func buildMessages(req Request) []ChatMessage {
	messages := make([]ChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	return append(messages, ChatMessage{Role: "user", Content: req.User})
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(6).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp ChatResponse
	decodeErr := json.Unmarshal(body, &chatResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && chatResp.Error != nil {
			msg = chatResp.Error.Message
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", decodeErr)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	return &chatResp, nil
}
