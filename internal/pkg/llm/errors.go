package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind provider 错误分类
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindBadResponse ErrorKind = "bad_response"
	KindCanceled    ErrorKind = "canceled"
	KindUnknown     ErrorKind = "unknown"
)

var (
	// ErrEmptyResponse provider 返回了空内容
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrNoEndpoint 未配置对应目标的 provider
	ErrNoEndpoint = errors.New("no provider configured for target")
)

// ProviderError LLM 调用失败
type ProviderError struct {
	Provider  string
	Model     string
	Operation string
	Kind      ErrorKind
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (%s) %s failed [%s]: %v", e.Provider, e.Model, e.Operation, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 鉴权失败和调用方取消不再重试
func (e *ProviderError) Retryable() bool {
	return e.Kind != KindAuth && e.Kind != KindCanceled
}

// StatusError 非 2xx 的 HTTP 响应
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// ClassifyError 把底层错误归类
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return KindAuth
		case se.StatusCode == 429:
			return KindRateLimit
		case se.StatusCode == 408 || se.StatusCode == 504:
			return KindTimeout
		case se.StatusCode >= 500:
			return KindNetwork
		}
		return KindBadResponse
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindBadResponse
	}
	if IsRateLimitError(err) {
		return KindRateLimit
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "401"):
		return KindAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "eof"):
		return KindNetwork
	}
	return KindUnknown
}

// IsRateLimitError 判断错误是否为 Rate Limit 错误
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	// 检查 HTTP 状态码
	if strings.Contains(errMsg, "429") {
		return true
	}

	rateLimitKeywords := []string{
		"rate limit",
		"quota exceeded",
		"too many requests",
		"rate-limited",
		"request rate exceeded",
	}

	for _, keyword := range rateLimitKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

var retryAfterPattern = regexp.MustCompile(`(?i)(?:try again in|retry after)\s+(\d+)\s*(ms|s|m|h)?`)

// RetryAfter 从限流错误信息中解析建议的等待时间，解析不到返回 0
func RetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryAfterPattern.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	n, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0
	}
	unit := time.Second
	switch strings.ToLower(matches[2]) {
	case "ms":
		unit = time.Millisecond
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}
	return time.Duration(n) * unit
}
