package model

import "time"

// CostEntry 一次 LLM 调用的计费记录
type CostEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Operation      string    `json:"operation"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	Cost           float64   `json:"cost"`
	CumulativeCost float64   `json:"cumulative_cost"`
	Priced         bool      `json:"priced"`
	Warning        string    `json:"warning,omitempty"`
}
