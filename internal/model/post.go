package model

import (
	"math"
	"strconv"
	"time"
)

// UnixTime 以 unix 秒（带小数）序列化的时间
type UnixTime struct {
	time.Time
}

// NewUnixTime 截断到微秒，保证序列化往返不丢精度
func NewUnixTime(t time.Time) UnixTime {
	return UnixTime{Time: t.Truncate(time.Microsecond)}
}

// Seconds 返回带小数的 unix 秒
func (t UnixTime) Seconds() float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro()) / 1e6
}

// UnixTimeFromSeconds 由 unix 秒还原时间，精度到微秒
func UnixTimeFromSeconds(secs float64) UnixTime {
	if secs == 0 {
		return UnixTime{}
	}
	return UnixTime{Time: time.UnixMicro(int64(math.Round(secs * 1e6)))}
}

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, t.Seconds(), 'f', 6, 64), nil
}

func (t *UnixTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = UnixTimeFromSeconds(secs)
	return nil
}

// Metrics 文章的传播/商业/可读性指标
type Metrics struct {
	ViralPotential   map[string]float64 `json:"viral_potential"`
	BusinessImpact   map[string]float64 `json:"business_impact"`
	ContentType      map[string]float64 `json:"content_type"`
	FunnelStage      string             `json:"funnel_stage"`
	ReaderLevel      string             `json:"reader_level"`
	ReadTimeMinutes  float64            `json:"read_time_minutes"`
	ReadabilityScore *float64           `json:"readability_score,omitempty"`
	SEOScore         *float64           `json:"seo_score,omitempty"`
	EngagementScore  *float64           `json:"engagement_score,omitempty"`
	HasRealData      *bool              `json:"has_real_data,omitempty"`
	HasCaseStudies   *bool              `json:"has_case_studies,omitempty"`
	HasExpertQuotes  *bool              `json:"has_expert_quotes,omitempty"`
}

func (m *Metrics) Clone() *Metrics {
	if m == nil {
		return nil
	}
	cp := *m
	cp.ViralPotential = cloneScores(m.ViralPotential)
	cp.BusinessImpact = cloneScores(m.BusinessImpact)
	cp.ContentType = cloneScores(m.ContentType)
	return &cp
}

func cloneScores(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DimensionAnalysis 单一维度的评分与反馈
type DimensionAnalysis struct {
	Score       float64        `json:"score"`
	Strengths   []string       `json:"strengths"`
	Weaknesses  []string       `json:"weaknesses"`
	Suggestions []string       `json:"suggestions"`
	Metadata    map[string]any `json:"metadata"`
}

// Analysis 质量审核结果
type Analysis struct {
	OverallScore  float64           `json:"overall_score"`
	Structure     DimensionAnalysis `json:"structure"`
	Accessibility DimensionAnalysis `json:"accessibility"`
	Empathy       DimensionAnalysis `json:"empathy"`
}

func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Structure = a.Structure.clone()
	cp.Accessibility = a.Accessibility.clone()
	cp.Empathy = a.Empathy.clone()
	return &cp
}

func (d DimensionAnalysis) clone() DimensionAnalysis {
	d.Strengths = cloneStrings(d.Strengths)
	d.Weaknesses = cloneStrings(d.Weaknesses)
	d.Suggestions = cloneStrings(d.Suggestions)
	if d.Metadata != nil {
		md := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		d.Metadata = md
	}
	return d
}

// Post 持久化的文章
type Post struct {
	ID              string                      `json:"id"`
	Title           string                      `json:"title"`
	Content         string                      `json:"content"`
	Topic           string                      `json:"topic"`
	Timestamp       UnixTime                    `json:"timestamp"`
	Metrics         *Metrics                    `json:"metrics"`
	Keywords        []string                    `json:"keywords"`
	Outline         []string                    `json:"outline"`
	AgentActivities map[AgentName]AgentActivity `json:"agent_activities"`
	GenerationTime  float64                     `json:"generation_time"`
	Analysis        *Analysis                   `json:"analysis,omitempty"`
	LastModified    UnixTime                    `json:"last_modified"`
	Degraded        bool                        `json:"degraded,omitempty"`
}

// PostSummary 列表展示用的摘要
type PostSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Topic        string   `json:"topic"`
	Timestamp    UnixTime `json:"timestamp"`
	LastModified UnixTime `json:"last_modified"`
}
