package model

import (
	"time"
)

// RunStatus 一次生成运行的整体状态
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// ResearchFinding 研究阶段的一条结论
type ResearchFinding struct {
	Content    string   `json:"content"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// GenerationState 在各阶段之间传递的生成状态
type GenerationState struct {
	RunID            string                      `json:"run_id"`
	Topic            string                      `json:"topic"`
	Mode             Mode                        `json:"mode"`
	Status           RunStatus                   `json:"status"`
	FailedStage      AgentName                   `json:"failed_stage,omitempty"`
	Context          string                      `json:"context"`
	Keywords         []string                    `json:"keywords"`
	ResearchFindings []ResearchFinding           `json:"research_findings"`
	Outline          []string                    `json:"outline"`
	Title            string                      `json:"title"`
	DraftContent     string                      `json:"draft_content"`
	QualityContent   string                      `json:"quality_content"`
	FinalContent     string                      `json:"final_content"`
	Analysis         *Analysis                   `json:"analysis,omitempty"`
	Metrics          *Metrics                    `json:"metrics,omitempty"`
	AgentActivities  map[AgentName]AgentActivity `json:"agent_activities"`
	CostEntries      []CostEntry                 `json:"cost_entries"`
	StartedAt        time.Time                   `json:"started_at"`
	FinishedAt       time.Time                   `json:"finished_at"`
	GenerationTime   float64                     `json:"generation_time"`
}

// NewGenerationState 初始化状态，所有 agent 置为 Waiting
func NewGenerationState(runID, topic string, mode Mode) *GenerationState {
	activities := make(map[AgentName]AgentActivity, len(PipelineAgents))
	for _, name := range PipelineAgents {
		activities[name] = AgentActivity{Status: AgentStatusWaiting}
	}
	return &GenerationState{
		RunID:           runID,
		Topic:           topic,
		Mode:            mode,
		Status:          RunStatusPending,
		AgentActivities: activities,
	}
}

// Degraded 是否有阶段使用了兜底输出
func (s *GenerationState) Degraded() bool {
	for _, a := range s.AgentActivities {
		if a.Status == AgentStatusDegraded {
			return true
		}
	}
	return false
}

// Clone 深拷贝，供只读快照使用
func (s *GenerationState) Clone() *GenerationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Keywords = cloneStrings(s.Keywords)
	cp.Outline = cloneStrings(s.Outline)
	if s.ResearchFindings != nil {
		cp.ResearchFindings = make([]ResearchFinding, len(s.ResearchFindings))
		for i, f := range s.ResearchFindings {
			f.Sources = cloneStrings(f.Sources)
			cp.ResearchFindings[i] = f
		}
	}
	cp.AgentActivities = CloneActivities(s.AgentActivities)
	if s.CostEntries != nil {
		cp.CostEntries = append([]CostEntry(nil), s.CostEntries...)
	}
	cp.Analysis = s.Analysis.Clone()
	cp.Metrics = s.Metrics.Clone()
	return &cp
}

// CloneActivities 拷贝 agent 状态表
func CloneActivities(in map[AgentName]AgentActivity) map[AgentName]AgentActivity {
	if in == nil {
		return nil
	}
	out := make(map[AgentName]AgentActivity, len(in))
	for k, v := range in {
		if v.Quality != nil {
			q := *v.Quality
			v.Quality = &q
		}
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
