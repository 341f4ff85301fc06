package model

// AgentName 流水线中每个阶段对应的 agent 名称
type AgentName string

const (
	AgentContext   AgentName = "Context Agent"
	AgentKeyword   AgentName = "Keyword Agent"
	AgentResearch  AgentName = "Research Agent"
	AgentOutline   AgentName = "Outline Agent"
	AgentContent   AgentName = "Content Agent"
	AgentQuality   AgentName = "Quality Agent"
	AgentHumanizer AgentName = "Humanizer Agent"
)

// PipelineAgents 固定的执行顺序
var PipelineAgents = []AgentName{
	AgentContext,
	AgentKeyword,
	AgentResearch,
	AgentOutline,
	AgentContent,
	AgentQuality,
	AgentHumanizer,
}

// AgentStatus agent 的执行状态
type AgentStatus string

const (
	AgentStatusWaiting   AgentStatus = "Waiting"
	AgentStatusStarting  AgentStatus = "Starting"
	AgentStatusCompleted AgentStatus = "Completed"
	AgentStatusDegraded  AgentStatus = "Completed (degraded)" // 重试耗尽后使用了兜底输出
	AgentStatusFailed    AgentStatus = "Failed"
)

// AgentActivity 面向进度展示的 agent 状态快照
type AgentActivity struct {
	Status  AgentStatus `json:"status"`
	Output  string      `json:"output"`
	Quality *float64    `json:"quality,omitempty"`
}
