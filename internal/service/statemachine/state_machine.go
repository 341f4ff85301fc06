package statemachine

import (
	"fmt"

	"github.com/blogforge/backend/internal/model"
	"k8s.io/klog/v2"
)

// Transition 定义一次状态迁移
type Transition[S ~string] struct {
	From S
	To   S
}

// Machine 基于迁移表的状态机
type Machine[S ~string] struct {
	kind string
	// 定义所有合法的状态迁移
	allowedTransitions map[Transition[S]]bool
}

func newMachine[S ~string](kind string, transitions []Transition[S]) *Machine[S] {
	sm := &Machine[S]{
		kind:               kind,
		allowedTransitions: make(map[Transition[S]]bool, len(transitions)),
	}
	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// AgentMachine agent 状态机
type AgentMachine = Machine[model.AgentStatus]

// RunMachine 运行状态机
type RunMachine = Machine[model.RunStatus]

// NewAgentMachine 创建 agent 状态机
func NewAgentMachine() *AgentMachine {
	// Waiting -> Starting -> Completed/Completed (degraded)/Failed
	return newMachine("agent", []Transition[model.AgentStatus]{
		{model.AgentStatusWaiting, model.AgentStatusStarting},
		{model.AgentStatusStarting, model.AgentStatusCompleted},
		{model.AgentStatusStarting, model.AgentStatusDegraded},
		{model.AgentStatusStarting, model.AgentStatusFailed},
	})
}

// NewRunMachine 创建运行状态机
func NewRunMachine() *RunMachine {
	// pending -> running -> done/failed
	return newMachine("run", []Transition[model.RunStatus]{
		{model.RunStatusPending, model.RunStatusRunning},
		{model.RunStatusRunning, model.RunStatusDone},
		{model.RunStatusRunning, model.RunStatusFailed},
	})
}

// CanTransition 检查状态迁移是否合法
func (sm *Machine[S]) CanTransition(from, to S) bool {
	if from == to {
		return false // 不允许状态不变
	}
	return sm.allowedTransitions[Transition[S]{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *Machine[S]) ValidateTransition(from, to S) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Kind: sm.kind,
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *Machine[S]) Transition(from, to S, subject string) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("%s 状态迁移被拒绝: %s, %s -> %s, error=%v", sm.kind, subject, from, to, err)
		return err
	}
	klog.V(6).Infof("%s 状态迁移成功: %s, %s -> %s", sm.kind, subject, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	Kind string
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Kind, e.From, e.To)
}

// IsTerminalAgent 判断 agent 状态是否为终止态
func IsTerminalAgent(status model.AgentStatus) bool {
	return status == model.AgentStatusCompleted || status == model.AgentStatusDegraded || status == model.AgentStatusFailed
}

// IsTerminalRun 判断运行是否结束
func IsTerminalRun(status model.RunStatus) bool {
	return status == model.RunStatusDone || status == model.RunStatusFailed
}
