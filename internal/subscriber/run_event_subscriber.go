package subscriber

import (
	"context"
	"time"

	"github.com/blogforge/backend/internal/eventbus"
	"github.com/blogforge/backend/internal/model"
	"k8s.io/klog/v2"
)

type stageObserver interface {
	ObserveStage(ctx context.Context, agent model.AgentName, status model.AgentStatus, d time.Duration)
	ObserveRun(ctx context.Context, status model.RunStatus, degraded bool)
}

// RunEventSubscriber 把流水线事件转成日志与指标
type RunEventSubscriber struct {
	observer stageObserver
}

func NewRunEventSubscriber(observer stageObserver) *RunEventSubscriber {
	return &RunEventSubscriber{observer: observer}
}

func (s *RunEventSubscriber) Register(bus *eventbus.RunEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.RunEventStageStarted, s.handleStageStarted)
	bus.Subscribe(eventbus.RunEventStageFinished, s.handleStageFinished)
	bus.Subscribe(eventbus.RunEventFinished, s.handleRunFinished)
}

func (s *RunEventSubscriber) handleStageStarted(ctx context.Context, event eventbus.RunEvent) error {
	klog.V(6).Infof("阶段开始: runID=%s, agent=%s", event.RunID, event.Agent)
	return nil
}

func (s *RunEventSubscriber) handleStageFinished(ctx context.Context, event eventbus.RunEvent) error {
	switch event.Status {
	case model.AgentStatusFailed:
		klog.Errorf("阶段失败: runID=%s, agent=%s, 耗时=%s, error=%v", event.RunID, event.Agent, event.Duration, event.Err)
	case model.AgentStatusDegraded:
		klog.Warningf("阶段降级完成: runID=%s, agent=%s, 耗时=%s", event.RunID, event.Agent, event.Duration)
	default:
		klog.V(6).Infof("阶段完成: runID=%s, agent=%s, 耗时=%s", event.RunID, event.Agent, event.Duration)
	}
	if s.observer != nil {
		s.observer.ObserveStage(ctx, event.Agent, event.Status, event.Duration)
	}
	return nil
}

func (s *RunEventSubscriber) handleRunFinished(ctx context.Context, event eventbus.RunEvent) error {
	status := model.RunStatusDone
	degraded := false
	if event.Snapshot != nil {
		status = event.Snapshot.Status
		degraded = event.Snapshot.Degraded()
	}
	if event.Err != nil {
		klog.Errorf("运行失败: runID=%s, stage=%s, error=%v", event.RunID, event.Agent, event.Err)
	} else {
		klog.V(6).Infof("运行完成: runID=%s, status=%s, degraded=%v", event.RunID, status, degraded)
	}
	if s.observer != nil {
		s.observer.ObserveRun(ctx, status, degraded)
	}
	return nil
}
