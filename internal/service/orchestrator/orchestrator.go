// Package orchestrator 按固定顺序执行七个阶段，维护一次运行的生成状态
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blogforge/backend/internal/eventbus"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/cost"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/service/stages"
	"github.com/blogforge/backend/internal/service/statemachine"
	"github.com/blogforge/backend/internal/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

var ErrEmptyTopic = errors.New("topic is required")

// PipelineError 阶段在重试与兜底之后仍然失败
type PipelineError struct {
	Stage model.AgentName
	Cause error
	// State 失败时的部分状态，用于排查
	State *model.GenerationState
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// RunRequest 一次运行的输入
type RunRequest struct {
	RunID string
	Topic string
	Mode  model.Mode
}

// Observer 每次状态变化后收到只读快照
type Observer func(snapshot *model.GenerationState)

type Orchestrator struct {
	invoker  *llm.Invoker
	settings stages.Settings
	docs     stages.Documents
	history  stages.KeywordHistory
	stages   []stages.Stage
	agentSM  *statemachine.AgentMachine
	runSM    *statemachine.RunMachine
	bus      *eventbus.RunEventBus
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithSettings(s stages.Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

func WithDocuments(docs stages.Documents) Option {
	return func(o *Orchestrator) { o.docs = docs }
}

// WithKeywordHistory 自动模式下跳过冷却期内的关键词
func WithKeywordHistory(history stages.KeywordHistory) Option {
	return func(o *Orchestrator) { o.history = history }
}

func WithEventBus(bus *eventbus.RunEventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithStages 替换阶段列表，测试用
func WithStages(list ...stages.Stage) Option {
	return func(o *Orchestrator) { o.stages = list }
}

func New(invoker *llm.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:  invoker,
		settings: stages.DefaultSettings(),
		stages:   stages.Pipeline(),
		agentSM:  statemachine.NewAgentMachine(),
		runSM:    statemachine.NewRunMachine(),
		tracer:   otel.Tracer("blogforge/orchestrator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run 顺序执行所有阶段。失败时返回 *PipelineError，同时返回保留到失败点的状态。
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, observer Observer) (*model.GenerationState, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidMode, req.Mode)
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, ErrEmptyTopic
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	state := model.NewGenerationState(req.RunID, strings.TrimSpace(req.Topic), req.Mode)
	ledger := cost.NewLedger()
	env := stages.Env{
		Invoker:  o.invoker.ForRun(ledger),
		Settings: o.settings,
		Docs:     o.docs,
		History:  o.history,
		Now:      o.now,
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.run_id", state.RunID),
		attribute.String("pipeline.topic", state.Topic),
		attribute.String("pipeline.mode", string(state.Mode)),
	))
	defer span.End()

	if err := o.runSM.Transition(state.Status, model.RunStatusRunning, state.RunID); err != nil {
		return nil, err
	}
	state.Status = model.RunStatusRunning
	state.StartedAt = o.now()
	klog.V(6).Infof("开始生成: runID=%s, topic=%s, mode=%s", state.RunID, state.Topic, state.Mode)

	for _, stage := range o.stages {
		if err := o.runStage(ctx, stage, state, env, ledger, observer); err != nil {
			o.finish(state, model.RunStatusFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventFinished, RunID: state.RunID, Agent: stage.Agent(), Err: err, Snapshot: state.Clone()})
			notify(observer, state)
			return state, &PipelineError{Stage: stage.Agent(), Cause: err, State: state}
		}
	}

	if state.Title == "" {
		state.Title = utils.TitleCase(state.Topic) + ": A Complete Guide"
	}
	state.Metrics = stages.BuildMetrics(state)
	o.finish(state, model.RunStatusDone)
	span.SetAttributes(
		attribute.Float64("pipeline.generation_time", state.GenerationTime),
		attribute.Bool("pipeline.degraded", state.Degraded()),
	)
	o.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventFinished, RunID: state.RunID, Snapshot: state.Clone()})
	notify(observer, state)
	klog.V(6).Infof("生成完成: runID=%s, title=%q, 耗时=%.2fs, 费用=$%.4f", state.RunID, state.Title, state.GenerationTime, ledger.Total())
	return state, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage stages.Stage, state *model.GenerationState, env stages.Env, ledger *cost.Ledger, observer Observer) error {
	agent := stage.Agent()
	if err := o.setStatus(state, agent, model.AgentStatusStarting, "", nil); err != nil {
		return err
	}
	o.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventStageStarted, RunID: state.RunID, Agent: agent, Status: model.AgentStatusStarting, Snapshot: state.Clone()})
	notify(observer, state)

	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.agent", string(agent)),
	))
	defer span.End()

	start := o.now()
	out, err := stage.Run(ctx, state, env)
	state.CostEntries = ledger.Entries()
	elapsed := o.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		state.FailedStage = agent
		if serr := o.setStatus(state, agent, model.AgentStatusFailed, err.Error(), nil); serr != nil {
			klog.Errorf("记录阶段失败状态出错: runID=%s, agent=%s, error=%v", state.RunID, agent, serr)
		}
		o.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventStageFinished, RunID: state.RunID, Agent: agent, Status: model.AgentStatusFailed, Duration: elapsed, Err: err, Snapshot: state.Clone()})
		notify(observer, state)
		return err
	}

	if out.Apply != nil {
		out.Apply(state)
	}
	status := model.AgentStatusCompleted
	if out.Degraded {
		status = model.AgentStatusDegraded
	}
	if err := o.setStatus(state, agent, status, out.Summary, out.Score); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("pipeline.status", string(status)))
	o.publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventStageFinished, RunID: state.RunID, Agent: agent, Status: status, Duration: elapsed, Snapshot: state.Clone()})
	notify(observer, state)
	return nil
}

func (o *Orchestrator) setStatus(state *model.GenerationState, agent model.AgentName, status model.AgentStatus, output string, score *float64) error {
	current := state.AgentActivities[agent]
	if current.Status == "" {
		current.Status = model.AgentStatusWaiting
	}
	if err := o.agentSM.Transition(current.Status, status, state.RunID+"/"+string(agent)); err != nil {
		return err
	}
	state.AgentActivities[agent] = model.AgentActivity{Status: status, Output: output, Quality: score}
	return nil
}

func (o *Orchestrator) finish(state *model.GenerationState, status model.RunStatus) {
	if err := o.runSM.Transition(state.Status, status, state.RunID); err != nil {
		klog.Errorf("运行状态迁移失败: runID=%s, error=%v", state.RunID, err)
	}
	state.Status = status
	state.FinishedAt = o.now()
	state.GenerationTime = state.FinishedAt.Sub(state.StartedAt).Seconds()
}

func (o *Orchestrator) publish(ctx context.Context, event eventbus.RunEvent) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, event); err != nil {
		klog.Warningf("发布运行事件失败: runID=%s, type=%s, error=%v", event.RunID, event.Type, err)
	}
}

func notify(observer Observer, state *model.GenerationState) {
	if observer != nil {
		observer(state.Clone())
	}
}
