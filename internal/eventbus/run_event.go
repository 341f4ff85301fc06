package eventbus

import (
	"time"

	"github.com/blogforge/backend/internal/model"
)

type RunEventType string

const (
	RunEventStageStarted  RunEventType = "StageStarted"
	RunEventStageFinished RunEventType = "StageFinished"
	RunEventFinished      RunEventType = "RunFinished"
)

// RunEvent 流水线进度事件，Snapshot 为只读深拷贝
type RunEvent struct {
	Type     RunEventType
	RunID    string
	Agent    model.AgentName
	Status   model.AgentStatus
	Duration time.Duration
	Err      error
	Snapshot *model.GenerationState
}

func (e RunEvent) EventType() RunEventType { return e.Type }

type RunEventHandler = Handler[RunEvent]
type RunEventBus = Bus[RunEventType, RunEvent]

func NewRunEventBus() *RunEventBus {
	return NewBus[RunEventType, RunEvent]()
}
