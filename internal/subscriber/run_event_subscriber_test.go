package subscriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blogforge/backend/internal/eventbus"
	"github.com/blogforge/backend/internal/model"
)

type recordingObserver struct {
	stages []model.AgentStatus
	runs   []model.RunStatus
	degr   []bool
}

func (o *recordingObserver) ObserveStage(ctx context.Context, agent model.AgentName, status model.AgentStatus, d time.Duration) {
	o.stages = append(o.stages, status)
}

func (o *recordingObserver) ObserveRun(ctx context.Context, status model.RunStatus, degraded bool) {
	o.runs = append(o.runs, status)
	o.degr = append(o.degr, degraded)
}

func TestRunEventSubscriberForwardsToObserver(t *testing.T) {
	bus := eventbus.NewRunEventBus()
	obs := &recordingObserver{}
	NewRunEventSubscriber(obs).Register(bus)
	ctx := context.Background()

	_ = bus.Publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventStageStarted, RunID: "r1", Agent: model.AgentContent})
	_ = bus.Publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventStageFinished, RunID: "r1", Agent: model.AgentContent, Status: model.AgentStatusDegraded})

	snap := model.NewGenerationState("r1", "WCAG", model.ModeManual)
	snap.Status = model.RunStatusDone
	snap.AgentActivities[model.AgentContent] = model.AgentActivity{Status: model.AgentStatusDegraded}
	_ = bus.Publish(ctx, eventbus.RunEvent{Type: eventbus.RunEventFinished, RunID: "r1", Snapshot: snap})

	if len(obs.stages) != 1 || obs.stages[0] != model.AgentStatusDegraded {
		t.Fatalf("unexpected stage observations: %v", obs.stages)
	}
	if len(obs.runs) != 1 || obs.runs[0] != model.RunStatusDone || !obs.degr[0] {
		t.Fatalf("unexpected run observations: %v %v", obs.runs, obs.degr)
	}
}

func TestRunEventSubscriberFailedRun(t *testing.T) {
	bus := eventbus.NewRunEventBus()
	obs := &recordingObserver{}
	NewRunEventSubscriber(obs).Register(bus)

	snap := model.NewGenerationState("r2", "WCAG", model.ModeAuto)
	snap.Status = model.RunStatusFailed
	err := bus.Publish(context.Background(), eventbus.RunEvent{
		Type:     eventbus.RunEventFinished,
		RunID:    "r2",
		Agent:    model.AgentOutline,
		Err:      errors.New("boom"),
		Snapshot: snap,
	})
	if err != nil {
		t.Fatalf("subscriber should not fail: %v", err)
	}
	if len(obs.runs) != 1 || obs.runs[0] != model.RunStatusFailed {
		t.Fatalf("unexpected run observations: %v", obs.runs)
	}
}
