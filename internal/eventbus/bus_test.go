package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewRunEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(RunEventStageStarted, func(ctx context.Context, event RunEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(RunEventStageStarted, func(ctx context.Context, event RunEvent) error {
		calledB = true
		return nil
	})

	if err := bus.Publish(context.Background(), RunEvent{Type: RunEventStageStarted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := NewPostEventBus()
	var saved, updated int
	bus.Subscribe(PostEventSaved, func(ctx context.Context, event PostEvent) error {
		saved++
		return nil
	})
	bus.Subscribe(PostEventUpdated, func(ctx context.Context, event PostEvent) error {
		updated++
		return nil
	})

	_ = bus.Publish(context.Background(), PostEvent{Type: PostEventSaved, PostID: "a"})
	_ = bus.Publish(context.Background(), PostEvent{Type: PostEventSaved, PostID: "b"})
	_ = bus.Publish(context.Background(), PostEvent{Type: PostEventUpdated, PostID: "a"})

	if saved != 2 || updated != 1 {
		t.Fatalf("saved=%d updated=%d", saved, updated)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewRunEventBus()
	called := false
	unsubscribe := bus.Subscribe(RunEventFinished, func(ctx context.Context, event RunEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), RunEvent{Type: RunEventFinished}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewRunEventBus()
	bus.Subscribe(RunEventFinished, func(ctx context.Context, event RunEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(RunEventFinished, func(ctx context.Context, event RunEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), RunEvent{Type: RunEventFinished}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *RunEventBus
	if err := bus.Publish(context.Background(), RunEvent{Type: RunEventFinished}); err != nil {
		t.Fatalf("nil bus should be a no-op, got %v", err)
	}
}
