package subscriber

import (
	"context"

	"github.com/blogforge/backend/internal/eventbus"
	"k8s.io/klog/v2"
)

// PostEventSubscriber 记录文章保存与编辑
type PostEventSubscriber struct{}

func NewPostEventSubscriber() *PostEventSubscriber {
	return &PostEventSubscriber{}
}

func (s *PostEventSubscriber) Register(bus *eventbus.PostEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.PostEventSaved, s.handlePost)
	bus.Subscribe(eventbus.PostEventUpdated, s.handlePost)
}

func (s *PostEventSubscriber) handlePost(ctx context.Context, event eventbus.PostEvent) error {
	klog.Infof("文章事件: type=%s, postID=%s, title=%q", event.Type, event.PostID, event.Title)
	return nil
}
