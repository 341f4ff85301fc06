package subscriber

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/eventbus"
)

type keywordRecorder interface {
	Record(ctx context.Context, postID string, keywords []string, usedAt time.Time) error
}

// KeywordHistorySubscriber 文章保存后记录用过的关键词，供冷却期判断
type KeywordHistorySubscriber struct {
	recorder keywordRecorder
}

func NewKeywordHistorySubscriber(recorder keywordRecorder) *KeywordHistorySubscriber {
	return &KeywordHistorySubscriber{recorder: recorder}
}

func (s *KeywordHistorySubscriber) Register(bus *eventbus.PostEventBus) {
	if bus == nil || s.recorder == nil {
		return
	}
	bus.Subscribe(eventbus.PostEventSaved, s.handleSaved)
}

func (s *KeywordHistorySubscriber) handleSaved(ctx context.Context, event eventbus.PostEvent) error {
	if len(event.Keywords) == 0 {
		return nil
	}
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.recorder.Record(ctx, event.PostID, event.Keywords, at); err != nil {
		return err
	}
	klog.V(6).Infof("记录关键词使用: postID=%s, keywords=%v", event.PostID, event.Keywords)
	return nil
}
