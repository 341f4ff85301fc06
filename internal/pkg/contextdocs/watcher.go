package contextdocs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"
)

// Watch 目录变化时重新加载，直到 ctx 结束
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isContextFile(event.Name) {
					continue
				}
				klog.V(6).Infof("背景文档变化: op=%s, file=%s", event.Op, event.Name)
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := s.Load(ctx); err != nil {
					klog.Warningf("重新加载背景文档失败: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				klog.Warningf("fsnotify error: %v", err)
			}
		}
	}()
	return nil
}
