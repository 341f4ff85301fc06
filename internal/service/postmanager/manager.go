package postmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/eventbus"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/markdown"
	"github.com/blogforge/backend/internal/repository"
	"github.com/blogforge/backend/internal/utils"
)

// PostUpdate 为 nil 的字段保持不变
type PostUpdate struct {
	ID       *string
	Title    *string
	Content  *string
	Analysis *model.Analysis
	Metrics  *model.Metrics
}

// Manager 文章存储：JSON 文件是数据本体，Markdown 是导出形式，索引表负责排序
type Manager struct {
	postsDir    string
	markdownDir string
	index       repository.PostIndexRepository
	bus         *eventbus.PostEventBus
	locks       *keyedMutex
	now         func() time.Time
}

type Option func(*Manager)

func WithEventBus(bus *eventbus.PostEventBus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建文章管理器，目录不存在时自动创建
func NewManager(postsDir, markdownDir string, index repository.PostIndexRepository, opts ...Option) (*Manager, error) {
	for _, dir := range []string{postsDir, markdownDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &PersistenceError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	m := &Manager{
		postsDir:    postsDir,
		markdownDir: markdownDir,
		index:       index,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Save 把完成的生成状态落盘为新文章
func (m *Manager) Save(ctx context.Context, state *model.GenerationState) (*model.Post, error) {
	if state == nil || state.Status != model.RunStatusDone {
		return nil, ErrIncompleteRun
	}

	id := uuid.New().String()
	now := model.NewUnixTime(m.now())
	post := &model.Post{
		ID:              id,
		Title:           state.Title,
		Content:         state.FinalContent,
		Topic:           state.Topic,
		Timestamp:       now,
		Metrics:         state.Metrics.Clone(),
		Keywords:        append([]string(nil), state.Keywords...),
		Outline:         append([]string(nil), state.Outline...),
		AgentActivities: model.CloneActivities(state.AgentActivities),
		GenerationTime:  state.GenerationTime,
		Analysis:        state.Analysis.Clone(),
		LastModified:    now,
		Degraded:        state.Degraded(),
	}

	base := fmt.Sprintf("%s_%s", utils.Slugify(post.Topic), id[:8])
	jsonPath := filepath.Join(m.postsDir, base+".json")
	mdPath := filepath.Join(m.markdownDir, base+".md")

	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.writeFiles(post, jsonPath, mdPath); err != nil {
		removeFiles(jsonPath, mdPath)
		return nil, err
	}

	idx := &model.PostIndex{
		ID:           id,
		Title:        post.Title,
		Topic:        post.Topic,
		Timestamp:    post.Timestamp.Seconds(),
		LastModified: post.LastModified.Seconds(),
		JSONPath:     jsonPath,
		MarkdownPath: mdPath,
	}
	if err := m.index.Create(ctx, idx); err != nil {
		// 索引写失败时回滚文件，避免出现列表里看不到的孤儿文件
		removeFiles(jsonPath, mdPath)
		return nil, &PersistenceError{Op: "index", Err: err}
	}

	klog.V(6).Infof("[postmanager] 保存文章: id=%s, title=%s, path=%s", id, post.Title, jsonPath)
	m.publish(ctx, eventbus.PostEvent{
		Type:     eventbus.PostEventSaved,
		PostID:   post.ID,
		Title:    post.Title,
		Topic:    post.Topic,
		Keywords: append([]string(nil), post.Keywords...),
		At:       post.Timestamp.Time,
	})
	return post, nil
}

// Load 读取完整文章
func (m *Manager) Load(ctx context.Context, id string) (*model.Post, error) {
	idx, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return readPost(idx.JSONPath)
}

// List 按创建时间倒序返回摘要
func (m *Manager) List(ctx context.Context) ([]model.PostSummary, error) {
	rows, err := m.index.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	summaries := make([]model.PostSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, model.PostSummary{
			ID:           row.ID,
			Title:        row.Title,
			Topic:        row.Topic,
			Timestamp:    model.UnixTimeFromSeconds(row.Timestamp),
			LastModified: model.UnixTimeFromSeconds(row.LastModified),
		})
	}
	return summaries, nil
}

// Update 修改文章并重新生成 Markdown；同一篇文章的并发修改串行执行，后写者胜出
func (m *Manager) Update(ctx context.Context, id string, upd PostUpdate) (*model.Post, error) {
	if upd.ID != nil && *upd.ID != id {
		return nil, ErrIDImmutable
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	idx, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	post, err := readPost(idx.JSONPath)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		post.Title = *upd.Title
	}
	if upd.Content != nil {
		content := *upd.Content
		if upd.Title == nil {
			if h1 := markdown.Title(content); h1 != "" {
				post.Title = h1
			}
		}
		post.Content = markdown.StripTitle(content)
		if outline := outlineOf(post.Content); len(outline) > 0 {
			post.Outline = outline
		}
	}
	if upd.Analysis != nil {
		post.Analysis = upd.Analysis.Clone()
	}
	if upd.Metrics != nil {
		post.Metrics = upd.Metrics.Clone()
	}

	lastModified := model.NewUnixTime(m.now())
	if lastModified.Before(post.Timestamp.Time) {
		lastModified = post.Timestamp
	}
	post.LastModified = lastModified

	// 任何一步失败都恢复原文件，文件与索引保持一致
	backups, err := backupFiles(idx.JSONPath, idx.MarkdownPath)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Err: err}
	}
	if err := m.writeFiles(post, idx.JSONPath, idx.MarkdownPath); err != nil {
		restoreFiles(backups)
		return nil, err
	}
	if err := m.index.UpdateMeta(ctx, id, post.Title, post.LastModified.Seconds()); err != nil {
		restoreFiles(backups)
		return nil, &PersistenceError{Op: "index", Err: err}
	}

	klog.V(6).Infof("[postmanager] 更新文章: id=%s, title=%s", id, post.Title)
	m.publish(ctx, eventbus.PostEvent{Type: eventbus.PostEventUpdated, PostID: post.ID, Title: post.Title, Topic: post.Topic})
	return post, nil
}

// Markdown 返回文章的导出形式
func (m *Manager) Markdown(ctx context.Context, id string) (string, error) {
	post, err := m.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return RenderPost(post), nil
}

// RenderPost 按标题、大纲和正文生成 Markdown
func RenderPost(post *model.Post) string {
	return markdown.Render(post.Title, post.Outline, post.Content)
}

func (m *Manager) lookup(ctx context.Context, id string) (*model.PostIndex, error) {
	idx, err := m.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
		}
		return nil, &PersistenceError{Op: "index", Err: err}
	}
	return idx, nil
}

func (m *Manager) writeFiles(post *model.Post, jsonPath, mdPath string) error {
	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Path: jsonPath, Err: err}
	}
	if err := writeFileAtomic(jsonPath, data); err != nil {
		return &PersistenceError{Op: "write", Path: jsonPath, Err: err}
	}
	if err := writeFileAtomic(mdPath, []byte(RenderPost(post))); err != nil {
		return &PersistenceError{Op: "write", Path: mdPath, Err: err}
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, event eventbus.PostEvent) {
	if err := m.bus.Publish(ctx, event); err != nil {
		klog.Warningf("[postmanager] 事件处理失败: type=%s, id=%s, error=%v", event.Type, event.PostID, err)
	}
}

func readPost(path string) (*model.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	var post model.Post
	if err := json.Unmarshal(data, &post); err != nil {
		return nil, &PersistenceError{Op: "decode", Path: path, Err: err}
	}
	return &post, nil
}

// outlineOf 从正文的二级标题推导大纲
func outlineOf(content string) []string {
	_, sections := markdown.Split(content)
	outline := make([]string, 0, len(sections))
	for _, s := range sections {
		outline = append(outline, markdown.PlainText(s.Title))
	}
	return outline
}
