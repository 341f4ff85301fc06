package runs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"

	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/service/orchestrator"
)

var (
	ErrManagerStopped = errors.New("run manager is stopped")
	ErrRunNotFound    = errors.New("run not found")
)

// Runner 执行一次完整的生成流水线
type Runner interface {
	Run(ctx context.Context, req orchestrator.RunRequest, observer orchestrator.Observer) (*model.GenerationState, error)
}

// PostSaver 保存完成的生成结果
type PostSaver interface {
	Save(ctx context.Context, state *model.GenerationState) (*model.Post, error)
}

// Run 对外暴露的运行快照
type Run struct {
	ID          string                 `json:"run_id"`
	Topic       string                 `json:"topic"`
	Mode        model.Mode             `json:"mode"`
	Status      model.RunStatus        `json:"status"`
	State       *model.GenerationState `json:"state,omitempty"`
	PostID      string                 `json:"post_id,omitempty"`
	Error       string                 `json:"error,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	FinishedAt  time.Time              `json:"finished_at,omitempty"`
}

type runRecord struct {
	run  Run
	done chan struct{}
}

// Manager 在 ants 协程池上后台执行生成任务，保存每个运行的最新快照
type Manager struct {
	pool   *ants.Pool
	runner Runner
	saver  PostSaver

	mu   sync.RWMutex
	runs map[string]*runRecord

	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// 已结束运行的保留策略
	ttl         time.Duration
	maxFinished int
	now         func() time.Time
}

// 默认保留策略
const (
	DefaultRetention   = time.Hour
	DefaultMaxFinished = 500
)

type Option func(*Manager)

// WithRetention 已结束的运行保留 ttl，最多保留 maxFinished 个；零值表示不限制
func WithRetention(ttl time.Duration, maxFinished int) Option {
	return func(m *Manager) {
		m.ttl = ttl
		m.maxFinished = maxFinished
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建运行管理器，workers 为并发执行的流水线数量
func NewManager(workers int, runner Runner, saver PostSaver, opts ...Option) (*Manager, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}
	m := &Manager{
		pool:        pool,
		runner:      runner,
		saver:       saver,
		runs:        make(map[string]*runRecord),
		ttl:         DefaultRetention,
		maxFinished: DefaultMaxFinished,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Submit 登记一次运行并放入协程池，立即返回 runID
func (m *Manager) Submit(topic string, mode model.Mode) (string, error) {
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidMode, mode)
	}
	if strings.TrimSpace(topic) == "" {
		return "", orchestrator.ErrEmptyTopic
	}

	id := uuid.New().String()
	rec := &runRecord{
		run: Run{
			ID:          id,
			Topic:       topic,
			Mode:        mode,
			Status:      model.RunStatusPending,
			SubmittedAt: m.now(),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return "", ErrManagerStopped
	}
	m.pruneLocked()
	m.runs[id] = rec
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.pool.Submit(func() { m.execute(rec) }); err != nil {
		m.wg.Done()
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
		klog.Errorf("[runs] 提交任务失败: runID=%s, error=%v", id, err)
		return "", err
	}
	klog.V(6).Infof("[runs] 任务已提交: runID=%s, topic=%s, mode=%s", id, topic, mode)
	return id, nil
}

func (m *Manager) execute(rec *runRecord) {
	defer m.wg.Done()
	defer close(rec.done)

	// 运行与提交方的生命周期无关
	ctx := context.Background()
	id := rec.run.ID
	req := orchestrator.RunRequest{RunID: id, Topic: rec.run.Topic, Mode: rec.run.Mode}

	state, err := m.runner.Run(ctx, req, func(snapshot *model.GenerationState) {
		m.update(id, func(r *Run) {
			r.State = snapshot
			r.Status = snapshot.Status
		})
	})
	if err != nil {
		klog.Errorf("[runs] 运行失败: runID=%s, error=%v", id, err)
		m.finish(id, state, "", err)
		return
	}

	post, err := m.saver.Save(ctx, state)
	if err != nil {
		klog.Errorf("[runs] 保存文章失败: runID=%s, error=%v", id, err)
		m.finish(id, state, "", err)
		return
	}
	klog.V(6).Infof("[runs] 运行完成: runID=%s, postID=%s", id, post.ID)
	m.finish(id, state, post.ID, nil)
}

func (m *Manager) finish(id string, state *model.GenerationState, postID string, err error) {
	m.update(id, func(r *Run) {
		if state != nil {
			r.State = state.Clone()
		}
		r.PostID = postID
		r.FinishedAt = m.now()
		if err != nil {
			r.Status = model.RunStatusFailed
			r.Error = err.Error()
			return
		}
		r.Status = model.RunStatusDone
	})
}

func (m *Manager) update(id string, fn func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.runs[id]; ok {
		fn(&rec.run)
		if !rec.run.FinishedAt.IsZero() {
			m.pruneLocked()
		}
	}
}

// pruneLocked 删除超过 ttl 的已结束运行，数量仍超上限时从最早结束的开始删，调用方持有 m.mu
func (m *Manager) pruneLocked() {
	now := m.now()
	var finished []*runRecord
	for id, rec := range m.runs {
		if rec.run.FinishedAt.IsZero() {
			continue
		}
		if m.ttl > 0 && now.Sub(rec.run.FinishedAt) > m.ttl {
			delete(m.runs, id)
			continue
		}
		finished = append(finished, rec)
	}
	if m.maxFinished <= 0 || len(finished) <= m.maxFinished {
		return
	}
	slices.SortFunc(finished, func(a, b *runRecord) int {
		return a.run.FinishedAt.Compare(b.run.FinishedAt)
	})
	for _, rec := range finished[:len(finished)-m.maxFinished] {
		delete(m.runs, rec.run.ID)
	}
}

// Get 返回运行的最新快照
func (m *Manager) Get(id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return rec.snapshot(), nil
}

// Wait 阻塞到运行结束或 ctx 取消
func (m *Manager) Wait(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	rec, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return Run{}, ErrRunNotFound
	}
	select {
	case <-rec.done:
		// 运行可能已被清理，直接读记录本身
		m.mu.RLock()
		defer m.mu.RUnlock()
		return rec.snapshot(), nil
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
}

// Shutdown 停止接收新任务并等待已提交的运行完成
func (m *Manager) Shutdown(timeout time.Duration) error {
	var err error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		if running := m.pool.Running(); running > 0 {
			klog.V(6).Infof("[runs] 等待 %d 个运行结束", running)
		}
		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("timeout after %s waiting for runs", timeout)
			klog.Warningf("[runs] %v", err)
		}
		if rErr := m.pool.ReleaseTimeout(time.Second); rErr != nil && err == nil {
			err = rErr
		}
	})
	return err
}

func (r *runRecord) snapshot() Run {
	cp := r.run
	cp.State = r.run.State.Clone()
	return cp
}
