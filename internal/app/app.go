// Package app 按配置组装数据库、模型调用、流水线与文章存储，供 server 和 CLI 共用
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/eventbus"
	"github.com/blogforge/backend/internal/pkg/contextdocs"
	"github.com/blogforge/backend/internal/pkg/cost"
	"github.com/blogforge/backend/internal/pkg/database"
	"github.com/blogforge/backend/internal/pkg/llm"
	"github.com/blogforge/backend/internal/repository"
	"github.com/blogforge/backend/internal/service/analysis"
	"github.com/blogforge/backend/internal/service/orchestrator"
	"github.com/blogforge/backend/internal/service/postmanager"
	"github.com/blogforge/backend/internal/service/runs"
	"github.com/blogforge/backend/internal/service/stages"
	"github.com/blogforge/backend/internal/subscriber"
	"github.com/blogforge/backend/internal/telemetry"
)

type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Ledger       *cost.Ledger
	Invoker      *llm.Invoker
	Orchestrator *orchestrator.Orchestrator
	Posts        *postmanager.Manager
	Runs         *runs.Manager
	Analysis     *analysis.Service
	CostRecords  repository.CostRecordRepository
	Keywords     repository.KeywordHistoryRepository
	Docs         *contextdocs.Store
	RunBus       *eventbus.RunEventBus
	PostBus      *eventbus.PostEventBus

	shutdownTelemetry telemetry.Shutdown
}

type options struct {
	primary  llm.Provider
	research llm.Provider
	watch    bool
}

type Option func(*options)

// WithProviders 替换按配置创建的模型提供方
func WithProviders(primary, research llm.Provider) Option {
	return func(o *options) {
		o.primary = primary
		o.research = research
	}
}

// WithWatch 监听背景文档目录变化
func WithWatch() Option {
	return func(o *options) {
		o.watch = true
	}
}

// New 初始化所有组件
func New(ctx context.Context, cfg *config.Config, version string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		// 遥测不可用不影响生成
		klog.Warningf("初始化 telemetry 失败: %v", err)
		shutdown = func(context.Context) error { return nil }
	}

	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	fail := func(err error) (*App, error) {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	costRepo := repository.NewCostRecordRepository(db)
	postIndex := repository.NewPostIndexRepository(db)
	keywords := repository.NewKeywordHistoryRepository(db)

	ledger := cost.NewLedger(
		cost.NewMarkdownLogSink(cfg.Data.CostLog),
		cost.NewRepositorySink(costRepo),
	)
	recorder := cost.NewRecorder(cost.NewPriceTable(cfg.Pricing), ledger)

	instruments := telemetry.NewInstruments()
	var invoker *llm.Invoker
	if o.primary != nil && o.research != nil {
		invoker = llm.NewInvoker(recorder, llm.RetryPolicyFromConfig(cfg.Retry),
			llm.WithEndpoint(llm.TargetPrimary, o.primary, cfg.LLM.Primary.Timeout),
			llm.WithEndpoint(llm.TargetResearch, o.research, cfg.LLM.Research.Timeout),
			llm.WithObserver(instruments),
		)
	} else {
		invoker, err = llm.NewInvokerFromConfig(cfg, recorder, llm.WithObserver(instruments))
		if err != nil {
			return fail(err)
		}
	}

	docs := contextdocs.NewStore(cfg.Data.ContextDir)
	if err := docs.Load(ctx); err != nil {
		klog.Warningf("加载背景文档失败: %v", err)
	}
	if o.watch {
		if err := docs.Watch(ctx, 500*time.Millisecond); err != nil {
			klog.Warningf("监听背景文档目录失败: %v", err)
		}
	}

	runBus := eventbus.NewRunEventBus()
	postBus := eventbus.NewPostEventBus()
	subscriber.NewRunEventSubscriber(instruments).Register(runBus)
	subscriber.NewPostEventSubscriber().Register(postBus)
	subscriber.NewKeywordHistorySubscriber(keywords).Register(postBus)

	orch := orchestrator.New(invoker,
		orchestrator.WithSettings(stages.SettingsFromConfig(cfg.Pipeline)),
		orchestrator.WithDocuments(docs),
		orchestrator.WithEventBus(runBus),
		orchestrator.WithKeywordHistory(keywords),
	)

	posts, err := postmanager.NewManager(cfg.Data.PostsDir, cfg.Data.MarkdownDir, postIndex, postmanager.WithEventBus(postBus))
	if err != nil {
		return fail(err)
	}

	runManager, err := runs.NewManager(cfg.Pipeline.Workers, orch, posts)
	if err != nil {
		return fail(err)
	}

	return &App{
		Config:            cfg,
		DB:                db,
		Ledger:            ledger,
		Invoker:           invoker,
		Orchestrator:      orch,
		Posts:             posts,
		Runs:              runManager,
		Analysis:          analysis.NewService(invoker, posts),
		CostRecords:       costRepo,
		Keywords:          keywords,
		Docs:              docs,
		RunBus:            runBus,
		PostBus:           postBus,
		shutdownTelemetry: shutdown,
	}, nil
}

// Close 等待运行结束后释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	timeout := 35 * time.Minute
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := a.Runs.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
