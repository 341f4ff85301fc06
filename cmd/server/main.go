package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/app"
	"github.com/blogforge/backend/internal/handler"
	"github.com/blogforge/backend/internal/router"
)

var version = "dev"

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, version, app.WithWatch())
	if err != nil {
		klog.Fatalf("Failed to initialize application: %v", err)
	}

	r := router.Setup(cfg,
		handler.NewRunHandler(a.Runs),
		handler.NewPostHandler(a.Posts),
		handler.NewCostHandler(a.CostRecords),
		handler.NewAnalysisHandler(a.Analysis),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		klog.Infof("Server starting on port %s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	klog.Info("服务关闭中...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		klog.Warningf("HTTP server shutdown: %v", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		klog.Warningf("application shutdown: %v", err)
	}
}
