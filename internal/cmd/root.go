// Package cmd 实现 blogforge 命令行
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/blogforge/backend/config"
	"github.com/blogforge/backend/internal/app"
)

var version = "dev"

// AppFactory 按配置创建应用，测试中可替换模型提供方
type AppFactory func(ctx context.Context, cfg *config.Config) (*app.App, error)

func defaultFactory(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg, version)
}

type cli struct {
	configPath string
	factory    AppFactory
}

// NewRootCmd 构建命令树
func NewRootCmd(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = defaultFactory
	}
	c := &cli{factory: factory}

	root := &cobra.Command{
		Use:   "blogforge",
		Short: "Multi-stage blog post generator",
		Long: `blogforge runs a fixed pipeline of writing agents (context, keywords,
research, outline, content, quality check, humanizer) against an LLM,
stores the resulting posts and tracks API cost per call.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default is $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		c.newGenerateCmd(),
		c.newPostsCmd(),
		c.newCostsCmd(),
		c.newConfigCmd(),
	)
	return root
}

// Execute 运行命令行
func Execute() error {
	root := NewRootCmd(nil)
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	return root.Execute()
}

func (c *cli) loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	return config.Load(path)
}

// withApp 创建应用，执行 fn 后关闭
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	a, err := c.factory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", cerr)
		}
	}()
	return fn(a)
}
