package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blogforge/backend/internal/app"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/service/orchestrator"
)

func (c *cli) newGenerateCmd() *cobra.Command {
	var (
		topic string
		mode  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate blog posts for a topic",
		Long: `Run the full writing pipeline for a topic and save each result.

With --count N the pipeline runs N times concurrently (bounded by
pipeline.workers). Failed runs are reported and never saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				return runGenerate(cmd, a, topic, parsed, count)
			})
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "post topic")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(model.ModeAuto), "generation mode: auto or manual")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of posts to generate")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func runGenerate(cmd *cobra.Command, a *app.App, topic string, mode model.Mode, count int) error {
	out := cmd.OutOrStdout()
	var mu sync.Mutex
	failed := 0

	g, ctx := errgroup.WithContext(cmd.Context())
	if a.Config.Pipeline.Workers > 0 {
		g.SetLimit(a.Config.Pipeline.Workers)
	}
	for i := 0; i < count; i++ {
		g.Go(func() error {
			state, err := a.Orchestrator.Run(ctx, orchestrator.RunRequest{Topic: topic, Mode: mode}, nil)
			if err != nil {
				mu.Lock()
				failed++
				fmt.Fprintf(out, "run failed: %v\n", err)
				mu.Unlock()
				// 单次失败不影响其他运行
				return nil
			}
			post, err := a.Posts.Save(ctx, state)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "saved %s  %q  calls=%d  cost=$%.4f  degraded=%t\n",
				post.ID, post.Title, len(state.CostEntries), runCost(state), state.Degraded())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "total cost this session: $%.4f\n", a.Ledger.Total())
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, count)
	}
	return nil
}

func runCost(state *model.GenerationState) float64 {
	if n := len(state.CostEntries); n > 0 {
		return state.CostEntries[n-1].CumulativeCost
	}
	return 0
}
