package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogforge/backend/internal/app"
	"github.com/blogforge/backend/internal/model"
	"github.com/blogforge/backend/internal/pkg/cost"
)

func (c *cli) newCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show API cost usage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Print a markdown cost report of all recorded calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				records, err := a.CostRecords.List(cmd.Context(), 0)
				if err != nil {
					return err
				}
				entries := make([]model.CostEntry, 0, len(records))
				for _, r := range records {
					entries = append(entries, r.ToEntry())
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), cost.Summarize(entries).Report(time.Now()))
				return err
			})
		},
	})
	return cmd
}
