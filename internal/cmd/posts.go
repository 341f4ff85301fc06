package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blogforge/backend/internal/app"
	"github.com/blogforge/backend/internal/service/postmanager"
)

func (c *cli) newPostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Inspect and edit saved posts",
	}
	cmd.AddCommand(
		c.newPostsListCmd(),
		c.newPostsShowCmd(),
		c.newPostsEditCmd(),
		c.newPostsExportCmd(),
		c.newPostsAnalyzeCmd(),
	)
	return cmd
}

func (c *cli) newPostsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				posts, err := a.Posts.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(posts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No posts found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tTOPIC\tCREATED\tMODIFIED")
				for _, p := range posts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Topic,
						p.Timestamp.Format(time.DateTime), p.LastModified.Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
}

func (c *cli) newPostsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Print a post as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				post, err := a.Posts.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(post)
			})
		},
	}
}

func (c *cli) newPostsEditCmd() *cobra.Command {
	var (
		title       string
		contentFile string
	)
	cmd := &cobra.Command{
		Use:   "edit <post-id>",
		Short: "Update a post's title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd postmanager.PostUpdate
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content file: %w", err)
				}
				content := string(data)
				upd.Content = &content
			}
			if upd.Title == nil && upd.Content == nil {
				return fmt.Errorf("nothing to update: pass --title or --content-file")
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				post, err := a.Posts.Update(cmd.Context(), args[0], upd)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s  %q  last_modified=%s\n",
					post.ID, post.Title, post.LastModified.Format(time.DateTime))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "file with the new markdown content")
	return cmd
}

func (c *cli) newPostsExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <post-id>",
		Short: "Export a post as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				md, err := a.Posts.Markdown(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if output == "" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), md)
					return err
				}
				return os.WriteFile(output, []byte(md), 0644)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (c *cli) newPostsAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <post-id>",
		Short: "Re-run the quality review and store the new scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				post, res, err := a.Analysis.AnalyzePost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "analyzed %s  %q  overall=%.2f\n", post.ID, post.Title, res.Analysis.OverallScore)
				fmt.Fprintf(out, "  structure=%.1f accessibility=%.1f empathy=%.1f\n",
					res.Analysis.Structure.Score, res.Analysis.Accessibility.Score, res.Analysis.Empathy.Score)
				for _, s := range res.Suggestions {
					fmt.Fprintf(out, "  - %s\n", s)
				}
				return nil
			})
		},
	}
}
