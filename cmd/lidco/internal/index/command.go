package index

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
)

func NewIndexCommand() *cobra.Command {
	var (
		reset bool
		query string
	)

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Build the code search index for the project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			cfg, project, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			r, closeFn, err := internal.OpenRetriever(cfg, project)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if query != "" {
				found, err := r.Retrieve(ctx, query, 0)
				if err != nil {
					return err
				}
				if found == "" {
					found = "No matches."
				}
				fmt.Fprintln(out, found)
				return nil
			}

			if reset {
				if err := r.Clear(ctx); err != nil {
					return fmt.Errorf("clear index: %w", err)
				}
			}

			dir := project
			if len(args) == 1 {
				if dir, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			n, err := r.Index(ctx, dir)
			if err != nil {
				return fmt.Errorf("index %s: %w", dir, err)
			}
			total, err := r.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Indexed %d chunks (%d in index)\n", internal.Logo, n, total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "clear", false, "Drop the existing index first")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search the index instead of building it")
	return cmd
}
