package memorycmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/pkg/memory"
)

func NewMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Inspect and edit persistent memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newListCommand(), newSearchCommand(), newAddCommand(), newRemoveCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memory entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s memory.Store) error {
				entries, err := s.List(ctx, category)
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only show this category")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var (
		category string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memory by key and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s memory.Store) error {
				entries, err := s.Search(ctx, strings.Join(args, " "), memory.SearchOptions{
					Category: category,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only search this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results")
	return cmd
}

func newAddCommand() *cobra.Command {
	var (
		category string
		tags     []string
	)

	cmd := &cobra.Command{
		Use:   "add <key> <content>",
		Short: "Remember a fact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s memory.Store) error {
				e, err := s.Add(ctx, memory.Entry{
					Key:      args[0],
					Content:  strings.Join(args[1:], " "),
					Category: category,
					Tags:     tags,
					Source:   "user",
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s [%s]\n", internal.Logo, e.Key, e.Category)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Category (default general)")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "Comma-separated tags")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>",
		Aliases: []string{"rm"},
		Short:   "Forget an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s memory.Store) error {
				ok, err := s.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no memory entry %q", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", internal.Logo, args[0])
				return nil
			})
		},
	}
}

func withStore(ctx context.Context, fn func(context.Context, memory.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	cfg.RLock()
	memCfg := cfg.Memory
	cfg.RUnlock()

	path := memCfg.Path
	if path == "" {
		path = memory.DefaultPath()
	}
	store, err := memory.Open(ctx, path, memory.Options{MaxEntries: memCfg.MaxEntries})
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, store)
}

func printEntries(w io.Writer, entries []memory.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s: %s", e.Category, e.Key, e.Content)
		if len(e.Tags) > 0 {
			line += "  #" + strings.Join(e.Tags, " #")
		}
		fmt.Fprintln(w, line)
	}
}
