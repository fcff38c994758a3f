package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/pkg/tools"
)

func NewRunCommand() *cobra.Command {
	var (
		agentName string
		noStream  bool
		yes       bool
		budget    bool
	)

	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Handle a single request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd.Context(), strings.Join(args, " "), agentName, !noStream, yes, budget)
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "Send the request to this agent, skipping routing")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Print the answer only when complete")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Allow every tool call the config does not deny")
	cmd.Flags().BoolVar(&budget, "budget", false, "Print token usage when done")
	return cmd
}

func runCmd(ctx context.Context, msg, agentName string, stream, yes, showBudget bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, project, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	term := internal.NewPlainTerminal(os.Stdin, os.Stdout, os.Stderr)
	var prompt tools.PromptFunc
	if !yes {
		prompt = term.Permission
	}

	rt, err := internal.NewRuntime(ctx, cfg, project, prompt)
	if err != nil {
		return err
	}
	defer rt.Close()

	if agentName != "" && rt.Agents.Get(agentName) == nil {
		return fmt.Errorf("unknown agent %q (available: %s)", agentName, strings.Join(rt.Agents.Names(), ", "))
	}

	resp := rt.Handle(ctx, msg, agentName, rt.ExecContext(term, stream && rt.Streaming()))
	streamed := term.EndStream()
	if out := internal.RenderResponse(resp, streamed); out != "" {
		fmt.Println(out)
	}
	if showBudget {
		fmt.Fprintln(os.Stderr, rt.Budget.Summary())
	}
	return resp.Err
}
