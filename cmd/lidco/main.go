// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/cmd/lidco/internal/agents"
	"github.com/lidco/lidco/cmd/lidco/internal/chat"
	"github.com/lidco/lidco/cmd/lidco/internal/configcmd"
	"github.com/lidco/lidco/cmd/lidco/internal/index"
	"github.com/lidco/lidco/cmd/lidco/internal/memorycmd"
	"github.com/lidco/lidco/cmd/lidco/internal/run"
	"github.com/lidco/lidco/pkg/logger"
)

func NewLidcoCommand() *cobra.Command {
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "lidco",
		Short: fmt.Sprintf("%s lidco - multi-agent coding assistant", internal.Logo),
		Long: "LIDCO routes each request to a specialized agent (coder, planner, reviewer, " +
			"debugger, ...), optionally plans and reviews the work, and remembers what it learned.",
		Version:       internal.FormatVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if internal.Debug {
				logger.SetLevel(logger.DEBUG)
			}
			if logJSON {
				logger.SetJSON(true)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&internal.ProjectRoot, "project", "p", "", "Project root (default: current directory)")
	cmd.PersistentFlags().BoolVarP(&internal.Debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")

	cmd.AddCommand(
		chat.NewChatCommand(),
		run.NewRunCommand(),
		configcmd.NewConfigCommand(),
		memorycmd.NewMemoryCommand(),
		index.NewIndexCommand(),
		agents.NewAgentsCommand(),
	)
	return cmd
}

func main() {
	cmd := NewLidcoCommand()
	err := cmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
