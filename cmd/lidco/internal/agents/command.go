package agents

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/pkg/agent"
)

func NewAgentsCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List built-in and custom agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, project, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			cfg.RLock()
			dirs := append(agent.DefaultAgentDirs(project), cfg.Agents.CustomDirs...)
			cfg.RUnlock()

			rows := Merge(agent.BuiltinConfigs(), agent.DiscoverAgentConfigs(dirs))
			Print(cmd.OutOrStdout(), rows, verbose)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show model and tools")
	return cmd
}

// Row is one listed agent.
type Row struct {
	Config agent.AgentConfig
	Source string // builtin | custom | override
}

// Merge lays custom configs over the built-ins the same way the registry
// does and returns the result sorted by name.
func Merge(builtins, custom []agent.AgentConfig) []Row {
	byName := make(map[string]Row, len(builtins)+len(custom))
	for _, c := range builtins {
		byName[c.Name] = Row{Config: c, Source: "builtin"}
	}
	for _, c := range custom {
		src := "custom"
		if prev, ok := byName[c.Name]; ok && prev.Source == "builtin" {
			src = "override"
		}
		byName[c.Name] = Row{Config: c, Source: src}
	}

	rows := make([]Row, 0, len(byName))
	for _, r := range byName {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Config.Name < rows[j].Config.Name })
	return rows
}

func Print(w io.Writer, rows []Row, verbose bool) {
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s %-9s %s\n", r.Config.Name, r.Source, r.Config.Description)
		if !verbose {
			continue
		}
		model := r.Config.Model
		if model == "" {
			model = "(role " + r.Config.Name + ")"
		}
		toolList := "all"
		if len(r.Config.Tools) > 0 {
			toolList = strings.Join(r.Config.Tools, ", ")
		}
		fmt.Fprintf(w, "      model: %s  tools: %s\n", model, toolList)
	}
}
