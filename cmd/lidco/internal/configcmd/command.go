package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/pkg/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newShowCommand(), newInitCommand())
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := internal.LoadConfig()
			if err != nil {
				return err
			}
			out, err := Render(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newInitCommand() *cobra.Command {
	var (
		global bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml for the project (or globally)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := config.HomeDir()
			if !global {
				project, err := internal.ResolveProject()
				if err != nil {
					return err
				}
				dir = config.ProjectDir(project)
			}
			path, err := WriteDefault(dir, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", internal.Logo, path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&global, "global", "g", false, "Write to the global LIDCO directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// WriteDefault writes the default config into dir and returns its path.
func WriteDefault(dir string, force bool) (string, error) {
	path := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Render returns cfg as YAML with API keys masked.
func Render(cfg *config.Config) (string, error) {
	cfg.RLock()
	data, err := yaml.Marshal(cfg)
	cfg.RUnlock()
	if err != nil {
		return "", err
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return "", err
	}
	if lp, ok := tree["llm_providers"].(map[string]any); ok {
		if provs, ok := lp["providers"].(map[string]any); ok {
			for _, p := range provs {
				if m, ok := p.(map[string]any); ok {
					mask(m, "api_key")
				}
			}
		}
	}
	if rag, ok := tree["rag"].(map[string]any); ok {
		mask(rag, "embedding_key")
	}

	out, err := yaml.Marshal(tree)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(m map[string]any, key string) {
	if s, ok := m[key].(string); ok && s != "" {
		m[key] = "********"
	}
}
