package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/tools"
)

const defaultCustomPrompt = "You are a helpful assistant."

// agentFile is the on-disk shape of a custom agent definition.
type agentFile struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	SystemPrompt  string         `yaml:"system_prompt"`
	Tools         []string       `yaml:"tools"`
	MaxIterations int            `yaml:"max_iterations"`
	Model         agentModelFile `yaml:"model"`
}

type agentModelFile struct {
	Preferred     string   `yaml:"preferred"`
	Fallback      string   `yaml:"fallback"`
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	ContextWindow int      `yaml:"context_window"`
}

// LoadAgentConfig reads one custom agent YAML file.
func LoadAgentConfig(path string) (AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, err
	}
	var f agentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return AgentConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Name == "" {
		return AgentConfig{}, fmt.Errorf("%s: name is required", path)
	}

	cfg := AgentConfig{
		Name:          f.Name,
		Description:   f.Description,
		SystemPrompt:  f.SystemPrompt,
		Model:         f.Model.Preferred,
		FallbackModel: f.Model.Fallback,
		Temperature:   DefaultTemperature,
		MaxTokens:     f.Model.MaxTokens,
		Tools:         f.Tools,
		MaxIterations: f.MaxIterations,
		ContextWindow: f.Model.ContextWindow,
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultCustomPrompt
	}
	if f.Model.Temperature != nil {
		cfg.Temperature = *f.Model.Temperature
	}
	return cfg.withDefaults(), nil
}

// DefaultAgentDirs lists the directories searched for custom agents, lowest
// precedence first.
func DefaultAgentDirs(projectDir string) []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".lidco", "agents"))
	}
	if projectDir != "" {
		dirs = append(dirs, filepath.Join(projectDir, ".lidco", "agents"))
	}
	return dirs
}

// DiscoverAgentConfigs loads every *.yaml file in dirs, in directory order
// then file name order. Missing directories are skipped and broken files
// are logged and skipped.
func DiscoverAgentConfigs(dirs []string) []AgentConfig {
	var out []AgentConfig
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			cfg, err := LoadAgentConfig(path)
			if err != nil {
				logger.WarnCF("agent", "Failed to load custom agent", map[string]any{
					"path":  path,
					"error": err.Error(),
				})
				continue
			}
			out = append(out, cfg)
		}
	}
	return out
}

// RegisterCustom loads custom agents from dirs into reg. A custom agent
// replaces a built-in of the same name. It returns the number loaded.
func RegisterCustom(reg *Registry, dirs []string, llm LLM, toolRegistry *tools.ToolRegistry) int {
	cfgs := DiscoverAgentConfigs(dirs)
	for _, cfg := range cfgs {
		reg.Replace(New(cfg, llm, toolRegistry))
		logger.InfoCF("agent", "Custom agent loaded", map[string]any{"name": cfg.Name})
	}
	return len(cfgs)
}
