package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName    = "config.yaml"
	ProvidersFileName = "llm_providers.yaml"
	dirName           = ".lidco"
)

// HomeDir returns the global LIDCO directory. LIDCO_HOME overrides ~/.lidco.
func HomeDir() string {
	if h := os.Getenv("LIDCO_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// ProjectDir returns the project-level .lidco directory under root.
func ProjectDir(root string) string {
	return filepath.Join(root, dirName)
}

// LoadConfig builds the effective configuration for a project. Layers, later
// wins:
//
//	defaults
//	~/.lidco/config.yaml
//	<project>/.lidco/config.yaml
//	environment (LIDCO_*, with <project>/.env loaded first)
//
// llm_providers.yaml is layered separately from ~/.lidco, <project>/.lidco
// and <project> itself, and ${VAR} references in it are expanded.
func LoadConfig(projectRoot string) (*Config, error) {
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		projectRoot = wd
	}

	// A missing .env is the common case.
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))

	cfg := DefaultConfig()

	merged, err := mergeLayers(
		filepath.Join(HomeDir(), ConfigFileName),
		filepath.Join(ProjectDir(projectRoot), ConfigFileName),
	)
	if err != nil {
		return nil, err
	}
	if err := decodeInto(merged, cfg); err != nil {
		return nil, err
	}

	providers, err := mergeLayers(
		filepath.Join(HomeDir(), ProvidersFileName),
		filepath.Join(ProjectDir(projectRoot), ProvidersFileName),
		filepath.Join(projectRoot, ProvidersFileName),
	)
	if err != nil {
		return nil, err
	}
	if len(providers) > 0 {
		var lp LLMProvidersConfig
		if err := decodeInto(expandEnv(providers).(map[string]any), &lp); err != nil {
			return nil, err
		}
		if lp.Providers != nil {
			cfg.LLMProviders.Providers = lp.Providers
		}
		if lp.RoleModels != nil {
			cfg.LLMProviders.RoleModels = lp.RoleModels
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	return cfg, nil
}

func mergeLayers(paths ...string) (map[string]any, error) {
	merged := map[string]any{}
	for _, p := range paths {
		layer, err := readYAMLMap(p)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, layer)
	}
	return merged, nil
}

func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func decodeInto(m map[string]any, target any) error {
	if len(m) == 0 {
		return nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, target)
}

// deepMerge returns base overlaid with override; nested maps merge
// recursively, everything else is replaced.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		bm, bok := out[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			out[k] = deepMerge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}

var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} in every string value. Unset variables keep
// their placeholder.
func expandEnv(v any) any {
	switch val := v.(type) {
	case string:
		return envRef.ReplaceAllStringFunc(val, func(m string) string {
			name := envRef.FindStringSubmatch(m)[1]
			if s, ok := os.LookupEnv(name); ok {
				return s
			}
			return m
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnv(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnv(item)
		}
		return out
	default:
		return v
	}
}
