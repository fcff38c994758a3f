package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type PermissionLevel string

const (
	PermissionAuto PermissionLevel = "auto"
	PermissionAsk  PermissionLevel = "ask"
	PermissionDeny PermissionLevel = "deny"
)

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	LLMProviders LLMProvidersConfig `yaml:"llm_providers"`
	Permissions  PermissionsConfig  `yaml:"permissions"`
	Agents       AgentsConfig       `yaml:"agents"`
	Memory       MemoryConfig       `yaml:"memory"`
	RAG          RAGConfig          `yaml:"rag"`
	MCP          MCPConfig          `yaml:"mcp"`
	Log          LogConfig          `yaml:"log"`
	mu           sync.RWMutex
}

type RetryConfig struct {
	MaxRetries int     `yaml:"max_retries" env:"LIDCO_RETRY_MAX_RETRIES"`
	BaseDelay  float64 `yaml:"base_delay" env:"LIDCO_RETRY_BASE_DELAY"`
	MaxDelay   float64 `yaml:"max_delay" env:"LIDCO_RETRY_MAX_DELAY"`
	Jitter     bool    `yaml:"jitter" env:"LIDCO_RETRY_JITTER"`
}

type LLMConfig struct {
	DefaultModel      string      `yaml:"default_model" env:"LIDCO_DEFAULT_MODEL"`
	Temperature       float64     `yaml:"temperature" env:"LIDCO_TEMPERATURE"`
	MaxTokens         int         `yaml:"max_tokens" env:"LIDCO_MAX_TOKENS"`
	Streaming         bool        `yaml:"streaming" env:"LIDCO_STREAMING"`
	FallbackModels    []string    `yaml:"fallback_models" env:"LIDCO_FALLBACK_MODELS" envSeparator:","`
	SessionTokenLimit int         `yaml:"session_token_limit" env:"LIDCO_SESSION_TOKEN_LIMIT"`
	RequestsPerMinute int         `yaml:"requests_per_minute" env:"LIDCO_REQUESTS_PER_MINUTE"` // 0 = unlimited
	CooldownSeconds   float64     `yaml:"cooldown_seconds" env:"LIDCO_COOLDOWN_SECONDS"`       // 0 = no cooldown
	Retry             RetryConfig `yaml:"retry"`
}

// ProviderConfig is a single LLM endpoint.
type ProviderConfig struct {
	APIBase      string   `yaml:"api_base"`
	APIKey       string   `yaml:"api_key"`
	APIType      string   `yaml:"api_type"` // openai | anthropic
	APIVersion   string   `yaml:"api_version"`
	Models       []string `yaml:"models"`
	DefaultModel string   `yaml:"default_model"`
}

// RoleModelConfig assigns a model to a role or agent name.
type RoleModelConfig struct {
	Model       string   `yaml:"model"`
	Fallback    string   `yaml:"fallback"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
}

type LLMProvidersConfig struct {
	Providers  map[string]ProviderConfig  `yaml:"providers"`
	RoleModels map[string]RoleModelConfig `yaml:"role_models"`
}

// ResolveModel returns the model config for role, falling back to the
// "default" role and finally to a built-in model.
func (c LLMProvidersConfig) ResolveModel(role string) RoleModelConfig {
	if rm, ok := c.RoleModels[role]; ok {
		return rm
	}
	if rm, ok := c.RoleModels["default"]; ok {
		return rm
	}
	return RoleModelConfig{Model: "gpt-4o-mini"}
}

func (c LLMProvidersConfig) ResolveModelName(role string) string {
	return c.ResolveModel(role).Model
}

// ResolveFallback returns the fallback model for role, inheriting the
// "default" role's fallback when the role has none.
func (c LLMProvidersConfig) ResolveFallback(role string) string {
	if rm := c.ResolveModel(role); rm.Fallback != "" {
		return rm.Fallback
	}
	if def, ok := c.RoleModels["default"]; ok {
		return def.Fallback
	}
	return ""
}

type PermissionsConfig struct {
	AutoAllow []string `yaml:"auto_allow"`
	Ask       []string `yaml:"ask"`
	Deny      []string `yaml:"deny"`
}

// Level returns the configured permission for a tool. Deny wins over auto;
// anything unlisted requires asking.
func (p PermissionsConfig) Level(tool string) PermissionLevel {
	if contains(p.Deny, tool) {
		return PermissionDeny
	}
	if contains(p.AutoAllow, tool) {
		return PermissionAuto
	}
	return PermissionAsk
}

// Listed reports whether the tool appears in any permission list.
func (p PermissionsConfig) Listed(tool string) bool {
	return contains(p.Deny, tool) || contains(p.AutoAllow, tool) || contains(p.Ask, tool)
}

type AgentsConfig struct {
	Default             string   `yaml:"default" env:"LIDCO_DEFAULT_AGENT"`
	AutoReview          bool     `yaml:"auto_review" env:"LIDCO_AUTO_REVIEW"`
	AutoPlan            bool     `yaml:"auto_plan" env:"LIDCO_AUTO_PLAN"`
	MaxReviewIterations int      `yaml:"max_review_iterations" env:"LIDCO_MAX_REVIEW_ITERATIONS"`
	MaxIterations       int      `yaml:"max_iterations" env:"LIDCO_MAX_ITERATIONS"`
	ContextWindow       int      `yaml:"context_window" env:"LIDCO_CONTEXT_WINDOW"`
	CallbackWorkers     int      `yaml:"callback_workers" env:"LIDCO_CALLBACK_WORKERS"`
	CustomDirs          []string `yaml:"custom_dirs"`
}

type MemoryConfig struct {
	Enabled    bool   `yaml:"enabled" env:"LIDCO_MEMORY_ENABLED"`
	AutoSave   bool   `yaml:"auto_save" env:"LIDCO_MEMORY_AUTO_SAVE"`
	MaxEntries int    `yaml:"max_entries" env:"LIDCO_MEMORY_MAX_ENTRIES"`
	Path       string `yaml:"path" env:"LIDCO_MEMORY_PATH"`
}

type RAGConfig struct {
	Enabled          bool   `yaml:"enabled" env:"LIDCO_RAG_ENABLED"`
	Backend          string `yaml:"backend" env:"LIDCO_RAG_BACKEND"` // local | qdrant
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	MaxResults       int    `yaml:"max_results"`
	StorePath        string `yaml:"store_path"`
	EmbeddingModel   string `yaml:"embedding_model" env:"LIDCO_RAG_EMBEDDING_MODEL"`
	EmbeddingBase    string `yaml:"embedding_base" env:"LIDCO_RAG_EMBEDDING_BASE"`
	EmbeddingKey     string `yaml:"embedding_key" env:"LIDCO_RAG_EMBEDDING_KEY"`
	QdrantHost       string `yaml:"qdrant_host" env:"LIDCO_QDRANT_HOST"`
	QdrantPort       int    `yaml:"qdrant_port" env:"LIDCO_QDRANT_PORT"`
	QdrantCollection string `yaml:"qdrant_collection"`
	Watch            bool   `yaml:"watch"`
}

type MCPServerConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Description string            `yaml:"description,omitempty"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LIDCO_LOG_LEVEL"`
	File  string `yaml:"file" env:"LIDCO_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultModel:   "gpt-4o-mini",
			Temperature:    0.1,
			MaxTokens:      4096,
			Streaming:      true,
			FallbackModels: []string{"gpt-4o-mini"},
			Retry: RetryConfig{
				MaxRetries: 3,
				BaseDelay:  1.0,
				MaxDelay:   60.0,
				Jitter:     true,
			},
		},
		LLMProviders: LLMProvidersConfig{
			Providers:  map[string]ProviderConfig{},
			RoleModels: map[string]RoleModelConfig{},
		},
		Permissions: PermissionsConfig{
			AutoAllow: []string{"file_read", "glob", "grep"},
			Ask:       []string{"file_write", "file_edit", "bash", "git"},
		},
		Agents: AgentsConfig{
			Default:             "coder",
			AutoReview:          true,
			AutoPlan:            true,
			MaxReviewIterations: 2,
			MaxIterations:       200,
			ContextWindow:       128000,
			CallbackWorkers:     4,
		},
		Memory: MemoryConfig{
			Enabled:    true,
			AutoSave:   true,
			MaxEntries: 500,
		},
		RAG: RAGConfig{
			Backend:          "local",
			ChunkSize:        1000,
			ChunkOverlap:     200,
			MaxResults:       5,
			EmbeddingModel:   "text-embedding-3-small",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "lidco",
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// LoadConfigFile reads a single YAML file over the defaults and applies
// environment overrides.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, env.Parse(cfg)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return saveConfigLocked(path, cfg)
}

func saveConfigLocked(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
