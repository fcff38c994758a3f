package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func isolatedHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LIDCO_HOME", home)
	return home
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, 3, cfg.LLM.Retry.MaxRetries)
	assert.Equal(t, 1.0, cfg.LLM.Retry.BaseDelay)
	assert.Equal(t, 60.0, cfg.LLM.Retry.MaxDelay)
	assert.True(t, cfg.LLM.Retry.Jitter)
	assert.Equal(t, "coder", cfg.Agents.Default)
	assert.Equal(t, 2, cfg.Agents.MaxReviewIterations)
	assert.Equal(t, 500, cfg.Memory.MaxEntries)
}

func TestLoadConfig_LayeredPrecedence(t *testing.T) {
	home := isolatedHome(t)
	project := t.TempDir()

	writeFile(t, filepath.Join(home, "config.yaml"), `
llm:
  default_model: global-model
  temperature: 0.5
agents:
  auto_review: false
`)
	writeFile(t, filepath.Join(project, ".lidco", "config.yaml"), `
llm:
  default_model: project-model
  cooldown_seconds: 30
`)

	cfg, err := LoadConfig(project)
	require.NoError(t, err)

	assert.Equal(t, "project-model", cfg.LLM.DefaultModel)
	assert.Equal(t, 0.5, cfg.LLM.Temperature, "global value survives a partial project override")
	assert.False(t, cfg.Agents.AutoReview)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens, "untouched defaults remain")
	assert.Equal(t, 30.0, cfg.LLM.CooldownSeconds)
}

func TestLoadConfig_ProvidersFileWithEnvExpansion(t *testing.T) {
	isolatedHome(t)
	project := t.TempDir()
	t.Setenv("TEST_LIDCO_KEY", "secret-value")

	writeFile(t, filepath.Join(project, "llm_providers.yaml"), `
providers:
  local:
    api_base: http://localhost:11434/v1
    api_key: ${TEST_LIDCO_KEY}
    api_type: openai
  other:
    api_key: ${TEST_LIDCO_UNSET_VAR}
role_models:
  default:
    model: local/llama3
    fallback: gpt-4o-mini
  coder:
    model: local/qwen-coder
    temperature: 0.2
`)

	cfg, err := LoadConfig(project)
	require.NoError(t, err)

	assert.Equal(t, "secret-value", cfg.LLMProviders.Providers["local"].APIKey)
	assert.Equal(t, "${TEST_LIDCO_UNSET_VAR}", cfg.LLMProviders.Providers["other"].APIKey)

	coder := cfg.LLMProviders.ResolveModel("coder")
	assert.Equal(t, "local/qwen-coder", coder.Model)
	require.NotNil(t, coder.Temperature)
	assert.Equal(t, 0.2, *coder.Temperature)

	assert.Equal(t, "gpt-4o-mini", cfg.LLMProviders.ResolveFallback("coder"), "inherits default fallback")
	assert.Equal(t, "local/llama3", cfg.LLMProviders.ResolveModelName("unknown"))
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	isolatedHome(t)
	project := t.TempDir()
	t.Setenv("LIDCO_DEFAULT_MODEL", "env-model")
	t.Setenv("LIDCO_FALLBACK_MODELS", "a,b")
	t.Setenv("LIDCO_COOLDOWN_SECONDS", "2.5")

	cfg, err := LoadConfig(project)
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.LLM.DefaultModel)
	assert.Equal(t, []string{"a", "b"}, cfg.LLM.FallbackModels)
	assert.Equal(t, 2.5, cfg.LLM.CooldownSeconds)
}

func TestPermissionsLevel(t *testing.T) {
	p := PermissionsConfig{
		AutoAllow: []string{"file_read", "bash"},
		Deny:      []string{"bash"},
	}

	assert.Equal(t, PermissionAuto, p.Level("file_read"))
	assert.Equal(t, PermissionDeny, p.Level("bash"), "deny wins")
	assert.Equal(t, PermissionAsk, p.Level("file_write"))
	assert.True(t, p.Listed("bash"))
	assert.False(t, p.Listed("git"))
}

func TestResolveModel_NoRoles(t *testing.T) {
	var c LLMProvidersConfig
	assert.Equal(t, "gpt-4o-mini", c.ResolveModelName("coder"))
	assert.Equal(t, "", c.ResolveFallback("coder"))
}

func TestDeepMerge(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 1}
	over := map[string]any{"a": map[string]any{"y": 3}, "c": 4}

	got := deepMerge(base, over)

	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1, "y": 3}, "b": 1, "c": 4}, got)
	assert.Equal(t, 2, base["a"].(map[string]any)["y"], "base not mutated")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.LLM.DefaultModel = "saved-model"

	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.LLM.DefaultModel)
}
