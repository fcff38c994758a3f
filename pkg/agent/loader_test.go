package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgentConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sec.yaml", `
name: security
description: Security audits.
system_prompt: You audit code.
tools: [file_read, grep]
max_iterations: 20
model:
  preferred: anthropic/claude-sonnet
  fallback: openai/gpt-4o-mini
  temperature: 0
  max_tokens: 2048
`)
	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)

	assert.Equal(t, AgentConfig{
		Name:          "security",
		Description:   "Security audits.",
		SystemPrompt:  "You audit code.",
		Model:         "anthropic/claude-sonnet",
		FallbackModel: "openai/gpt-4o-mini",
		Temperature:   0,
		MaxTokens:     2048,
		Tools:         []string{"file_read", "grep"},
		MaxIterations: 20,
		ContextWindow: DefaultContextWindow,
	}, cfg)
}

func TestLoadAgentConfig_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "min.yaml", "name: minimal\n")
	cfg, err := LoadAgentConfig(path)
	require.NoError(t, err)

	assert.Equal(t, defaultCustomPrompt, cfg.SystemPrompt)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 1e-9)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Empty(t, cfg.Model)
}

func TestLoadAgentConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAgentConfig(writeFile(t, dir, "noname.yaml", "description: nameless\n"))
	assert.ErrorContains(t, err, "name is required")

	_, err = LoadAgentConfig(writeFile(t, dir, "bad.yaml", "name: [unclosed\n"))
	assert.ErrorContains(t, err, "parse")

	_, err = LoadAgentConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDiscoverAgentConfigs_SkipsBrokenFiles(t *testing.T) {
	global := t.TempDir()
	project := t.TempDir()
	writeFile(t, global, "b.yaml", "name: bravo\n")
	writeFile(t, global, "a.yaml", "name: alpha\n")
	writeFile(t, global, "notes.txt", "name: ignored\n")
	writeFile(t, project, "broken.yaml", "description: no name\n")
	writeFile(t, project, "c.yaml", "name: charlie\n")

	cfgs := DiscoverAgentConfigs([]string{global, filepath.Join(global, "absent"), project})

	var names []string
	for _, c := range cfgs {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)
}

func TestRegisterCustom_ShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coder.yaml", "name: coder\ndescription: House style coder.\n")
	writeFile(t, dir, "security.yaml", "name: security\n")

	reg := NewRegistry()
	RegisterBuiltins(reg, &mockLLM{}, nil)
	n := RegisterCustom(reg, []string{dir}, &mockLLM{}, nil)

	assert.Equal(t, 2, n)
	assert.Equal(t, 10, reg.Len())
	assert.Equal(t, "House style coder.", reg.Get("coder").Description())
}

func TestDefaultAgentDirs(t *testing.T) {
	dirs := DefaultAgentDirs("/work/proj")
	require.NotEmpty(t, dirs)
	assert.Equal(t, filepath.Join("/work/proj", ".lidco", "agents"), dirs[len(dirs)-1])
}
