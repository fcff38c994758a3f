package configcmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/config"
)

func TestNewConfigCommand(t *testing.T) {
	cmd := NewConfigCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "config", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["init"])

	initCmd, _, err := cmd.Find([]string{"init"})
	require.NoError(t, err)
	assert.NotNil(t, initCmd.Flags().Lookup("global"))
	assert.NotNil(t, initCmd.Flags().Lookup("force"))
}

func TestWriteDefault(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".lidco")

	path, err := WriteDefault(dir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.ConfigFileName), path)

	loaded, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().LLM.DefaultModel, loaded.LLM.DefaultModel)

	_, err = WriteDefault(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, os.WriteFile(path, []byte("llm: {}\n"), 0o600))
	_, err = WriteDefault(dir, true)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_model")
}

func TestRender_MasksSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMProviders.Providers = map[string]config.ProviderConfig{
		"openai": {APIType: "openai", APIKey: "sk-secret-123"},
		"local":  {APIType: "openai", APIBase: "http://localhost:11434/v1"},
	}
	cfg.RAG.EmbeddingKey = "emb-secret"

	out, err := Render(cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret-123")
	assert.NotContains(t, out, "emb-secret")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "http://localhost:11434/v1")
}
