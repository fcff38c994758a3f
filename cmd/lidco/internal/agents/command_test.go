package agents

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/agent"
)

func TestNewAgentsCommand(t *testing.T) {
	cmd := NewAgentsCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "agents", cmd.Use)
	assert.False(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("verbose"))
}

func TestMerge(t *testing.T) {
	builtins := []agent.AgentConfig{
		{Name: "reviewer", Description: "Reviews code"},
		{Name: "coder", Description: "Writes code"},
	}
	custom := []agent.AgentConfig{
		{Name: "coder", Description: "Team coder", Model: "gpt-4o"},
		{Name: "docs", Description: "Writes docs"},
	}

	rows := Merge(builtins, custom)
	require.Len(t, rows, 3)

	assert.Equal(t, "coder", rows[0].Config.Name)
	assert.Equal(t, "override", rows[0].Source)
	assert.Equal(t, "Team coder", rows[0].Config.Description)

	assert.Equal(t, "docs", rows[1].Config.Name)
	assert.Equal(t, "custom", rows[1].Source)

	assert.Equal(t, "reviewer", rows[2].Config.Name)
	assert.Equal(t, "builtin", rows[2].Source)
}

func TestMerge_BuiltinsOnly(t *testing.T) {
	rows := Merge(agent.BuiltinConfigs(), nil)

	require.Len(t, rows, len(agent.BuiltinConfigs()))
	for i, r := range rows {
		assert.Equal(t, "builtin", r.Source)
		if i > 0 {
			assert.Less(t, rows[i-1].Config.Name, r.Config.Name)
		}
	}
}

func TestPrint(t *testing.T) {
	rows := []Row{
		{Config: agent.AgentConfig{Name: "coder", Description: "Writes code"}, Source: "builtin"},
		{Config: agent.AgentConfig{Name: "docs", Description: "Docs", Model: "gpt-4o", Tools: []string{"file_read", "grep"}}, Source: "custom"},
	}

	var short bytes.Buffer
	Print(&short, rows, false)
	assert.Contains(t, short.String(), "coder")
	assert.Contains(t, short.String(), "Writes code")
	assert.NotContains(t, short.String(), "model:")

	var long bytes.Buffer
	Print(&long, rows, true)
	assert.Contains(t, long.String(), "model: (role coder)  tools: all")
	assert.Contains(t, long.String(), "model: gpt-4o  tools: file_read, grep")
}
