package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndList(t *testing.T) {
	reg := NewRegistry()
	llm := &mockLLM{}
	require.NoError(t, reg.Register(New(AgentConfig{Name: "zeta"}, llm, nil)))
	require.NoError(t, reg.Register(New(AgentConfig{Name: "alpha"}, llm, nil)))

	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, uint64(2), reg.Version())
	assert.Equal(t, "alpha", reg.Get("alpha").Name())
	assert.Nil(t, reg.Get("missing"))
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry()
	llm := &mockLLM{}
	require.NoError(t, reg.Register(New(AgentConfig{Name: "coder"}, llm, nil)))

	err := reg.Register(New(AgentConfig{Name: "coder"}, llm, nil))
	assert.EqualError(t, err, `agent "coder" already registered`)
	assert.Error(t, reg.Register(New(AgentConfig{}, llm, nil)))
	assert.Equal(t, uint64(1), reg.Version())
}

func TestRegistry_ReplaceBumpsVersion(t *testing.T) {
	reg := NewRegistry()
	llm := &mockLLM{}
	require.NoError(t, reg.Register(New(AgentConfig{Name: "coder", Description: "old"}, llm, nil)))
	reg.Replace(New(AgentConfig{Name: "coder", Description: "new"}, llm, nil))

	assert.Equal(t, "new", reg.Get("coder").Description())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, uint64(2), reg.Version())
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry()
	custom := New(AgentConfig{Name: "coder", Description: "custom coder"}, &mockLLM{}, nil)
	require.NoError(t, reg.Register(custom))

	RegisterBuiltins(reg, &mockLLM{}, nil)

	assert.Equal(t, []string{
		"architect", "coder", "debugger", "docs", "planner",
		"refactor", "researcher", "reviewer", "tester",
	}, reg.Names())
	assert.Same(t, custom, reg.Get("coder"), "existing agents are kept")

	reviewer := reg.Get("reviewer").Config()
	assert.Equal(t, []string{"file_read", "glob", "grep"}, reviewer.Tools)
	assert.False(t, reviewer.HasTool("file_write"))
	assert.Equal(t, DefaultMaxIterations, reviewer.MaxIterations)

	coder := BuiltinConfigs()[0]
	assert.Equal(t, "coder", coder.Name)
	assert.True(t, coder.HasTool("anything"))
}

func TestBuiltinConfigs_ToolListsAreIndependent(t *testing.T) {
	cfgs := BuiltinConfigs()
	byName := map[string]AgentConfig{}
	for _, c := range cfgs {
		byName[c.Name] = c
	}
	assert.Equal(t, []string{"file_read", "glob", "grep", "ask_user"}, byName["planner"].Tools)
	assert.Equal(t, []string{"file_read", "glob", "grep", "file_write", "file_edit", "bash"}, byName["tester"].Tools)
	assert.InDelta(t, 0.3, byName["docs"].Temperature, 1e-9)
}
