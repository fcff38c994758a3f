package main

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLidcoCommand(t *testing.T) {
	cmd := NewLidcoCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "lidco", cmd.Use)
	assert.True(t, cmd.SilenceUsage)

	for _, name := range []string{"project", "debug", "log-json"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "run", "config", "memory", "index", "agents"} {
		assert.True(t, slices.Contains(names, want), "missing subcommand %s", want)
	}
}
