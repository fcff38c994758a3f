package internal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/tools"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		answer string
		want   tools.Decision
	}{
		{"y", tools.AllowOnce},
		{"YES", tools.AllowOnce},
		{" yes ", tools.AllowOnce},
		{"a", tools.AllowToolForSession},
		{"always", tools.AllowToolForSession},
		{"A", tools.AllowAllForSession},
		{"all", tools.AllowAllForSession},
		{"n", tools.Deny},
		{"", tools.Deny},
		{"maybe", tools.Deny},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDecision(tt.answer), "answer %q", tt.answer)
	}
}

func TestResolveOption(t *testing.T) {
	opts := []string{"PostgreSQL", "SQLite"}

	assert.Equal(t, "PostgreSQL", ResolveOption("1", opts))
	assert.Equal(t, "SQLite", ResolveOption(" 2 ", opts))
	assert.Equal(t, "3", ResolveOption("3", opts))
	assert.Equal(t, "0", ResolveOption("0", opts))
	assert.Equal(t, "MySQL", ResolveOption("MySQL", opts))
	assert.Equal(t, "1", ResolveOption("1", nil))
}

func TestTerminal_Clarify(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("2\n"), &out, &bytes.Buffer{})

	answer, err := term.Clarify(context.Background(), "Which database?", []string{"PostgreSQL", "SQLite"}, "Needed for the schema")
	require.NoError(t, err)
	assert.Equal(t, "SQLite", answer)

	printed := out.String()
	assert.Contains(t, printed, "Which database?")
	assert.Contains(t, printed, "Needed for the schema")
	assert.Contains(t, printed, "1) PostgreSQL")
	assert.Contains(t, printed, "2) SQLite")
}

func TestTerminal_ClarifyEOF(t *testing.T) {
	term := NewPlainTerminal(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})

	_, err := term.Clarify(context.Background(), "Which?", nil, "")
	assert.Error(t, err)
}

func TestTerminal_Permission(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("a\nn\n"), &out, &bytes.Buffer{})
	ctx := context.Background()

	assert.Equal(t, tools.AllowToolForSession, term.Permission(ctx, "bash", map[string]any{"command": "ls"}))
	assert.Equal(t, tools.Deny, term.Permission(ctx, "bash", map[string]any{"command": "rm -rf x"}))
	// Input exhausted.
	assert.Equal(t, tools.Deny, term.Permission(ctx, "bash", nil))

	assert.Contains(t, out.String(), "Allow ")
}

func TestTerminal_Continue(t *testing.T) {
	var out bytes.Buffer
	term := NewPlainTerminal(strings.NewReader("y\nno\n"), &out, &bytes.Buffer{})
	ctx := context.Background()

	assert.True(t, term.Continue(ctx, 200, 200))
	assert.False(t, term.Continue(ctx, 400, 200))
	assert.Contains(t, out.String(), "Agent reached 200 iterations")
}

func TestTerminal_StreamAndEnd(t *testing.T) {
	var out, errOut bytes.Buffer
	term := NewPlainTerminal(strings.NewReader(""), &out, &errOut)

	assert.False(t, term.EndStream())

	term.Stream("Hello")
	term.Stream(" world")
	// Status lines are suppressed while streaming.
	term.Status("Agent: coder")
	assert.True(t, term.EndStream())
	assert.False(t, term.EndStream())

	assert.Equal(t, "Hello world\n", out.String())
	assert.NotContains(t, errOut.String(), "Agent: coder")
}

func TestTerminal_StatusClearedByOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	term := NewPlainTerminal(strings.NewReader(""), &out, &errOut)

	term.Status("Routing")
	assert.Contains(t, errOut.String(), "Routing")

	term.Println("done")
	assert.Equal(t, "done\n", out.String())
	assert.True(t, strings.HasSuffix(errOut.String(), "\r\033[K"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one …", firstLine("one\ntwo", 50))
	assert.Equal(t, "abc…", firstLine("abcdef", 3))
	assert.Equal(t, "trim", firstLine("  trim  ", 10))
}
