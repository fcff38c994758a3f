package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestGlobRegexp(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.go", "main.go", true},
		{"**/*.go", "pkg/a/b.go", true},
		{"pkg/*.go", "pkg/a.go", true},
		{"pkg/*.go", "pkg/sub/a.go", false},
		{"pkg/**", "pkg/sub/a.go", true},
		{"file?.txt", "file1.txt", true},
		{"[ab].md", "c.md", false},
	}
	for _, tc := range cases {
		re, err := globRegexp(tc.pattern)
		require.NoError(t, err)
		assert.Equal(t, tc.want, re.MatchString(tc.path), "%s vs %s", tc.pattern, tc.path)
	}
}

func TestGlobTool(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.go":             "package main",
		"pkg/a/a.go":          "package a",
		"pkg/a/a_test.go":     "package a",
		"README.md":           "# readme",
		".hidden/x.go":        "package x",
		"node_modules/m/i.go": "package m",
	})
	tool := NewGlobTool(dir, true)

	res := tool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"}).Result
	require.True(t, res.Success)
	assert.Equal(t, "main.go\npkg/a/a.go\npkg/a/a_test.go", res.Output)
	assert.Equal(t, 3, res.Metadata["count"])

	res = tool.Execute(context.Background(), map[string]any{"pattern": "*.rs"}).Result
	require.True(t, res.Success)
	assert.Equal(t, "No files matched the pattern.", res.Output)

	res = tool.Execute(context.Background(), map[string]any{"pattern": "*", "path": "nope"}).Result
	assert.False(t, res.Success)
}

func TestGrepTool(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.go":        "package a\n// TODO: fix\nfunc A() {}\n",
		"b.md":        "todo list\n",
		".git/config": "TODO hidden",
		"sub/c.go":    "// todo lower\n",
	})
	tool := NewGrepTool(dir, true)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{"pattern": "TODO"}).Result
	require.True(t, res.Success)
	assert.Equal(t, "a.go:2: // TODO: fix", res.Output)

	res = tool.Execute(ctx, map[string]any{"pattern": "todo", "case_insensitive": true, "include": "*.go"}).Result
	require.True(t, res.Success)
	assert.Equal(t, "a.go:2: // TODO: fix\nsub/c.go:1: // todo lower", res.Output)

	res = tool.Execute(ctx, map[string]any{"pattern": "nothing-here"}).Result
	assert.Equal(t, "No matches found.", res.Output)

	res = tool.Execute(ctx, map[string]any{"pattern": "("}).Result
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid regex")

	res = tool.Execute(ctx, map[string]any{"pattern": "func", "path": "a.go"}).Result
	require.True(t, res.Success)
	assert.Contains(t, res.Output, ":3: func A() {}")
}
