package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadTool_NumbersLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\nfour\n"), 0o644))

	tool := NewFileReadTool(dir, true)
	res := tool.Execute(context.Background(), map[string]any{"path": "a.txt", "offset": float64(2), "limit": float64(2)}).Result
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "     2\ttwo\n     3\tthree", res.Output)
	assert.Equal(t, 4, res.Metadata["total_lines"])
	assert.Equal(t, 2, res.Metadata["shown"])
}

func TestFileReadTool_Errors(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileReadTool(dir, true)

	res := tool.Execute(context.Background(), map[string]any{"path": "missing.txt"}).Result
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "File not found")

	res = tool.Execute(context.Background(), map[string]any{"path": "."}).Result
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Not a file")

	res = tool.Execute(context.Background(), map[string]any{"path": "../outside.txt"}).Result
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "outside the workspace")
}

func TestFileWriteTool_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	tool := NewFileWriteTool(dir, true)

	res := tool.Execute(context.Background(), map[string]any{"path": "sub/dir/f.go", "content": "package f\n"}).Result
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Output, "Successfully wrote 10 bytes")

	data, err := os.ReadFile(filepath.Join(dir, "sub", "dir", "f.go"))
	require.NoError(t, err)
	assert.Equal(t, "package f\n", string(data))
}

func TestFileEditTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	tool := NewFileEditTool(dir, false)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte("foo bar foo"), 0o644))

	res := tool.Execute(ctx, map[string]any{"path": path, "old_string": "baz", "new_string": "x"}).Result
	assert.False(t, res.Success)
	assert.Equal(t, "old_string not found in file.", res.Error)

	res = tool.Execute(ctx, map[string]any{"path": path, "old_string": "foo", "new_string": "x"}).Result
	assert.False(t, res.Success)
	assert.Equal(t, "old_string found 2 times. Use replace_all=true or provide more context.", res.Error)

	res = tool.Execute(ctx, map[string]any{"path": path, "old_string": "bar", "new_string": "qux"}).Result
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Metadata["replacements"])

	res = tool.Execute(ctx, map[string]any{"path": path, "old_string": "foo", "new_string": "x", "replace_all": true}).Result
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Metadata["replacements"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x qux x", string(data))
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()

	p, err := ValidatePath("a/b.txt", dir, true)
	require.NoError(t, err)
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, filepath.Join(abs, "a", "b.txt"), p)

	_, err = ValidatePath("../x", dir, true)
	assert.Error(t, err)

	p, err = ValidatePath("../x", dir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(abs), "x"), p)
}

func TestValidatePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, err := ValidatePath("link/secret.txt", dir, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlink")
}
