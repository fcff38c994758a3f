package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lidco/lidco/pkg/config"
)

// ValidatePath resolves path against workspace. With restrict set, paths
// and symlink targets outside the workspace are rejected.
func ValidatePath(path, workspace string, restrict bool) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Join(absWorkspace, path)
	}

	if !restrict {
		return absPath, nil
	}
	if !isWithinWorkspace(absPath, absWorkspace) {
		return "", fmt.Errorf("access denied: path is outside the workspace")
	}

	workspaceReal := absWorkspace
	if resolved, err := filepath.EvalSymlinks(absWorkspace); err == nil {
		workspaceReal = resolved
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	switch {
	case err == nil:
		if !isWithinWorkspace(resolved, workspaceReal) {
			return "", fmt.Errorf("access denied: symlink resolves outside workspace")
		}
	case os.IsNotExist(err):
		parent, perr := resolveExistingAncestor(filepath.Dir(absPath))
		if perr == nil && !isWithinWorkspace(parent, workspaceReal) {
			return "", fmt.Errorf("access denied: symlink resolves outside workspace")
		}
		if perr != nil && !os.IsNotExist(perr) {
			return "", fmt.Errorf("failed to resolve path: %w", perr)
		}
	default:
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return absPath, nil
}

func resolveExistingAncestor(path string) (string, error) {
	for current := filepath.Clean(path); ; current = filepath.Dir(current) {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			return resolved, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
		if filepath.Dir(current) == current {
			return "", os.ErrNotExist
		}
	}
}

func isWithinWorkspace(candidate, workspace string) bool {
	rel, err := filepath.Rel(filepath.Clean(workspace), filepath.Clean(candidate))
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

type FileReadTool struct {
	workspace string
	restrict  bool
}

func NewFileReadTool(workspace string, restrict bool) *FileReadTool {
	return &FileReadTool{workspace: workspace, restrict: restrict}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read file with line numbers." }

func (t *FileReadTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to read.", Required: true},
		{Name: "offset", Type: "integer", Description: "Line number to start reading from (1-based).", Default: 1},
		{Name: "limit", Type: "integer", Description: "Maximum number of lines to read.", Default: 2000},
	}
}

func (t *FileReadTool) Permission() config.PermissionLevel { return config.PermissionAuto }

func (t *FileReadTool) Execute(ctx context.Context, args map[string]any) Outcome {
	raw, ok := stringArg(args, "path")
	if !ok || raw == "" {
		return Done(Fail("path is required"))
	}
	path, err := ValidatePath(raw, t.workspace, t.restrict)
	if err != nil {
		return Done(Fail("%v", err))
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Done(Fail("File not found: %s", path))
	}
	if err != nil {
		return Done(Fail("%v", err))
	}
	if !info.Mode().IsRegular() {
		return Done(Fail("Not a file: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Done(Fail("failed to read file: %v", err))
	}

	lines := splitLines(strings.ToValidUTF8(string(data), "�"))
	start := intArg(args, "offset", 1) - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := start + intArg(args, "limit", 2000)
	if end > len(lines) || end < start {
		end = len(lines)
	}

	var sb strings.Builder
	for i, line := range lines[start:end] {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%6d\t%s", start+i+1, line)
	}
	return Done(OK(sb.String()).
		WithMeta("path", path).
		WithMeta("total_lines", len(lines)).
		WithMeta("shown", end-start))
}

type FileWriteTool struct {
	workspace string
	restrict  bool
}

func NewFileWriteTool(workspace string, restrict bool) *FileWriteTool {
	return &FileWriteTool{workspace: workspace, restrict: restrict}
}

func (t *FileWriteTool) Name() string        { return "file_write" }
func (t *FileWriteTool) Description() string { return "Write/create file (overwrites existing)." }

func (t *FileWriteTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to write.", Required: true},
		{Name: "content", Type: "string", Description: "Full file content.", Required: true},
	}
}

func (t *FileWriteTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *FileWriteTool) Execute(ctx context.Context, args map[string]any) Outcome {
	raw, ok := stringArg(args, "path")
	if !ok || raw == "" {
		return Done(Fail("path is required"))
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return Done(Fail("content is required"))
	}
	path, err := ValidatePath(raw, t.workspace, t.restrict)
	if err != nil {
		return Done(Fail("%v", err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Done(Fail("failed to create directory: %v", err))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Done(Fail("failed to write file: %v", err))
	}
	return Done(OK(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path)).
		WithMeta("path", path).
		WithMeta("bytes", len(content)))
}

type FileEditTool struct {
	workspace string
	restrict  bool
}

func NewFileEditTool(workspace string, restrict bool) *FileEditTool {
	return &FileEditTool{workspace: workspace, restrict: restrict}
}

func (t *FileEditTool) Name() string { return "file_edit" }
func (t *FileEditTool) Description() string {
	return "Replace exact string in file. old_string must be unique or use replace_all."
}

func (t *FileEditTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "path", Type: "string", Description: "Path to the file to edit.", Required: true},
		{Name: "old_string", Type: "string", Description: "Exact text to replace.", Required: true},
		{Name: "new_string", Type: "string", Description: "Replacement text.", Required: true},
		{Name: "replace_all", Type: "boolean", Description: "Replace every occurrence.", Default: false},
	}
}

func (t *FileEditTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *FileEditTool) Execute(ctx context.Context, args map[string]any) Outcome {
	raw, ok := stringArg(args, "path")
	if !ok || raw == "" {
		return Done(Fail("path is required"))
	}
	oldText, ok := stringArg(args, "old_string")
	if !ok || oldText == "" {
		return Done(Fail("old_string is required"))
	}
	newText, ok := stringArg(args, "new_string")
	if !ok {
		return Done(Fail("new_string is required"))
	}
	path, err := ValidatePath(raw, t.workspace, t.restrict)
	if err != nil {
		return Done(Fail("%v", err))
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Done(Fail("File not found: %s", path))
	}
	if err != nil {
		return Done(Fail("failed to read file: %v", err))
	}

	updated, n, err := replaceEditContent(string(data), oldText, newText, boolArg(args, "replace_all"))
	if err != nil {
		return Done(Fail("%v", err))
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return Done(Fail("failed to write file: %v", err))
	}
	return Done(OK(fmt.Sprintf("Replaced %d occurrence(s) in %s", n, path)).
		WithMeta("path", path).
		WithMeta("replacements", n))
}

func replaceEditContent(content, oldText, newText string, all bool) (string, int, error) {
	count := strings.Count(content, oldText)
	if count == 0 {
		return "", 0, fmt.Errorf("old_string not found in file.")
	}
	if count > 1 && !all {
		return "", 0, fmt.Errorf("old_string found %d times. Use replace_all=true or provide more context.", count)
	}
	if all {
		return strings.ReplaceAll(content, oldText, newText), count, nil
	}
	return strings.Replace(content, oldText, newText, 1), 1, nil
}
