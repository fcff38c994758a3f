package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/lidco/lidco/pkg/config"
)

const (
	maxGlobResults = 500
	maxGrepResults = 200
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

var binaryExt = map[string]bool{
	".pyc": true, ".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".zip": true,
	".gz": true, ".tar": true, ".pdf": true, ".wasm": true,
}

// globRegexp compiles a slash-separated glob into a regexp. "**" matches
// any number of path segments, "*" and "?" stay within one segment.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	pattern = filepath.ToSlash(pattern)
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				i++
				if i+1 < len(pattern) && pattern[i+1] == '/' {
					i++
					sb.WriteString("(?:.*/)?")
				} else {
					sb.WriteString(".*")
				}
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			sb.WriteString("[" + class + "]")
			i += end
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// matchGlob matches rel against pattern. Patterns without a slash match the
// base name, so "*.go" finds Go files at any depth.
func matchGlob(re *regexp.Regexp, pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	if !strings.Contains(filepath.ToSlash(pattern), "/") {
		return re.MatchString(pathBase(rel))
	}
	return re.MatchString(rel)
}

func pathBase(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

type GlobTool struct {
	workspace string
	restrict  bool
}

func NewGlobTool(workspace string, restrict bool) *GlobTool {
	return &GlobTool{workspace: workspace, restrict: restrict}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files by glob pattern." }

func (t *GlobTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "pattern", Type: "string", Description: "Glob pattern to match files (e.g. '**/*.go').", Required: true},
		{Name: "path", Type: "string", Description: "Directory to search in. Defaults to the workspace."},
	}
}

func (t *GlobTool) Permission() config.PermissionLevel { return config.PermissionAuto }

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) Outcome {
	pattern, ok := stringArg(args, "pattern")
	if !ok || pattern == "" {
		return Done(Fail("pattern is required"))
	}
	dir, _ := stringArg(args, "path")
	if dir == "" {
		dir = "."
	}
	root, err := ValidatePath(dir, t.workspace, t.restrict)
	if err != nil {
		return Done(Fail("%v", err))
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return Done(Fail("Directory not found: %s", root))
	}
	re, err := globRegexp(pattern)
	if err != nil {
		return Done(Fail("Invalid pattern: %v", err))
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchGlob(re, pattern, rel) {
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if walkErr != nil {
		return Done(Fail("%v", walkErr))
	}

	if len(matches) == 0 {
		return Done(OK("No files matched the pattern.").WithMeta("count", 0))
	}
	sort.Strings(matches)
	shown := matches
	if len(shown) > maxGlobResults {
		shown = shown[:maxGlobResults]
	}
	out := strings.Join(shown, "\n")
	if len(matches) > maxGlobResults {
		out += fmt.Sprintf("\n\n... and %d more files", len(matches)-maxGlobResults)
	}
	return Done(OK(out).WithMeta("count", len(matches)))
}

type GrepTool struct {
	workspace string
	restrict  bool
}

func NewGrepTool(workspace string, restrict bool) *GrepTool {
	return &GrepTool{workspace: workspace, restrict: restrict}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents with a regex." }

func (t *GrepTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "pattern", Type: "string", Description: "Regex pattern to search for.", Required: true},
		{Name: "path", Type: "string", Description: "File or directory to search in."},
		{Name: "include", Type: "string", Description: "Glob pattern to filter files (e.g. '*.go')."},
		{Name: "case_insensitive", Type: "boolean", Description: "Case-insensitive search.", Default: false},
	}
}

func (t *GrepTool) Permission() config.PermissionLevel { return config.PermissionAuto }

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) Outcome {
	expr, ok := stringArg(args, "pattern")
	if !ok || expr == "" {
		return Done(Fail("pattern is required"))
	}
	if boolArg(args, "case_insensitive") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Done(Fail("Invalid regex: %v", err))
	}

	dir, _ := stringArg(args, "path")
	if dir == "" {
		dir = "."
	}
	root, err := ValidatePath(dir, t.workspace, t.restrict)
	if err != nil {
		return Done(Fail("%v", err))
	}
	info, err := os.Stat(root)
	if err != nil {
		return Done(Fail("Path not found: %s", root))
	}

	var include *regexp.Regexp
	includePattern, _ := stringArg(args, "include")
	if includePattern != "" {
		if include, err = globRegexp(includePattern); err != nil {
			return Done(Fail("Invalid include pattern: %v", err))
		}
	}

	var results []string
	if !info.IsDir() {
		results = grepFile(re, root, root, results)
	} else {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil || len(results) >= maxGrepResults {
				return filepath.SkipAll
			}
			if d.IsDir() {
				if path != root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if binaryExt[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			rel, _ := filepath.Rel(root, path)
			if include != nil && !matchGlob(include, includePattern, rel) {
				return nil
			}
			results = grepFile(re, path, filepath.ToSlash(rel), results)
			return nil
		})
	}

	if len(results) == 0 {
		return Done(OK("No matches found.").WithMeta("count", 0))
	}
	out := strings.Join(results, "\n")
	if len(results) >= maxGrepResults {
		out += fmt.Sprintf("\n\n(showing first %d results)", maxGrepResults)
	}
	return Done(OK(out).WithMeta("count", len(results)))
}

func grepFile(re *regexp.Regexp, path, display string, results []string) []string {
	f, err := os.Open(path)
	if err != nil {
		return results
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			results = append(results, fmt.Sprintf("%s:%d: %s", display, lineNo, strings.TrimRight(line, " \t\r")))
			if len(results) >= maxGrepResults {
				break
			}
		}
	}
	return results
}
