package project

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

const goMod = `module example.com/svc

go 1.22

require (
	github.com/spf13/cobra v1.8.0
	go.uber.org/zap v1.27.0
	golang.org/x/sys v0.20.0 // indirect
)
`

func goFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":                  goMod,
		"main.go":                 "package main\n",
		"cmd/svc/main.go":         "package main\n",
		"node_modules/left-pad/x": "",
		".secret/key":             "",
		"LIDCO.md":                "Always run tests.",
		".lidco/rules/style.md":   "Use tabs.",
		".lidco/rules/api.md":     "Version every endpoint.",
		".lidco/rules/notes.txt":  "ignored",
	})
	return dir
}

func TestDetectType_Go(t *testing.T) {
	got := New(goFixture(t)).DetectType()
	assert.Equal(t, Type{Language: "go", Framework: "cobra", PackageManager: "go modules", BuildTool: "go"}, got)
}

func TestDetectType_Node(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json":   `{"dependencies":{"react":"^18.0.0"},"devDependencies":{"vite":"^5.0.0"}}`,
		"tsconfig.json":  "{}",
		"pnpm-lock.yaml": "",
	})
	got := New(dir).DetectType()
	assert.Equal(t, Type{Language: "typescript", Framework: "react", PackageManager: "pnpm", BuildTool: "vite"}, got)
}

func TestDetectType_Python(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"pyproject.toml": `
[build-system]
requires = ["hatchling"]

[project]
name = "api"
dependencies = ["fastapi>=0.110", "uvicorn[standard] (>=0.29)"]

[project.optional-dependencies]
test = ["pytest>=8; python_version >= '3.10'"]
`,
		"uv.lock": "",
	})
	c := New(dir)
	assert.Equal(t, Type{Language: "python", Framework: "fastapi", PackageManager: "uv", BuildTool: "hatch"}, c.DetectType())

	deps := c.Dependencies()
	assert.Equal(t, map[string]string{"fastapi": ">=0.110", "uvicorn": ">=0.29"}, deps.Production)
	assert.Equal(t, map[string]string{"pytest": ">=8"}, deps.Development)
}

func TestDetectType_Unknown(t *testing.T) {
	got := New(t.TempDir()).DetectType()
	assert.Equal(t, Type{Language: unknown, Framework: unknown, PackageManager: unknown, BuildTool: unknown}, got)
}

func TestDependencies_GoSkipsIndirect(t *testing.T) {
	deps := New(goFixture(t)).Dependencies()
	assert.Equal(t, map[string]string{
		"github.com/spf13/cobra": "v1.8.0",
		"go.uber.org/zap":        "v1.27.0",
	}, deps.Production)
	assert.Empty(t, deps.Development)
}

func TestDependencies_Cargo(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Cargo.toml": `
[package]
name = "tool"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
anyhow = "1"
local = { path = "../local" }

[dev-dependencies]
insta = "1.34"
`})
	deps := New(dir).Dependencies()
	assert.Equal(t, map[string]string{"serde": "1.0", "anyhow": "1", "local": "*"}, deps.Production)
	assert.Equal(t, map[string]string{"insta": "1.34"}, deps.Development)
}

func TestDependencies_Requirements(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"requirements.txt": "# pinned\nflask==3.0.0\n-r dev.txt\nrequests>=2\nrich\n"})
	deps := New(dir).Dependencies()
	assert.Equal(t, map[string]string{"flask": "==3.0.0", "requests": ">=2", "rich": "*"}, deps.Production)
}

func TestDependencies_BrokenManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"package.json": "{not json"})
	deps := New(dir).Dependencies()
	assert.Empty(t, deps.Production)
	assert.Empty(t, deps.Development)
}

func TestRules(t *testing.T) {
	rules := New(goFixture(t)).Rules()

	assert.Equal(t, "# Project Instructions (LIDCO.md)\n\nAlways run tests."+
		"\n\n---\n\n# Rule: api\n\nVersion every endpoint."+
		"\n\n---\n\n# Rule: style\n\nUse tabs.", rules)
	assert.NotContains(t, rules, "ignored")
	assert.Empty(t, New(t.TempDir()).Rules())
}

func TestStructure(t *testing.T) {
	dir := goFixture(t)
	tree := New(dir).Structure(defaultTreeDepth, defaultTreeEntries)

	assert.Equal(t, strings.Join([]string{
		filepath.Base(dir) + "/",
		"├── cmd/",
		"│   └── svc/",
		"├── go.mod",
		"├── LIDCO.md",
		"└── main.go",
	}, "\n"), tree)
}

func TestStructure_Truncated(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files[n+".txt"] = ""
	}
	writeFiles(t, dir, files)

	tree := New(dir).Structure(1, 3)
	lines := strings.Split(tree, "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "├── b.txt", lines[2])
	assert.Equal(t, "... (more entries omitted)", lines[3])
}

func TestFormatGit(t *testing.T) {
	out := formatGit(GitInfo{
		Branch:     "main",
		Remote:     "git@example.com:acme/svc.git",
		DirtyFiles: []string{"M a", "M b", "M c", "M d", "M e", "?? f", "?? g"},
	})
	assert.Contains(t, out, "- **Branch:** main")
	assert.Contains(t, out, "- **Remote:** git@example.com:acme/svc.git")
	assert.Contains(t, out, "- **Dirty Files:** 7")
	assert.Contains(t, out, "  - `M e`")
	assert.NotContains(t, out, "`?? f`")
	assert.Contains(t, out, "  - ... and 2 more")
}

func TestGit_OutsideRepository(t *testing.T) {
	assert.Equal(t, GitInfo{}, New(t.TempDir()).Git(context.Background()))
}

func TestGit_Repository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-c", "user.name=t", "-c", "user.email=t@example.com"}, args...)...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("checkout", "-q", "-b", "feature")
	run("commit", "-q", "--allow-empty", "-m", "first")
	writeFiles(t, dir, map[string]string{"new.txt": "x"})

	gi := New(dir).Git(context.Background())
	assert.Equal(t, "feature", gi.Branch)
	assert.Empty(t, gi.Remote)
	require.Len(t, gi.RecentCommits, 1)
	assert.Contains(t, gi.RecentCommits[0], "first")
	assert.Equal(t, []string{"?? new.txt"}, gi.DirtyFiles)
}

func TestBuild(t *testing.T) {
	out := New(goFixture(t)).Build(context.Background())

	assert.True(t, strings.HasPrefix(out, "## Project Type\n\n- **Language:** go"))
	assert.Contains(t, out, "## Project Structure\n\n```\n")
	assert.Contains(t, out, "## Dependencies\n\n**Production:** 2 packages")
	assert.Contains(t, out, "## Project Rules\n\n# Project Instructions (LIDCO.md)")
	assert.NotContains(t, out, "node_modules")
	assert.NotContains(t, out, ".secret")

	bare := New(t.TempDir()).Build(context.Background())
	assert.NotContains(t, bare, "## Dependencies")
	assert.NotContains(t, bare, "## Project Rules")
}
