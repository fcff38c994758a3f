// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

// Package project describes the working directory to the agents: language
// and tooling, git state, a shallow file tree, manifest dependencies and the
// project's own rules (LIDCO.md and .lidco/rules/*.md).
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lidco/lidco/pkg/logger"
)

const (
	RulesFile = "LIDCO.md"
	unknown   = "unknown"
)

// RulesDir is relative to the project root.
var RulesDir = filepath.Join(".lidco", "rules")

// markers are checked in order; the first present file decides the language.
var markers = []struct {
	file string
	lang string
}{
	{"package.json", "node"},
	{"pyproject.toml", "python"},
	{"setup.py", "python"},
	{"setup.cfg", "python"},
	{"requirements.txt", "python"},
	{"Pipfile", "python"},
	{"Cargo.toml", "rust"},
	{"go.mod", "go"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"build.gradle.kts", "java"},
	{"Gemfile", "ruby"},
	{"composer.json", "php"},
	{"mix.exs", "elixir"},
	{"pubspec.yaml", "dart"},
}

type Type struct {
	Language       string
	Framework      string
	PackageManager string
	BuildTool      string
}

// Context reads project facts from Dir. Every method is best effort: a
// missing or unreadable file yields zero values, never an error.
type Context struct {
	Dir string
}

func New(dir string) *Context {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Context{Dir: dir}
}

func (c *Context) path(name string) string { return filepath.Join(c.Dir, name) }

func (c *Context) exists(name string) bool {
	_, err := os.Stat(c.path(name))
	return err == nil
}

func (c *Context) read(name string) string {
	data, err := os.ReadFile(c.path(name))
	if err != nil {
		return ""
	}
	return string(data)
}

// DetectType identifies the language from marker files, then the framework,
// package manager and build tool for the ecosystems it knows.
func (c *Context) DetectType() Type {
	t := Type{Language: unknown, Framework: unknown, PackageManager: unknown, BuildTool: unknown}
	for _, m := range markers {
		if c.exists(m.file) {
			t.Language = m.lang
			break
		}
	}

	switch t.Language {
	case "node":
		c.nodeDetails(&t)
	case "python":
		c.pythonDetails(&t)
	case "rust":
		t.PackageManager, t.BuildTool = "cargo", "cargo"
	case "go":
		t.PackageManager, t.BuildTool = "go modules", "go"
		t.Framework = firstMatch(goFrameworks, keys(c.goDependencies().Production))
	case "java":
		switch {
		case c.exists("pom.xml"):
			t.PackageManager, t.BuildTool = "maven", "maven"
		case c.exists("build.gradle.kts"), c.exists("build.gradle"):
			t.PackageManager, t.BuildTool = "gradle", "gradle"
		}
	}
	return t
}

type marker struct{ key, name string }

var (
	nodeFrameworks = []marker{
		{"next", "next.js"}, {"nuxt", "nuxt"}, {"react", "react"}, {"vue", "vue"},
		{"svelte", "svelte"}, {"@angular/core", "angular"}, {"express", "express"},
		{"fastify", "fastify"}, {"hono", "hono"}, {"astro", "astro"},
		{"remix", "remix"}, {"gatsby", "gatsby"},
	}
	nodeBuildTools = []marker{
		{"vite", "vite"}, {"webpack", "webpack"}, {"esbuild", "esbuild"},
		{"rollup", "rollup"}, {"turbo", "turbo"}, {"tsup", "tsup"},
	}
	pythonFrameworks = []marker{
		{"django", "django"}, {"fastapi", "fastapi"}, {"flask", "flask"},
		{"starlette", "starlette"}, {"litestar", "litestar"}, {"sanic", "sanic"},
		{"tornado", "tornado"}, {"aiohttp", "aiohttp"}, {"streamlit", "streamlit"},
		{"gradio", "gradio"},
	}
	pythonBuildTools = []marker{
		{"hatchling", "hatch"}, {"poetry", "poetry"}, {"setuptools", "setuptools"},
		{"flit", "flit"}, {"maturin", "maturin"}, {"pdm", "pdm"},
	}
	goFrameworks = []marker{
		{"github.com/gin-gonic/gin", "gin"}, {"github.com/labstack/echo/v4", "echo"},
		{"github.com/gofiber/fiber/v2", "fiber"}, {"github.com/go-chi/chi/v5", "chi"},
		{"github.com/gorilla/mux", "gorilla"}, {"google.golang.org/grpc", "grpc"},
		{"github.com/spf13/cobra", "cobra"},
	}
)

// firstMatch returns the name of the first marker whose key is in names.
func firstMatch(ms []marker, names []string) string {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, m := range ms {
		if set[m.key] {
			return m.name
		}
	}
	return unknown
}

// firstSubstring is the loose variant for raw manifest text.
func firstSubstring(ms []marker, text string) string {
	text = strings.ToLower(text)
	for _, m := range ms {
		if strings.Contains(text, m.key) {
			return m.name
		}
	}
	return unknown
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (c *Context) nodeDetails(t *Type) {
	t.Language = "javascript"
	if c.exists("tsconfig.json") {
		t.Language = "typescript"
	}
	t.PackageManager = "npm"
	switch {
	case c.exists("pnpm-lock.yaml"):
		t.PackageManager = "pnpm"
	case c.exists("yarn.lock"):
		t.PackageManager = "yarn"
	case c.exists("bun.lockb"):
		t.PackageManager = "bun"
	}

	deps := c.nodeDependencies()
	all := append(keys(deps.Production), keys(deps.Development)...)
	t.Framework = firstMatch(nodeFrameworks, all)
	t.BuildTool = firstMatch(nodeBuildTools, all)
}

func (c *Context) pythonDetails(t *Type) {
	t.PackageManager = "pip"
	switch {
	case c.exists("Pipfile"):
		t.PackageManager = "pipenv"
	case c.exists("poetry.lock"):
		t.PackageManager = "poetry"
	case c.exists("uv.lock"):
		t.PackageManager = "uv"
	case c.exists("pdm.lock"):
		t.PackageManager = "pdm"
	}

	if py := c.read("pyproject.toml"); py != "" {
		t.BuildTool = firstSubstring(pythonBuildTools, py)
		t.Framework = firstSubstring(pythonFrameworks, py)
	}
	if t.Framework == unknown {
		if req := c.read("requirements.txt"); req != "" {
			t.Framework = firstSubstring(pythonFrameworks, req)
		}
	}
}

// Rules concatenates LIDCO.md and every .lidco/rules/*.md file, sorted by
// name, separated by horizontal rules.
func (c *Context) Rules() string {
	var parts []string
	if data, err := os.ReadFile(c.path(RulesFile)); err == nil {
		parts = append(parts, fmt.Sprintf("# Project Instructions (%s)\n\n%s", RulesFile, data))
	} else if !os.IsNotExist(err) {
		logger.WarnCF("project", "Cannot read project rules", map[string]any{"path": c.path(RulesFile), "error": err.Error()})
	}

	files, _ := filepath.Glob(filepath.Join(c.Dir, RulesDir, "*.md"))
	sort.Strings(files)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		parts = append(parts, fmt.Sprintf("# Rule: %s\n\n%s", stem, data))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Build renders every section as markdown for the agents' context. Git and
// dependency sections are omitted when there is nothing to say.
func (c *Context) Build(ctx context.Context) string {
	sections := []string{formatType(c.DetectType())}

	if gi := c.Git(ctx); gi.Branch != "" {
		sections = append(sections, formatGit(gi))
	}

	sections = append(sections, "## Project Structure\n\n```\n"+c.Structure(defaultTreeDepth, defaultTreeEntries)+"\n```")

	if deps := c.Dependencies(); len(deps.Production) > 0 || len(deps.Development) > 0 {
		sections = append(sections, formatDependencies(deps))
	}
	if rules := c.Rules(); rules != "" {
		sections = append(sections, "## Project Rules\n\n"+rules)
	}

	logger.DebugCF("project", "Project context built", map[string]any{
		"dir":      c.Dir,
		"sections": len(sections),
	})
	return strings.Join(sections, "\n\n")
}

func formatType(t Type) string {
	return fmt.Sprintf("## Project Type\n\n- **Language:** %s\n- **Framework:** %s\n- **Package Manager:** %s\n- **Build Tool:** %s",
		t.Language, t.Framework, t.PackageManager, t.BuildTool)
}

func formatDependencies(d Dependencies) string {
	lines := []string{"## Dependencies\n"}
	if n := len(d.Production); n > 0 {
		lines = append(lines, fmt.Sprintf("**Production:** %d packages", n))
	}
	if n := len(d.Development); n > 0 {
		lines = append(lines, fmt.Sprintf("**Development:** %d packages", n))
	}
	return strings.Join(lines, "\n")
}
