package project

import (
	"encoding/json"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"

	"github.com/lidco/lidco/pkg/logger"
)

// Dependencies maps package name to version constraint ("*" when none).
type Dependencies struct {
	Production  map[string]string
	Development map[string]string
}

func newDependencies() Dependencies {
	return Dependencies{Production: map[string]string{}, Development: map[string]string{}}
}

// Dependencies reads the first manifest found: package.json, pyproject.toml,
// requirements.txt, Cargo.toml, then go.mod.
func (c *Context) Dependencies() Dependencies {
	switch {
	case c.exists("package.json"):
		return c.nodeDependencies()
	case c.exists("pyproject.toml"):
		return c.pyprojectDependencies()
	case c.exists("requirements.txt"):
		return parseRequirements(c.read("requirements.txt"))
	case c.exists("Cargo.toml"):
		return c.cargoDependencies()
	case c.exists("go.mod"):
		return c.goDependencies()
	}
	return newDependencies()
}

func (c *Context) nodeDependencies() Dependencies {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	deps := newDependencies()
	if err := json.Unmarshal([]byte(c.read("package.json")), &pkg); err != nil {
		logger.DebugCF("project", "Unreadable package.json", map[string]any{"error": err.Error()})
		return deps
	}
	for k, v := range pkg.Dependencies {
		deps.Production[k] = v
	}
	for k, v := range pkg.DevDependencies {
		deps.Development[k] = v
	}
	return deps
}

type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (c *Context) pyprojectDependencies() Dependencies {
	deps := newDependencies()
	var py pyproject
	if _, err := toml.Decode(c.read("pyproject.toml"), &py); err != nil {
		logger.DebugCF("project", "Unreadable pyproject.toml", map[string]any{"error": err.Error()})
		return deps
	}
	for _, spec := range py.Project.Dependencies {
		name, version := splitRequirement(spec)
		deps.Production[name] = version
	}
	for _, group := range py.Project.OptionalDependencies {
		for _, spec := range group {
			name, version := splitRequirement(spec)
			deps.Development[name] = version
		}
	}

	poetry := py.Tool.Poetry
	for name, v := range poetry.Dependencies {
		if name != "python" {
			deps.Production[name] = tableVersion(v)
		}
	}
	for name, v := range poetry.DevDependencies {
		deps.Development[name] = tableVersion(v)
	}
	for _, g := range poetry.Group {
		for name, v := range g.Dependencies {
			deps.Development[name] = tableVersion(v)
		}
	}
	return deps
}

func (c *Context) cargoDependencies() Dependencies {
	deps := newDependencies()
	var cargo struct {
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if _, err := toml.Decode(c.read("Cargo.toml"), &cargo); err != nil {
		logger.DebugCF("project", "Unreadable Cargo.toml", map[string]any{"error": err.Error()})
		return deps
	}
	for name, v := range cargo.Dependencies {
		deps.Production[name] = tableVersion(v)
	}
	for name, v := range cargo.DevDependencies {
		deps.Development[name] = tableVersion(v)
	}
	return deps
}

// goDependencies lists direct requirements only; indirect ones say little
// about the project.
func (c *Context) goDependencies() Dependencies {
	deps := newDependencies()
	data := c.read("go.mod")
	if data == "" {
		return deps
	}
	f, err := modfile.ParseLax("go.mod", []byte(data), nil)
	if err != nil {
		logger.DebugCF("project", "Unreadable go.mod", map[string]any{"error": err.Error()})
		return deps
	}
	for _, r := range f.Require {
		if !r.Indirect {
			deps.Production[r.Mod.Path] = r.Mod.Version
		}
	}
	return deps
}

func parseRequirements(text string) Dependencies {
	deps := newDependencies()
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := splitRequirement(line)
		deps.Production[name] = version
	}
	return deps
}

// splitRequirement separates "requests[socks]>=2.0; python_version>'3'"
// into "requests" and ">=2.0".
func splitRequirement(spec string) (string, string) {
	spec, _, _ = strings.Cut(spec, ";")
	spec = strings.TrimSpace(spec)
	i := strings.IndexAny(spec, "<>=!~ [(")
	if i < 0 {
		return spec, "*"
	}
	name := spec[:i]
	rest := spec[i:]
	if strings.HasPrefix(rest, "[") {
		if end := strings.Index(rest, "]"); end >= 0 {
			rest = rest[end+1:]
		}
	}
	rest = strings.Trim(strings.TrimSpace(rest), "()")
	if rest == "" {
		rest = "*"
	}
	return name, rest
}

// tableVersion handles both `dep = "1.0"` and `dep = { version = "1.0" }`.
func tableVersion(v any) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]any:
		if s, ok := t["version"].(string); ok && s != "" {
			return s
		}
	}
	return "*"
}
