package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultTreeDepth   = 2
	defaultTreeEntries = 30
)

var skipDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "venv": true, "env": true,
	"dist": true, "build": true, "target": true, "coverage": true,
	"htmlcov": true, "vendor": true,
}

// Structure draws the tree below Dir up to maxDepth levels, skipping hidden
// entries and dependency or build output directories. At most maxEntries
// lines are drawn.
func (c *Context) Structure(maxDepth, maxEntries int) string {
	lines := []string{filepath.Base(c.Dir) + "/"}
	truncated := walkTree(c.Dir, "", maxDepth, &lines, maxEntries)
	if truncated {
		lines = append(lines, "... (more entries omitted)")
	}
	return strings.Join(lines, "\n")
}

// walkTree reports whether it stopped at maxEntries.
func walkTree(dir, prefix string, depth int, lines *[]string, maxEntries int) bool {
	if depth <= 0 {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	visible := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || (e.IsDir() && skipDirs[e.Name()]) {
			continue
		}
		visible = append(visible, e)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].IsDir() != visible[j].IsDir() {
			return visible[i].IsDir()
		}
		return strings.ToLower(visible[i].Name()) < strings.ToLower(visible[j].Name())
	})

	for i, e := range visible {
		if len(*lines) >= maxEntries {
			return true
		}
		connector, extension := "├── ", "│   "
		if i == len(visible)-1 {
			connector, extension = "└── ", "    "
		}
		if !e.IsDir() {
			*lines = append(*lines, prefix+connector+e.Name())
			continue
		}
		*lines = append(*lines, prefix+connector+e.Name()+"/")
		if walkTree(filepath.Join(dir, e.Name()), prefix+extension, depth-1, lines, maxEntries) {
			return true
		}
	}
	return false
}
