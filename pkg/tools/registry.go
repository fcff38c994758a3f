package tools

import (
	"sort"
	"strings"
	"sync"

	"github.com/lidco/lidco/pkg/providers"
)

type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	defs    map[string][]providers.ToolDefinition
	version uint64
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
		defs:  make(map[string][]providers.ToolDefinition),
	}
}

// Register adds or replaces a tool and drops every cached definition list.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.defs = make(map[string][]providers.ToolDefinition)
	r.version++
}

func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	r.defs = make(map[string][]providers.ToolDefinition)
	r.version++
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Version changes whenever the tool set changes.
func (r *ToolRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// sortedToolNames returns tool names in sorted order. Stable ordering keeps
// the tool list identical across calls so provider prefix caches stay warm.
func (r *ToolRegistry) sortedToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedToolNames()
}

func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.sortedToolNames()
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the schema list for the allowed tool names, in the
// order given, skipping unknown names. An empty allow list means every
// registered tool in sorted order. Results are cached per allow list until
// the next Register.
func (r *ToolRegistry) Definitions(allowed []string) []providers.ToolDefinition {
	key := strings.Join(allowed, "\x00")

	r.mu.RLock()
	if defs, ok := r.defs[key]; ok {
		r.mu.RUnlock()
		return defs
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if defs, ok := r.defs[key]; ok {
		return defs
	}

	names := allowed
	if len(names) == 0 {
		names = r.sortedToolNames()
	}
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			defs = append(defs, Definition(t))
		}
	}
	r.defs[key] = defs
	return defs
}

// Summaries returns "name: description" lines for prompts and the CLI.
func (r *ToolRegistry) Summaries() []string {
	tools := r.List()
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, "- `"+t.Name()+"` - "+t.Description())
	}
	return out
}
