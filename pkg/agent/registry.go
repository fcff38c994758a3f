package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lidco/lidco/pkg/logger"
)

// Registry holds the agents available to a session. Version changes on
// every registration so callers can invalidate derived caches.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*Agent
	version uint64
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds an agent. A second agent with the same name is an error.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("agent name is empty")
	}
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.agents[name] = a
	r.version++

	logger.DebugCF("agent", "Agent registered", map[string]any{
		"name":  name,
		"tools": len(a.cfg.Tools),
	})
	return nil
}

// Replace registers a, overwriting any agent with the same name. Custom
// agents use it to shadow built-ins.
func (r *Registry) Replace(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
	r.version++
}

// Get returns the named agent or nil.
func (r *Registry) Get(name string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[name]
}

// List returns every agent sorted by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.Name()
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
