package tools

import (
	"context"
	"sync"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
)

// Decision is the user's answer to a permission prompt.
type Decision int

const (
	Deny Decision = iota
	AllowOnce
	AllowToolForSession
	AllowAllForSession
)

// PromptFunc asks the user whether a call may run. Implementations block
// until the user answers.
type PromptFunc func(ctx context.Context, tool string, args map[string]any) Decision

// PermissionGate decides whether a tool call may execute. Levels listed in
// config win over the tool's own level. Session approvals remember
// "allow this tool" and "allow everything" answers.
type PermissionGate struct {
	cfg      config.PermissionsConfig
	registry *ToolRegistry
	prompt   PromptFunc

	mu       sync.Mutex
	allowed  map[string]bool
	allowAll bool
}

func NewPermissionGate(cfg config.PermissionsConfig, registry *ToolRegistry, prompt PromptFunc) *PermissionGate {
	return &PermissionGate{
		cfg:      cfg,
		registry: registry,
		prompt:   prompt,
		allowed:  make(map[string]bool),
	}
}

// Level resolves the effective permission level for a tool.
func (g *PermissionGate) Level(name string) config.PermissionLevel {
	if g.cfg.Listed(name) {
		return g.cfg.Level(name)
	}
	if g.registry != nil {
		if t, ok := g.registry.Get(name); ok && t.Permission() != "" {
			return t.Permission()
		}
	}
	return config.PermissionAsk
}

// Check has the signature of the permission hook and can be installed
// directly on an execution context.
func (g *PermissionGate) Check(ctx context.Context, name string, args map[string]any) bool {
	switch g.Level(name) {
	case config.PermissionDeny:
		logger.WarnCF("permissions", "Tool denied by configuration", map[string]any{"tool": name})
		return false
	case config.PermissionAuto:
		return true
	}

	g.mu.Lock()
	if g.allowAll || g.allowed[name] {
		g.mu.Unlock()
		return true
	}
	g.mu.Unlock()

	if g.prompt == nil {
		return true
	}

	decision := g.prompt(ctx, name, args)
	switch decision {
	case AllowAllForSession:
		g.AllowAll()
	case AllowToolForSession:
		g.AutoAllow(name)
	case Deny:
		logger.InfoCF("permissions", "Tool call denied by user", map[string]any{"tool": name})
		return false
	}
	return true
}

func (g *PermissionGate) AutoAllow(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed[name] = true
}

func (g *PermissionGate) AllowAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowAll = true
}

// Reset forgets session approvals.
func (g *PermissionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed = make(map[string]bool)
	g.allowAll = false
}
