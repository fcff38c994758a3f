// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/tracing"
)

// PermissionFunc reports whether a call may run. It may block on the user.
type PermissionFunc func(ctx context.Context, tool string, args map[string]any) bool

// ClarifyFunc asks the user a question and returns the answer.
type ClarifyFunc func(ctx context.Context, question string, options []string, detail string) (string, error)

// Hooks are the user-facing callbacks consulted during one dispatch. A nil
// Permission allows every call.
type Hooks struct {
	Permission PermissionFunc
	Clarify    ClarifyFunc
}

// Dispatcher resolves a tool by name, checks permission, executes it and
// resolves clarification requests into plain results.
type Dispatcher struct {
	registry *ToolRegistry
}

func NewDispatcher(registry *ToolRegistry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Registry() *ToolRegistry { return d.registry }

// Dispatch never returns nil and never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, hooks Hooks) *ToolResult {
	tool, ok := d.registry.Get(name)
	if !ok {
		logger.ErrorCF("tool", "Tool not found", map[string]any{"tool": name})
		return Fail("Unknown tool: %s", name)
	}

	if hooks.Permission != nil && !hooks.Permission(ctx, name, args) {
		return Fail("Operation denied by user")
	}

	ctx, span := tracing.Start(ctx, "tools", "tool."+name)
	logger.InfoCF("tool", "Tool execution started", map[string]any{"tool": name, "args": args})

	start := time.Now()
	outcome := execute(ctx, tool, args)
	result := d.resolve(ctx, outcome, hooks)
	duration := time.Since(start)

	if result.Success {
		logger.InfoCF("tool", "Tool execution completed", map[string]any{
			"tool":          name,
			"duration_ms":   duration.Milliseconds(),
			"result_length": len(result.Output),
		})
		tracing.End(span, nil)
	} else {
		logger.WarnCF("tool", "Tool execution failed", map[string]any{
			"tool":        name,
			"duration_ms": duration.Milliseconds(),
			"error":       result.Error,
		})
		tracing.End(span, fmt.Errorf("%s", result.Error))
	}
	return result
}

func execute(ctx context.Context, tool Tool, args map[string]any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("tool", "Tool panicked", map[string]any{
				"tool":  tool.Name(),
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			out = Done(Fail("%v", r))
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

func (d *Dispatcher) resolve(ctx context.Context, outcome Outcome, hooks Hooks) *ToolResult {
	if outcome.Clarification == nil {
		if outcome.Result == nil {
			return OK("")
		}
		return outcome.Result
	}

	req := outcome.Clarification
	if hooks.Clarify == nil {
		return Fail("No clarification handler available to ask the user.")
	}
	answer, err := hooks.Clarify(ctx, req.Question, req.Options, req.Context)
	if err != nil {
		return Fail("Clarification handler failed: %v", err)
	}
	return OK("User answered: "+answer).WithMeta("clarification_answer", answer)
}
