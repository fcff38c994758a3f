// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/providers"
)

// Tool is a capability the model can invoke. Execute never panics on bad
// input; failures are reported through the returned Outcome.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Permission() config.PermissionLevel
	Execute(ctx context.Context, args map[string]any) Outcome
}

type ToolParameter struct {
	Name        string
	Type        string // string, integer, boolean, array, object
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// ToolResult is what the model observes after a call.
type ToolResult struct {
	Output   string
	Success  bool
	Error    string
	Metadata map[string]any
}

func OK(output string) *ToolResult {
	return &ToolResult{Output: output, Success: true}
}

func Fail(format string, args ...any) *ToolResult {
	return &ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// WithMeta sets a metadata key and returns the result for chaining.
func (r *ToolResult) WithMeta(key string, value any) *ToolResult {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// Content is the text placed in the tool message of the conversation.
func (r *ToolResult) Content() string {
	if r.Success {
		return r.Output
	}
	return "Error: " + r.Error
}

// ClarificationRequest is returned by a tool that needs an answer from the
// user before it can produce a result.
type ClarificationRequest struct {
	Question string
	Options  []string
	Context  string
}

// Outcome is exactly one of a finished result or a clarification request.
type Outcome struct {
	Result        *ToolResult
	Clarification *ClarificationRequest
}

func Done(r *ToolResult) Outcome { return Outcome{Result: r} }

func NeedsClarification(req ClarificationRequest) Outcome {
	return Outcome{Clarification: &req}
}

var readOnlyTools = map[string]bool{
	"file_read": true,
	"glob":      true,
	"grep":      true,
}

// IsReadOnly reports whether calls to the named tool can run concurrently
// with each other.
func IsReadOnly(name string) bool {
	return readOnlyTools[name]
}

// SchemaProvider is implemented by tools whose parameter schema comes from
// elsewhere, such as a remote MCP server.
type SchemaProvider interface {
	InputSchema() map[string]any
}

// Schema renders the JSON-schema parameter object for a tool.
func Schema(t Tool) map[string]any {
	if sp, ok := t.(SchemaProvider); ok {
		if s := sp.InputSchema(); s != nil {
			return s
		}
	}
	properties := make(map[string]any)
	required := []string{}
	for _, p := range t.Parameters() {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func Definition(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  Schema(t),
		},
	}
}

// Argument accessors. Models send numbers as JSON floats and occasionally
// quote booleans and integers, so both forms are accepted.

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprint(s), true
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}
