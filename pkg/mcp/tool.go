package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/tools"
)

// RemoteTool adapts one MCP server tool to tools.Tool. Remote tools always
// require permission.
type RemoteTool struct {
	manager *Manager
	server  string
	remote  *sdkmcp.Tool
	name    string
	schema  map[string]any
}

func NewRemoteTool(manager *Manager, server string, remote *sdkmcp.Tool) *RemoteTool {
	return &RemoteTool{
		manager: manager,
		server:  server,
		remote:  remote,
		name:    QualifiedToolName(server, remote.Name),
		schema:  normalizeSchema(remote.InputSchema),
	}
}

func (t *RemoteTool) Name() string { return t.name }

func (t *RemoteTool) Description() string {
	desc := t.remote.Description
	if desc == "" {
		desc = t.remote.Name
	}
	return fmt.Sprintf("[MCP %s] %s", t.server, desc)
}

func (t *RemoteTool) Parameters() []tools.ToolParameter { return nil }

func (t *RemoteTool) InputSchema() map[string]any { return t.schema }

func (t *RemoteTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) tools.Outcome {
	res, err := t.manager.CallTool(ctx, t.server, t.remote.Name, args)
	if err != nil {
		return tools.Done(tools.Fail("MCP tool %s failed: %v", t.remote.Name, err))
	}
	if res.IsError {
		return tools.Done(tools.Fail("%s", res.Content))
	}
	return tools.Done(tools.OK(res.Content).WithMeta("mcp_server", t.server))
}

// normalizeSchema converts whatever the SDK decoded into a plain object
// schema. Anything unusable becomes an empty object schema.
func normalizeSchema(raw any) map[string]any {
	var schema map[string]any
	switch v := raw.(type) {
	case map[string]any:
		schema = v
	case nil:
	default:
		data, err := json.Marshal(v)
		if err == nil {
			_ = json.Unmarshal(data, &schema)
		}
	}
	if schema == nil {
		schema = map[string]any{}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// Tools connects to every enabled server and wraps its tools. Servers that
// fail to connect are logged and skipped.
func (m *Manager) Tools(ctx context.Context) []tools.Tool {
	var out []tools.Tool
	for _, server := range m.ServerNames() {
		remote, err := m.ListTools(ctx, server)
		if err != nil {
			logger.WarnCF("mcp", "Skipping server", map[string]any{"server": server, "error": err.Error()})
			continue
		}
		for _, rt := range remote {
			out = append(out, NewRemoteTool(m, server, rt))
		}
	}
	return out
}

// RegisterTools adds every remote tool to the registry and returns how many
// were registered.
func (m *Manager) RegisterTools(ctx context.Context, registry *tools.ToolRegistry) int {
	remote := m.Tools(ctx)
	for _, t := range remote {
		registry.Register(t)
	}
	return len(remote)
}
