// Package mcp connects to Model Context Protocol servers and exposes their
// tools through the local tool registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
)

const (
	clientName    = "lidco"
	clientVersion = "1.0.0"
	crashWindow   = 60 * time.Second
	maxCrashes    = 3
)

// TransportFunc builds the transport for one configured server.
type TransportFunc func(name string, cfg config.MCPServerConfig) (sdkmcp.Transport, error)

type serverInstance struct {
	mu      sync.Mutex
	session *sdkmcp.ClientSession
	done    chan struct{}
	tools   []*sdkmcp.Tool
	crashes []time.Time
}

// ServerSummary is a lightweight view of a server for listing.
type ServerSummary struct {
	Name        string
	Description string
	Transport   string
	Status      string
}

// Manager owns one client session per enabled server. Sessions start lazily
// on first use and restart after a transport failure, up to three times a
// minute.
type Manager struct {
	mu        sync.RWMutex
	configs   map[string]config.MCPServerConfig
	servers   map[string]*serverInstance
	transport TransportFunc
}

type Option func(*Manager)

// WithTransport replaces the transport factory, mainly for tests.
func WithTransport(fn TransportFunc) Option {
	return func(m *Manager) { m.transport = fn }
}

func NewManager(configs map[string]config.MCPServerConfig, opts ...Option) *Manager {
	if configs == nil {
		configs = make(map[string]config.MCPServerConfig)
	}
	m := &Manager{
		configs:   configs,
		servers:   make(map[string]*serverInstance),
		transport: defaultTransport,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ServerNames returns the enabled servers, sorted.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, cfg := range m.configs {
		if cfg.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *Manager) ListServers() []ServerSummary {
	var out []ServerSummary
	for _, name := range m.ServerNames() {
		m.mu.RLock()
		cfg := m.configs[name]
		inst := m.servers[name]
		m.mu.RUnlock()

		status := "stopped"
		if inst != nil {
			inst.mu.Lock()
			if inst.session != nil {
				status = "running"
			}
			inst.mu.Unlock()
		}
		transport := "stdio"
		if cfg.URL != "" {
			transport = "http"
		}
		out = append(out, ServerSummary{Name: name, Description: cfg.Description, Transport: transport, Status: status})
	}
	return out
}

// ListTools returns a server's tool list, connecting if needed.
func (m *Manager) ListTools(ctx context.Context, server string) ([]*sdkmcp.Tool, error) {
	inst, err := m.ensureRunning(ctx, server)
	if err != nil {
		return nil, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if len(inst.tools) > 0 {
		return inst.tools, nil
	}
	if inst.session == nil {
		return nil, fmt.Errorf("MCP server %q is not connected", server)
	}
	result, err := inst.session.ListTools(ctx, nil)
	if err != nil {
		m.handleSessionError(server, inst, err)
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	inst.tools = result.Tools
	logger.InfoCF("mcp", "Server tools loaded", map[string]any{"server": server, "tools": len(result.Tools)})
	return result.Tools, nil
}

// CallResult is the text rendering of a remote tool call.
type CallResult struct {
	Content string
	IsError bool
}

func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (CallResult, error) {
	inst, err := m.ensureRunning(ctx, server)
	if err != nil {
		return CallResult{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.session == nil {
		return CallResult{}, fmt.Errorf("MCP server %q is not connected", server)
	}
	result, err := inst.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		m.handleSessionError(server, inst, err)
		return CallResult{}, fmt.Errorf("tools/call %s: %w", tool, err)
	}
	return CallResult{Content: extractText(result), IsError: result.IsError}, nil
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, inst := range m.servers {
		inst.mu.Lock()
		if inst.session != nil {
			logger.InfoCF("mcp", "Stopping server", map[string]any{"server": name})
			_ = inst.session.Close()
			inst.session = nil
		}
		inst.mu.Unlock()
	}
	m.servers = make(map[string]*serverInstance)
}

func (m *Manager) ensureRunning(ctx context.Context, server string) (*serverInstance, error) {
	m.mu.RLock()
	cfg, ok := m.configs[server]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown MCP server: %q", server)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("MCP server %q is disabled", server)
	}

	m.mu.Lock()
	inst, exists := m.servers[server]
	if !exists {
		inst = &serverInstance{}
		m.servers[server] = inst
	}
	m.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.session != nil {
		select {
		case <-inst.done:
			logger.WarnCF("mcp", "Server session closed, restarting", map[string]any{"server": server})
			inst.session = nil
			inst.tools = nil
		default:
			return inst, nil
		}
	}

	now := time.Now()
	recent := inst.crashes[:0]
	for _, t := range inst.crashes {
		if now.Sub(t) < crashWindow {
			recent = append(recent, t)
		}
	}
	inst.crashes = recent
	if len(recent) >= maxCrashes {
		return nil, fmt.Errorf("MCP server %q crashed too frequently (%d times in %v)", server, maxCrashes, crashWindow)
	}

	transport, err := m.transport(server, cfg)
	if err != nil {
		return nil, err
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		inst.crashes = append(inst.crashes, now)
		return nil, fmt.Errorf("connect MCP server %q: %w", server, err)
	}

	inst.session = session
	inst.tools = nil
	done := make(chan struct{})
	inst.done = done
	go func() {
		_ = session.Wait()
		close(done)
	}()

	logger.InfoCF("mcp", "Server connected", map[string]any{"server": server})
	return inst, nil
}

// handleSessionError drops the session on transport failures so the next
// call reconnects. Tool-level errors leave the session alone.
func (m *Manager) handleSessionError(server string, inst *serverInstance, err error) {
	msg := err.Error()
	transportErr := false
	for _, marker := range []string{"write", "read", "pipe", "process", "http", "connection", "EOF", "closed"} {
		if strings.Contains(msg, marker) {
			transportErr = true
			break
		}
	}
	if !transportErr {
		return
	}
	logger.WarnCF("mcp", "Server transport error, marking for restart", map[string]any{"server": server, "error": msg})
	if inst.session != nil {
		_ = inst.session.Close()
		inst.session = nil
	}
	inst.tools = nil
	inst.crashes = append(inst.crashes, time.Now())
}

func defaultTransport(name string, cfg config.MCPServerConfig) (sdkmcp.Transport, error) {
	if cfg.URL != "" {
		httpClient := &http.Client{}
		if len(cfg.Headers) > 0 {
			httpClient.Transport = &headerTransport{headers: cfg.Headers, base: http.DefaultTransport}
		}
		logger.InfoCF("mcp", "Connecting to HTTP server", map[string]any{"server": name, "url": cfg.URL})
		return &sdkmcp.StreamableClientTransport{
			Endpoint:             cfg.URL,
			HTTPClient:           httpClient,
			DisableStandaloneSSE: true,
		}, nil
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("MCP server %q has neither command nor url", name)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+os.ExpandEnv(v))
		}
		cmd.Env = env
	}
	logger.InfoCF("mcp", "Starting server", map[string]any{
		"server":  name,
		"command": cfg.Command + " " + strings.Join(cfg.Args, " "),
	})
	return &sdkmcp.CommandTransport{Command: cmd}, nil
}

// headerTransport injects configured headers such as Authorization into
// every request.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, os.ExpandEnv(v))
	}
	return t.base.RoundTrip(req)
}

func extractText(result *sdkmcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, c.Text)
		case *sdkmcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *sdkmcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *sdkmcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource_link: %s]", c.URI))
		case *sdkmcp.EmbeddedResource:
			if c.Resource != nil && c.Resource.Text != "" {
				parts = append(parts, c.Resource.Text)
			} else if c.Resource != nil {
				parts = append(parts, fmt.Sprintf("[embedded resource: %s]", c.Resource.URI))
			}
		}
	}
	if result.StructuredContent != nil {
		if data, err := json.MarshalIndent(result.StructuredContent, "", "  "); err == nil {
			parts = append(parts, string(data))
		}
	}
	if len(parts) == 0 {
		return "(no content)"
	}
	return strings.Join(parts, "\n")
}
