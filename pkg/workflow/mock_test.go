package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/memory"
	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/tools"
)

// scriptLLM replays queued responses per request role. The last response
// of a role repeats once its queue is drained.
type scriptLLM struct {
	mu       sync.Mutex
	byRole   map[string][]*providers.LLMResponse
	errs     map[string]error
	failAt   map[string]int // 1-based call from which errs applies; 0 = always
	counts   map[string]int
	requests []providers.Request
}

func newScriptLLM() *scriptLLM {
	return &scriptLLM{
		byRole: make(map[string][]*providers.LLMResponse),
		errs:   make(map[string]error),
		failAt: make(map[string]int),
		counts: make(map[string]int),
	}
}

func (m *scriptLLM) on(role string, responses ...*providers.LLMResponse) *scriptLLM {
	m.byRole[role] = append(m.byRole[role], responses...)
	return m
}

func (m *scriptLLM) text(role string, contents ...string) *scriptLLM {
	for _, c := range contents {
		m.on(role, &providers.LLMResponse{Content: c, Model: "mock-model"})
	}
	return m
}

func (m *scriptLLM) fail(role string, err error) *scriptLLM {
	m.errs[role] = err
	return m
}

// failFrom lets the first call-1 calls of role succeed and fails the rest.
func (m *scriptLLM) failFrom(role string, call int, err error) *scriptLLM {
	m.failAt[role] = call
	m.errs[role] = err
	return m
}

func (m *scriptLLM) Complete(_ context.Context, req providers.Request) (*providers.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.counts[req.Role]++
	if err := m.errs[req.Role]; err != nil && m.counts[req.Role] >= m.failAt[req.Role] {
		return nil, err
	}
	q := m.byRole[req.Role]
	if len(q) == 0 {
		return &providers.LLMResponse{Content: "Mock response", Model: "mock-model"}, nil
	}
	resp := *q[0]
	if len(q) > 1 {
		m.byRole[req.Role] = q[1:]
	}
	return &resp, nil
}

func (m *scriptLLM) Stream(context.Context, providers.Request) (providers.Stream, error) {
	return nil, errors.New("streaming is not scripted")
}

// calls returns the requests made with role.
func (m *scriptLLM) calls(role string) []providers.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []providers.Request
	for _, r := range m.requests {
		if r.Role == role {
			out = append(out, r)
		}
	}
	return out
}

// runs counts agent runs for role: the first model call of a run carries
// only the system and user messages.
func (m *scriptLLM) runs(role string) []providers.Request {
	var out []providers.Request
	for _, r := range m.calls(role) {
		if len(r.Messages) == 2 {
			out = append(out, r)
		}
	}
	return out
}

func writeCall(id, path string) *providers.LLMResponse {
	return &providers.LLMResponse{
		Model: "mock-model",
		ToolCalls: []providers.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: &providers.FunctionCall{Name: "file_write", Arguments: `{"path":"` + path + `","content":"package main"}`},
		}},
	}
}

func readCall(id, tool, args string) *providers.LLMResponse {
	return &providers.LLMResponse{
		Model: "mock-model",
		ToolCalls: []providers.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: &providers.FunctionCall{Name: tool, Arguments: args},
		}},
	}
}

type stubTool struct{ name string }

func (s stubTool) Name() string                       { return s.name }
func (s stubTool) Description() string                { return "stub " + s.name }
func (s stubTool) Parameters() []tools.ToolParameter  { return nil }
func (s stubTool) Permission() config.PermissionLevel { return config.PermissionAuto }

func (s stubTool) Execute(context.Context, map[string]any) tools.Outcome {
	return tools.Done(tools.OK(s.name + " ok"))
}

func stubTools() *tools.ToolRegistry {
	reg := tools.NewToolRegistry()
	for _, n := range []string{"file_read", "file_write", "file_edit", "grep", "glob"} {
		reg.Register(stubTool{name: n})
	}
	return reg
}

// newAgents registers one agent per name, all served by llm.
func newAgents(t *testing.T, llm agent.LLM, names ...string) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	toolReg := stubTools()
	for _, n := range names {
		require.NoError(t, reg.Register(agent.New(agent.AgentConfig{
			Name:         n,
			Description:  n + " agent",
			SystemPrompt: "You are the " + n + ".",
		}, llm, toolReg)))
	}
	return reg
}

// recorder captures observer output and answers clarifications from a
// fixed list.
type recorder struct {
	mu        sync.Mutex
	statuses  []string
	questions []string
	answers   []string
}

func (r *recorder) execContext() agent.ExecContext {
	return agent.ExecContext{}.
		WithStatus(func(s string) {
			r.mu.Lock()
			r.statuses = append(r.statuses, s)
			r.mu.Unlock()
		}).
		WithClarify(func(_ context.Context, q string, _ []string, _ string) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.questions = append(r.questions, q)
			if len(r.answers) == 0 {
				return "", nil
			}
			a := r.answers[0]
			r.answers = r.answers[1:]
			return a, nil
		})
}

func (r *recorder) hasStatus(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.statuses {
		if got == s {
			return true
		}
	}
	return false
}

func systemPrompt(req providers.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[0].Content
}

func userMessage(req providers.Request) string {
	for _, m := range req.Messages {
		if m.Role == providers.RoleUser {
			return m.Content
		}
	}
	return ""
}

// indexOf returns the position of sub in s, or -1.
func indexOf(s, sub string) int { return strings.Index(s, sub) }

func openMemory(t *testing.T) *memory.SQLiteStore {
	t.Helper()
	s, err := memory.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"), memory.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeRetriever struct {
	mu      sync.Mutex
	context string
	err     error
	queries []string
	updated []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.context, f.err
}

func (f *fakeRetriever) UpdateFile(_ context.Context, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, path)
	return 1, nil
}
