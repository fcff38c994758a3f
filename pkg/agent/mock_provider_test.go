package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/tools"
)

// mockLLM replays queued responses. The last response repeats once the
// queue is drained.
type mockLLM struct {
	mu        sync.Mutex
	responses []*providers.LLMResponse
	streams   [][]providers.StreamChunk
	err       error
	requests  []providers.Request
	index     int
}

func (m *mockLLM) Complete(ctx context.Context, req providers.Request) (*providers.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &providers.LLMResponse{Content: "Mock response", Model: "mock-model"}, nil
	}
	if m.index >= len(m.responses) {
		m.index = len(m.responses) - 1
	}
	resp := *m.responses[m.index]
	m.index++
	return &resp, nil
}

func (m *mockLLM) Stream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.index >= len(m.streams) {
		return nil, fmt.Errorf("no stream queued for call %d", m.index+1)
	}
	chunks := m.streams[m.index]
	m.index++
	return providers.NewSliceStream(chunks, nil), nil
}

func (m *mockLLM) calls() []providers.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.Request(nil), m.requests...)
}

func toolCall(id, name, args string) providers.ToolCall {
	return providers.ToolCall{ID: id, Type: "function", Function: &providers.FunctionCall{Name: name, Arguments: args}}
}

func toolMessages(msgs []providers.Message) []providers.Message {
	var out []providers.Message
	for _, m := range msgs {
		if m.Role == providers.RoleTool {
			out = append(out, m)
		}
	}
	return out
}

// fakeTool is a configurable tools.Tool for loop tests.
type fakeTool struct {
	name    string
	level   config.PermissionLevel
	execute func(ctx context.Context, args map[string]any) tools.Outcome
	calls   atomic.Int32
}

func (f *fakeTool) Name() string                       { return f.name }
func (f *fakeTool) Description() string                { return "fake " + f.name }
func (f *fakeTool) Parameters() []tools.ToolParameter  { return nil }
func (f *fakeTool) Permission() config.PermissionLevel { return f.level }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) tools.Outcome {
	f.calls.Add(1)
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return tools.Done(tools.OK(f.name + " ok"))
}

func registryWith(ts ...tools.Tool) *tools.ToolRegistry {
	r := tools.NewToolRegistry()
	for _, t := range ts {
		r.Register(t)
	}
	return r
}
