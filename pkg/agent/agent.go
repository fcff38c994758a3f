// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

// Package agent implements the per-agent reasoning loop: model calls,
// tool dispatch, streaming accumulation and conversation pruning.
package agent

import (
	"context"

	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/tools"
)

const (
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 4096
	DefaultMaxIterations = 200
	DefaultContextWindow = 128_000
)

// LLM is the model surface an agent needs. *providers.ModelRouter
// satisfies it.
type LLM interface {
	Complete(ctx context.Context, req providers.Request) (*providers.LLMResponse, error)
	Stream(ctx context.Context, req providers.Request) (providers.Stream, error)
}

// AgentConfig fully describes an agent. Built-in and custom agents differ
// only in these values.
type AgentConfig struct {
	Name         string
	Description  string
	SystemPrompt string
	// Model pins the agent to one model. Empty routes by the agent name
	// as role.
	Model         string
	// FallbackModel is tried right after the primary model.
	FallbackModel string
	Temperature   float64
	MaxTokens     int
	Tools         []string // empty means every registered tool
	MaxIterations int
	ContextWindow int // tokens
}

// withDefaults fills zero limits. Temperature 0 is a legal value and is
// left alone.
func (c AgentConfig) withDefaults() AgentConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	return c
}

// HasTool reports whether the agent may call the named tool.
func (c AgentConfig) HasTool(name string) bool {
	if len(c.Tools) == 0 {
		return true
	}
	for _, t := range c.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// ToolCallRecord is one tool invocation made during a run.
type ToolCallRecord struct {
	Tool string
	Args map[string]any
}

// TokenUsage accumulates usage across the model calls of one run.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	TotalCostUSD     float64
}

func (u *TokenUsage) Add(usage providers.UsageInfo, costUSD float64) {
	u.PromptTokens += usage.PromptTokens
	u.CompletionTokens += usage.CompletionTokens
	u.TotalTokens += usage.TotalTokens
	u.TotalCostUSD += costUSD
}

// AgentResponse is the final outcome of a run. Err is set when the run
// stopped on a model failure; Content then describes it.
type AgentResponse struct {
	Content    string
	ToolCalls  []ToolCallRecord
	Iterations int
	Model      string
	Usage      TokenUsage
	Err        error
}

// HasToolCall reports whether any call in the response used one of names.
func (r *AgentResponse) HasToolCall(names ...string) bool {
	for _, tc := range r.ToolCalls {
		for _, n := range names {
			if tc.Tool == n {
				return true
			}
		}
	}
	return false
}

// Agent binds a config to a model and a tool registry. An Agent holds no
// per-run state and can serve concurrent runs.
type Agent struct {
	cfg        AgentConfig
	llm        LLM
	dispatcher *tools.Dispatcher
}

func New(cfg AgentConfig, llm LLM, registry *tools.ToolRegistry) *Agent {
	if registry == nil {
		registry = tools.NewToolRegistry()
	}
	return &Agent{
		cfg:        cfg.withDefaults(),
		llm:        llm,
		dispatcher: tools.NewDispatcher(registry),
	}
}

func (a *Agent) Name() string        { return a.cfg.Name }
func (a *Agent) Description() string { return a.cfg.Description }
func (a *Agent) Config() AgentConfig { return a.cfg }

// toolDefinitions returns the schemas offered to the model. The registry
// caches them per allow list until its tool set changes.
func (a *Agent) toolDefinitions() []providers.ToolDefinition {
	return a.dispatcher.Registry().Definitions(a.cfg.Tools)
}
