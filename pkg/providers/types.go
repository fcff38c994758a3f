package providers

import (
	"context"
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type,omitempty"`
	Function *FunctionCall `json:"function,omitempty"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolName returns the called function name, or "" for a malformed call.
func (tc ToolCall) ToolName() string {
	if tc.Function == nil {
		return ""
	}
	return tc.Function.Name
}

// ParsedArguments decodes the raw argument JSON. Malformed or empty
// payloads decode to an empty map.
func (tc ToolCall) ParsedArguments() map[string]any {
	args := map[string]any{}
	if tc.Function == nil || tc.Function.Arguments == "" {
		return args
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// Message is one conversation turn. Name is set on tool results.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *UsageInfo) Add(other UsageInfo) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

type LLMResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        UsageInfo  `json:"usage"`
	CostUSD      float64    `json:"cost_usd"`
}

// ToolCallDelta is a fragment of a streamed tool call. Fragments sharing an
// Index belong to the same call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

type StreamChunk struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
	Usage        *UsageInfo
	Model        string
}

// Stream is a finite, ordered, non-restartable sequence of chunks.
type Stream interface {
	Next() bool
	Chunk() StreamChunk
	Err() error
	Close() error
}

type ChatOptions struct {
	Temperature *float64
	MaxTokens   int
	ToolChoice  string
}

type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, opts ChatOptions) (*LLMResponse, error)
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, opts ChatOptions) (Stream, error)
	GetDefaultModel() string
}

type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

type ToolFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func Float(v float64) *float64 { return &v }
