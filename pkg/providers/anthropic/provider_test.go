package anthropicprovider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/lidco/lidco/pkg/providers"
)

func TestBuildParams_BasicMessage(t *testing.T) {
	messages := []providers.Message{
		{Role: "user", Content: "Hello"},
	}
	params := buildParams(messages, nil, "claude-sonnet-4", providers.ChatOptions{MaxTokens: 1024})
	if string(params.Model) != "claude-sonnet-4" {
		t.Errorf("Model = %q, want %q", params.Model, "claude-sonnet-4")
	}
	if params.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", params.MaxTokens)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
}

func TestBuildParams_DefaultsAndPrefix(t *testing.T) {
	params := buildParams([]providers.Message{{Role: "user", Content: "Hi"}}, nil, "anthropic/claude-3-5-haiku", providers.ChatOptions{})
	if string(params.Model) != "claude-3-5-haiku" {
		t.Errorf("Model = %q, want provider prefix stripped", params.Model)
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, defaultMaxTokens)
	}
}

func TestBuildParams_SystemMessage(t *testing.T) {
	messages := []providers.Message{
		{Role: "system", Content: "You are helpful"},
		{Role: "user", Content: "Hi"},
	}
	params := buildParams(messages, nil, "claude-sonnet-4", providers.ChatOptions{Temperature: providers.Float(0.3)})
	if len(params.System) != 1 {
		t.Fatalf("len(System) = %d, want 1", len(params.System))
	}
	if params.System[0].Text != "You are helpful" {
		t.Errorf("System[0].Text = %q, want %q", params.System[0].Text, "You are helpful")
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(params.Messages))
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.3 {
		t.Errorf("Temperature = %+v, want 0.3", params.Temperature)
	}
}

func TestBuildParams_ToolResultsMerged(t *testing.T) {
	messages := []providers.Message{
		{Role: "user", Content: "Find things"},
		{
			Role: "assistant",
			ToolCalls: []providers.ToolCall{
				{ID: "call_1", Function: &providers.FunctionCall{Name: "grep", Arguments: `{"pattern":"a"}`}},
				{ID: "call_2", Function: &providers.FunctionCall{Name: "glob", Arguments: `not json`}},
			},
		},
		{Role: "tool", Content: "a.go", ToolCallID: "call_1", Name: "grep"},
		{Role: "tool", Content: "b.go", ToolCallID: "call_2", Name: "glob"},
	}
	params := buildParams(messages, nil, "claude-sonnet-4", providers.ChatOptions{})
	if len(params.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3 (tool results merged)", len(params.Messages))
	}
	if n := len(params.Messages[2].Content); n != 2 {
		t.Fatalf("tool result blocks = %d, want 2", n)
	}
}

func TestBuildParams_WithTools(t *testing.T) {
	tools := []providers.ToolDefinition{
		{
			Type: "function",
			Function: providers.ToolFunctionDefinition{
				Name:        "file_read",
				Description: "Read a file",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": map[string]any{"type": "string"},
					},
					"required": []string{"path"},
				},
			},
		},
	}
	params := buildParams([]providers.Message{{Role: "user", Content: "Hi"}}, tools, "claude-sonnet-4", providers.ChatOptions{})
	if len(params.Tools) != 1 {
		t.Fatalf("len(Tools) = %d, want 1", len(params.Tools))
	}
	if got := params.Tools[0].OfTool.InputSchema.Required; len(got) != 1 || got[0] != "path" {
		t.Errorf("Required = %v, want [path]", got)
	}
}

func TestParseResponse_StopReasons(t *testing.T) {
	tests := []struct {
		stopReason anthropic.StopReason
		want       string
	}{
		{anthropic.StopReasonEndTurn, "stop"},
		{anthropic.StopReasonMaxTokens, "length"},
		{anthropic.StopReasonToolUse, "tool_calls"},
	}
	for _, tt := range tests {
		result := parseResponse(&anthropic.Message{StopReason: tt.stopReason})
		if result.FinishReason != tt.want {
			t.Errorf("StopReason %q: FinishReason = %q, want %q", tt.stopReason, result.FinishReason, tt.want)
		}
	}
}

func TestProvider_ChatRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var reqBody map[string]any
		_ = json.NewDecoder(r.Body).Decode(&reqBody)

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       reqBody["model"],
			"stop_reason": "tool_use",
			"content": []map[string]any{
				{"type": "text", "text": "Looking."},
				{"type": "tool_use", "id": "tu_1", "name": "grep", "input": map[string]any{"pattern": "x"}},
			},
			"usage": map[string]any{
				"input_tokens":  15,
				"output_tokens": 8,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL("test-key", server.URL)
	resp, err := provider.Chat(t.Context(), []providers.Message{{Role: "user", Content: "Hello"}}, nil, "claude-sonnet-4", providers.ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Content != "Looking." {
		t.Errorf("Content = %q, want %q", resp.Content, "Looking.")
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 23 {
		t.Errorf("TotalTokens = %d, want 23", resp.Usage.TotalTokens)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ParsedArguments()["pattern"] != "x" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
}

func TestProvider_ChatStream(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"grep","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"pattern\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x\"}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":7}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = w.Write([]byte("event: " + e.name + "\ndata: " + e.data + "\n\n"))
		}
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL("test-key", server.URL)
	s, err := provider.ChatStream(t.Context(), []providers.Message{{Role: "user", Content: "Hello"}}, nil, "claude-sonnet-4", providers.ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}
	resp, err := providers.Collect(s)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}
	if resp.Content != "Hi there" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hi there")
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("FinishReason = %q, want tool_calls", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(resp.ToolCalls))
	}
	if tc := resp.ToolCalls[0]; tc.ID != "tu_1" || tc.ToolName() != "grep" || tc.ParsedArguments()["pattern"] != "x" {
		t.Errorf("ToolCalls[0] = %+v", tc)
	}
}

func TestProvider_GetDefaultModel(t *testing.T) {
	p := NewProvider("test-key")
	if got := p.GetDefaultModel(); got != defaultModel {
		t.Errorf("GetDefaultModel() = %q, want %q", got, defaultModel)
	}
}

func TestProvider_NewProviderWithBaseURL_NormalizesV1Suffix(t *testing.T) {
	p := NewProviderWithBaseURL("key", "https://api.anthropic.com/v1/")
	if got := p.BaseURL(); got != "https://api.anthropic.com" {
		t.Fatalf("BaseURL() = %q, want %q", got, "https://api.anthropic.com")
	}
}
