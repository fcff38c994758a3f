// Package anthropicprovider adapts the Anthropic Messages API to the
// providers.LLMProvider contract.
package anthropicprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

type Provider struct {
	client  *anthropic.Client
	baseURL string
}

func NewProvider(apiKey string) *Provider {
	return NewProviderWithBaseURL(apiKey, "")
}

func NewProviderWithBaseURL(apiKey, apiBase string) *Provider {
	baseURL := normalizeBaseURL(apiBase)
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
	return &Provider{
		client:  &client,
		baseURL: baseURL,
	}
}

func NewProviderWithClient(client *anthropic.Client) *Provider {
	return &Provider{
		client:  client,
		baseURL: defaultBaseURL,
	}
}

func (p *Provider) Chat(
	ctx context.Context,
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) (*providers.LLMResponse, error) {
	params := buildParams(messages, tools, model, opts)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API call: %w", err)
	}

	return parseResponse(resp), nil
}

// ChatStream opens a streaming request. Text and tool-input deltas are
// surfaced as chunks keyed by content block index.
func (p *Provider) ChatStream(
	ctx context.Context,
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) (providers.Stream, error) {
	params := buildParams(messages, tools, model, opts)

	s := p.client.Messages.NewStreaming(ctx, params)
	if err := s.Err(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("claude streaming API call: %w", err)
	}
	return &eventStream{inner: s}, nil
}

func (p *Provider) GetDefaultModel() string {
	return defaultModel
}

func (p *Provider) BaseURL() string {
	return p.baseURL
}

func buildParams(
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var anthropicMessages []anthropic.MessageParam

	// Consecutive tool results are merged into one user message: the API
	// requires every tool_result for an assistant turn in a single message.
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case providers.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.ParsedArguments(), tc.ToolName()))
				}
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(blocks...))
			} else {
				anthropicMessages = append(anthropicMessages,
					anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)),
				)
			}
		case providers.RoleTool:
			var toolBlocks []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == providers.RoleTool {
				toolBlocks = append(toolBlocks,
					anthropic.NewToolResultBlock(messages[i].ToolCallID, messages[i].Content, false))
				i++
			}
			i-- // outer loop will increment
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(toolBlocks...))
		default:
			anthropicMessages = append(anthropicMessages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimPrefix(model, "anthropic/")),
		Messages:  anthropicMessages,
		MaxTokens: maxTokens,
	}

	if len(system) > 0 {
		params.System = system
	}

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	if len(tools) > 0 {
		params.Tools = translateTools(tools)
	}

	return params
}

func translateTools(tools []providers.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Function.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Function.Parameters["properties"],
			},
		}
		if desc := t.Function.Description; desc != "" {
			tool.Description = anthropic.String(desc)
		}
		switch req := t.Function.Parameters["required"].(type) {
		case []string:
			tool.InputSchema.Required = req
		case []any:
			required := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			tool.InputSchema.Required = required
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

func parseResponse(resp *anthropic.Message) *providers.LLMResponse {
	var content strings.Builder
	var toolCalls []providers.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args := string(tu.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, providers.ToolCall{
				ID:       tu.ID,
				Type:     "function",
				Function: &providers.FunctionCall{Name: tu.Name, Arguments: args},
			})
		}
	}

	return &providers.LLMResponse{
		Content:      content.String(),
		Model:        string(resp.Model),
		ToolCalls:    toolCalls,
		FinishReason: finishReason(resp.StopReason),
		Usage: providers.UsageInfo{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

func finishReason(r anthropic.StopReason) string {
	switch r {
	case anthropic.StopReasonToolUse:
		return "tool_calls"
	case anthropic.StopReasonMaxTokens:
		return "length"
	default:
		return "stop"
	}
}

type sdkStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// eventStream converts Messages API stream events into chunks. Events that
// carry nothing for the caller (block stops, pings) are skipped.
type eventStream struct {
	inner       sdkStream
	current     providers.StreamChunk
	model       string
	inputTokens int
}

func (s *eventStream) Next() bool {
	for s.inner.Next() {
		chunk, ok := s.convert(s.inner.Current())
		if ok {
			s.current = chunk
			return true
		}
	}
	return false
}

func (s *eventStream) convert(event anthropic.MessageStreamEventUnion) (providers.StreamChunk, bool) {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.model = string(e.Message.Model)
		s.inputTokens = int(e.Message.Usage.InputTokens)
		return providers.StreamChunk{}, false
	case anthropic.ContentBlockStartEvent:
		if e.ContentBlock.Type == "tool_use" {
			return providers.StreamChunk{
				Model: s.model,
				ToolCalls: []providers.ToolCallDelta{{
					Index: int(e.Index),
					ID:    e.ContentBlock.ID,
					Name:  e.ContentBlock.Name,
				}},
			}, true
		}
		if e.ContentBlock.Text != "" {
			return providers.StreamChunk{Model: s.model, Content: e.ContentBlock.Text}, true
		}
	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return providers.StreamChunk{Model: s.model, Content: e.Delta.Text}, true
		case "input_json_delta":
			return providers.StreamChunk{
				Model:     s.model,
				ToolCalls: []providers.ToolCallDelta{{Index: int(e.Index), Arguments: e.Delta.PartialJSON}},
			}, true
		}
	case anthropic.MessageDeltaEvent:
		out := int(e.Usage.OutputTokens)
		return providers.StreamChunk{
			Model:        s.model,
			FinishReason: finishReason(e.Delta.StopReason),
			Usage: &providers.UsageInfo{
				PromptTokens:     s.inputTokens,
				CompletionTokens: out,
				TotalTokens:      s.inputTokens + out,
			},
		}, true
	}
	return providers.StreamChunk{}, false
}

func (s *eventStream) Chunk() providers.StreamChunk { return s.current }

func (s *eventStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return fmt.Errorf("claude streaming API call: %w", err)
	}
	return nil
}

func (s *eventStream) Close() error {
	if err := s.inner.Close(); err != nil {
		logger.DebugCF("anthropic", "Stream close failed", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}

	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		return defaultBaseURL
	}

	return base
}
