// Package openai_sdk adapts OpenAI-compatible chat completion endpoints to
// the providers.LLMProvider contract.
package openai_sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/providers"
)

const (
	defaultModel          = "gpt-4o-mini"
	defaultAPIBase        = "https://api.openai.com/v1"
	defaultRequestTimeout = 120 * time.Second
)

type Provider struct {
	apiBase    string
	httpClient *http.Client
	client     *openai.Client
	model      string
}

type Option func(*Provider)

func WithRequestTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.httpClient.Timeout = timeout
		}
	}
}

func WithDefaultModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

func NewProvider(apiKey, apiBase, proxy string, opts ...Option) *Provider {
	httpClient := &http.Client{Timeout: defaultRequestTimeout}
	if proxy != "" {
		parsed, err := url.Parse(proxy)
		if err == nil {
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
		} else {
			logger.WarnCF("openai", "Invalid proxy URL", map[string]any{"proxy": proxy, "error": err.Error()})
		}
	}

	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if base == "" {
		base = defaultAPIBase
	}

	p := &Provider{
		apiBase:    base,
		httpClient: httpClient,
		model:      defaultModel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(p.apiBase),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(reqOpts...)
	p.client = &client
	return p
}

func (p *Provider) GetDefaultModel() string {
	return p.model
}

// Client exposes the underlying SDK client, shared with the embedder.
func (p *Provider) Client() *openai.Client {
	return p.client
}

func (p *Provider) Chat(
	ctx context.Context,
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) (*providers.LLMResponse, error) {
	params := p.buildParams(messages, tools, model, opts)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API returned no choices")
	}

	choice := resp.Choices[0]
	return &providers.LLMResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		ToolCalls:    parseChoiceToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
		Usage:        mapUsage(resp.Usage),
	}, nil
}

// ChatStream opens a streaming completion with usage reporting on the final
// chunk.
func (p *Provider) ChatStream(
	ctx context.Context,
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) (providers.Stream, error) {
	params := p.buildParams(messages, tools, model, opts)
	params.StreamOptions.IncludeUsage = openai.Bool(true)

	s := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := s.Err(); err != nil {
		_ = s.Close()
		return nil, wrapError(err)
	}
	return &chunkStream{inner: s}, nil
}

func (p *Provider) buildParams(
	messages []providers.Message,
	tools []providers.ToolDefinition,
	model string,
	opts providers.ChatOptions,
) openai.ChatCompletionNewParams {
	if strings.TrimSpace(model) == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    normalizeModel(model),
		Messages: buildChatMessages(messages),
	}

	if len(tools) > 0 {
		params.Tools = buildChatTools(tools)
		choice := opts.ToolChoice
		if choice == "" {
			choice = string(openai.ChatCompletionToolChoiceOptionAutoAuto)
		}
		params.ToolChoice.OfAuto = openai.String(choice)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Opt(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Opt(*opts.Temperature)
	}
	return params
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("OpenAI API request failed (status=%d): %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("OpenAI API request failed: %w", err)
}

func normalizeModel(model string) string {
	trimmed := strings.TrimSpace(model)
	if strings.HasPrefix(strings.ToLower(trimmed), "openai/") {
		return trimmed[len("openai/"):]
	}
	return trimmed
}

func buildChatMessages(messages []providers.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case providers.RoleAssistant:
			out = append(out, buildAssistantMessage(msg))
		case providers.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func buildAssistantMessage(msg providers.Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		name := tc.ToolName()
		if name == "" {
			continue
		}
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      name,
					Arguments: args,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func buildChatTools(tools []providers.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function.Name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  shared.FunctionParameters(tool.Function.Parameters),
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

func parseChoiceToolCalls(calls []openai.ChatCompletionMessageToolCallUnion) []providers.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]providers.ToolCall, 0, len(calls))
	for _, call := range calls {
		switch v := call.AsAny().(type) {
		case openai.ChatCompletionMessageFunctionToolCall:
			result = append(result, providers.ToolCall{
				ID:   v.ID,
				Type: "function",
				Function: &providers.FunctionCall{
					Name:      v.Function.Name,
					Arguments: v.Function.Arguments,
				},
			})
		}
	}
	return result
}

func mapUsage(usage openai.CompletionUsage) providers.UsageInfo {
	return providers.UsageInfo{
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
		TotalTokens:      int(usage.TotalTokens),
	}
}

// sdkStream is the subset of the SDK's SSE stream the adapter reads.
type sdkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type chunkStream struct {
	inner   sdkStream
	current providers.StreamChunk
}

func (s *chunkStream) Next() bool {
	if !s.inner.Next() {
		return false
	}
	s.current = convertChunk(s.inner.Current())
	return true
}

func (s *chunkStream) Chunk() providers.StreamChunk { return s.current }

func (s *chunkStream) Err() error {
	if err := s.inner.Err(); err != nil {
		return wrapError(err)
	}
	return nil
}

func (s *chunkStream) Close() error { return s.inner.Close() }

func convertChunk(c openai.ChatCompletionChunk) providers.StreamChunk {
	out := providers.StreamChunk{Model: c.Model}
	if c.Usage.TotalTokens > 0 || c.Usage.PromptTokens > 0 {
		u := mapUsage(c.Usage)
		out.Usage = &u
	}
	if len(c.Choices) == 0 {
		return out
	}
	choice := c.Choices[0]
	out.Content = choice.Delta.Content
	out.FinishReason = choice.FinishReason
	for _, tc := range choice.Delta.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, providers.ToolCallDelta{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
