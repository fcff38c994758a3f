// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/tools"
	"github.com/lidco/lidco/pkg/tracing"
)

const (
	maxIterationsMessage = "Reached maximum iterations. Here's what I have so far."

	// pruneMinMessages is the conversation length below which pruning is
	// never considered.
	pruneMinMessages = 8
)

var errNoClarifier = errors.New("no clarification handler")

// pruneSteps map a context-window usage ratio to the fraction of the window
// the conversation is pruned down to. Checked in order; first match wins.
var pruneSteps = []struct {
	above  float64
	target float64
}{
	{above: 0.75, target: 0.40},
	{above: 0.50, target: 0.60},
}

type parsedCall struct {
	id   string
	name string
	args map[string]any
}

// run is the state of one Run call. It is owned by a single goroutine
// except during a read-only batch, where workers only write their own slot
// of the results slice.
type run struct {
	agent        *Agent
	ec           ExecContext
	conversation []providers.Message
	calls        []ToolCallRecord
	usage        TokenUsage
}

// Run executes the reasoning loop for one user message. It never returns
// nil and never panics; failures come back as a response with Err set.
func (a *Agent) Run(ctx context.Context, userMessage, contextText string, ec ExecContext) (resp *AgentResponse) {
	ctx, span := tracing.Start(ctx, "agent", "agent.run", tracing.StringAttr("agent", a.cfg.Name))
	start := time.Now()

	r := &run{agent: a, ec: ec}
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorCF("agent", "Agent run panicked", map[string]any{
				"agent": a.cfg.Name,
				"panic": fmt.Sprint(p),
				"stack": string(debug.Stack()),
			})
			resp = r.failure(fmt.Errorf("panic: %v", p))
		}
		span.SetAttributes(
			tracing.IntAttr("iterations", resp.Iterations),
			tracing.IntAttr("tool_calls", len(resp.ToolCalls)),
		)
		tracing.End(span, resp.Err)
		logger.InfoCF("agent", "Agent run finished", map[string]any{
			"agent":       a.cfg.Name,
			"iterations":  resp.Iterations,
			"tool_calls":  len(resp.ToolCalls),
			"tokens":      resp.Usage.TotalTokens,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()

	r.conversation = []providers.Message{
		{Role: providers.RoleSystem, Content: a.systemPrompt(contextText, ec.Streaming())},
		{Role: providers.RoleUser, Content: userMessage},
	}
	return r.loop(ctx)
}

func (r *run) loop(ctx context.Context) *AgentResponse {
	cfg := r.agent.cfg
	defs := r.agent.toolDefinitions()
	limit := cfg.MaxIterations
	iteration := 0

	for {
		if iteration >= limit {
			if !r.ec.Continue(ctx, iteration, limit) {
				break
			}
			limit += cfg.MaxIterations
			logger.InfoCF("agent", "Iteration cap extended", map[string]any{"agent": cfg.Name, "limit": limit})
		}
		iteration++

		r.maybePrune()

		r.ec.Status(fmt.Sprintf("Thinking (step %d)", iteration))
		logger.DebugCF("agent", "LLM iteration", map[string]any{
			"agent":     cfg.Name,
			"iteration": iteration,
			"max":       limit,
			"messages":  len(r.conversation),
			"tools":     len(defs),
		})

		response, err := r.callModel(ctx, defs)
		if err != nil {
			logger.ErrorCF("agent", "LLM call failed", map[string]any{
				"agent":     cfg.Name,
				"iteration": iteration,
				"error":     err.Error(),
			})
			resp := r.failure(err)
			resp.Iterations = iteration
			return resp
		}
		r.usage.Add(response.Usage, response.CostUSD)
		r.ec.tokens(r.usage)

		if len(response.ToolCalls) == 0 {
			return &AgentResponse{
				Content:    response.Content,
				ToolCalls:  r.calls,
				Iterations: iteration,
				Model:      response.Model,
				Usage:      r.usage,
			}
		}

		calls := r.recordAssistant(response)
		r.conversation = append(r.conversation, r.execute(ctx, calls)...)
	}

	logger.WarnCF("agent", "Max iterations reached", map[string]any{"agent": cfg.Name, "iterations": iteration})
	return &AgentResponse{
		Content:    maxIterationsMessage,
		ToolCalls:  r.calls,
		Iterations: iteration,
		Model:      cfg.Model,
		Usage:      r.usage,
	}
}

func (r *run) failure(err error) *AgentResponse {
	return &AgentResponse{
		Content: fmt.Sprintf("Agent error: %v", err),
		Model:   r.agent.cfg.Model,
		Usage:   r.usage,
		Err:     err,
	}
}

func (r *run) maybePrune() {
	if len(r.conversation) <= pruneMinMessages {
		return
	}
	window := r.agent.cfg.ContextWindow
	est := EstimateConversationTokens(r.conversation)
	for _, step := range pruneSteps {
		if float64(est) > float64(window)*step.above {
			maxChars := int(float64(window) * charsPerToken * step.target)
			before := len(r.conversation)
			r.conversation = PruneConversation(r.conversation, maxChars, DefaultKeepRecentExchanges)
			logger.InfoCF("agent", "Conversation pruned", map[string]any{
				"agent":          r.agent.cfg.Name,
				"estimated":      est,
				"max_chars":      maxChars,
				"messages":       before,
				"tokens_after":   EstimateConversationTokens(r.conversation),
				"context_window": window,
			})
			return
		}
	}
}

func (r *run) request(defs []providers.ToolDefinition) providers.Request {
	cfg := r.agent.cfg
	req := providers.Request{
		Messages:      append([]providers.Message(nil), r.conversation...),
		Tools:         defs,
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		Temperature:   providers.Float(cfg.Temperature),
		MaxTokens:     cfg.MaxTokens,
	}
	if cfg.Model == "" {
		req.Role = cfg.Name
	}
	return req
}

func (r *run) callModel(ctx context.Context, defs []providers.ToolDefinition) (*providers.LLMResponse, error) {
	req := r.request(defs)
	if !r.ec.Streaming() {
		return r.agent.llm.Complete(ctx, req)
	}
	return r.streamComplete(ctx, req)
}

// streamComplete forwards text deltas to the stream sink as they arrive and
// assembles the full response from the chunks.
func (r *run) streamComplete(ctx context.Context, req providers.Request) (*providers.LLMResponse, error) {
	s, err := r.agent.llm.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	resp := &providers.LLMResponse{Model: req.Model, FinishReason: "stop"}
	var content []byte
	acc := providers.NewToolCallAccumulator()
	for s.Next() {
		ch := s.Chunk()
		if ch.Content != "" {
			content = append(content, ch.Content...)
			r.ec.stream(ch.Content)
		}
		acc.Add(ch.ToolCalls)
		if ch.Usage != nil {
			resp.Usage = *ch.Usage
		}
		if ch.FinishReason != "" {
			resp.FinishReason = ch.FinishReason
		}
		if ch.Model != "" {
			resp.Model = ch.Model
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	resp.Content = string(content)
	resp.ToolCalls = acc.ToolCalls()
	resp.CostUSD = providers.CalculateCost(resp.Model, resp.Usage)
	return resp, nil
}

// recordAssistant appends the assistant turn, giving every call an id, and
// returns the parsed calls. Malformed arguments parse to an empty map.
func (r *run) recordAssistant(resp *providers.LLMResponse) []parsedCall {
	toolCalls := make([]providers.ToolCall, len(resp.ToolCalls))
	parsed := make([]parsedCall, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		toolCalls[i] = tc
		parsed[i] = parsedCall{id: tc.ID, name: tc.ToolName(), args: tc.ParsedArguments()}
		r.calls = append(r.calls, ToolCallRecord{Tool: parsed[i].name, Args: parsed[i].args})
	}
	r.conversation = append(r.conversation, providers.Message{
		Role:      providers.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: toolCalls,
	})
	return parsed
}

func allReadOnly(calls []parsedCall) bool {
	if len(calls) < 2 {
		return false
	}
	for _, c := range calls {
		if !tools.IsReadOnly(c.name) {
			return false
		}
	}
	return true
}

// execute dispatches a batch and returns the tool messages in request
// order. A batch of two or more read-only calls runs concurrently.
func (r *run) execute(ctx context.Context, calls []parsedCall) []providers.Message {
	msgs := make([]providers.Message, len(calls))

	if allReadOnly(calls) {
		r.ec.Status(fmt.Sprintf("Running %d tools in parallel", len(calls)))
		var g errgroup.Group
		for i, c := range calls {
			g.Go(func() error {
				msgs[i] = r.dispatch(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
		return msgs
	}

	for i, c := range calls {
		r.ec.Status("Tool: " + c.name)
		msgs[i] = r.dispatch(ctx, c)
	}
	return msgs
}

func (r *run) dispatch(ctx context.Context, c parsedCall) providers.Message {
	r.ec.toolEvent(ToolEvent{Phase: ToolEventStart, Tool: c.name, Args: c.args})
	var result *tools.ToolResult
	if r.agent.cfg.HasTool(c.name) {
		if _, ok := r.agent.dispatcher.Registry().Get(c.name); ok {
			r.ec.Status(DescribeToolCall(c.name, c.args))
		}
		result = r.agent.dispatcher.Dispatch(ctx, c.name, c.args, r.ec.hooks())
	} else {
		// Calls outside the agent's tool list are answered as if the tool
		// did not exist.
		logger.WarnCF("agent", "Tool not allowed for agent", map[string]any{"agent": r.agent.cfg.Name, "tool": c.name})
		result = tools.Fail("Unknown tool: %s", c.name)
	}
	r.ec.toolEvent(ToolEvent{Phase: ToolEventEnd, Tool: c.name, Args: c.args, Result: result})

	return providers.Message{
		Role:       providers.RoleTool,
		Content:    tools.TruncateToolResult(c.name, result.Content(), 0),
		ToolCallID: c.id,
		Name:       c.name,
	}
}
