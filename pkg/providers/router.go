// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/tracing"
)

// Request is one logical model call. Model overrides role resolution and
// FallbackModel is tried right after it. Temperature and MaxTokens override
// role and global defaults.
type Request struct {
	Messages      []Message
	Tools         []ToolDefinition
	Model         string
	FallbackModel string
	Role          string
	Temperature   *float64
	MaxTokens     int
}

// ModelRouter resolves roles to model chains and runs each candidate through
// the retry policy before falling back to the next.
type ModelRouter struct {
	providers       map[string]LLMProvider
	defaultProvider string
	modelOwners     map[string]string
	known           map[string]bool

	llm   config.LLMConfig
	roles config.LLMProvidersConfig

	retry    *RetryPolicy
	chain    *FallbackChain
	limiters map[string]*rate.Limiter
}

type RouterOption func(*ModelRouter)

func WithRetryPolicy(p *RetryPolicy) RouterOption {
	return func(r *ModelRouter) { r.retry = p }
}

// WithCooldown skips candidates that failed within window while another
// candidate is still available. It overrides llm.cooldown_seconds.
func WithCooldown(window time.Duration) RouterOption {
	return func(r *ModelRouter) { r.chain = NewFallbackChain(NewCooldownTracker(window)) }
}

// NewModelRouter builds a router over the named providers. Models listed in a
// provider's config are owned by that provider; anything else is parsed as
// "provider/model" or routed to defaultProvider.
func NewModelRouter(cfg *config.Config, providers map[string]LLMProvider, defaultProvider string, opts ...RouterOption) *ModelRouter {
	cfg.RLock()
	llm := cfg.LLM
	roles := cfg.LLMProviders
	cfg.RUnlock()

	r := &ModelRouter{
		providers:       make(map[string]LLMProvider, len(providers)),
		defaultProvider: NormalizeProvider(defaultProvider),
		modelOwners:     make(map[string]string),
		known:           make(map[string]bool, len(providers)),
		llm:             llm,
		roles:           roles,
		retry:           RetryPolicyFromConfig(llm.Retry),
		chain:           NewFallbackChain(nil),
		limiters:        make(map[string]*rate.Limiter),
	}
	if llm.CooldownSeconds > 0 {
		r.chain = NewFallbackChain(NewCooldownTracker(time.Duration(llm.CooldownSeconds * float64(time.Second))))
	}
	for name, p := range providers {
		key := NormalizeProvider(name)
		r.providers[key] = p
		r.known[key] = true
		if llm.RequestsPerMinute > 0 {
			r.limiters[key] = rate.NewLimiter(rate.Limit(float64(llm.RequestsPerMinute)/60.0), 1)
		}
	}
	for name, pc := range roles.Providers {
		for _, m := range pc.Models {
			r.modelOwners[strings.ToLower(m)] = NormalizeProvider(name)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProviderNames returns the registered provider keys, sorted.
func (r *ModelRouter) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRouter) roleConfig(role string) (config.RoleModelConfig, bool) {
	if role == "" {
		return config.RoleModelConfig{}, false
	}
	if rc, ok := r.roles.RoleModels[role]; ok {
		return rc, true
	}
	rc, ok := r.roles.RoleModels["default"]
	return rc, ok
}

// ResolveChain returns the ordered, de-duplicated model list for a call:
// the primary, any caller fallbacks, the role fallback, then the globals.
func (r *ModelRouter) ResolveChain(explicit, role string, fallbacks ...string) []string {
	var chain []string
	seen := make(map[string]bool)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		chain = append(chain, m)
	}

	rc, hasRole := r.roleConfig(role)
	switch {
	case explicit != "":
		add(explicit)
	case hasRole && rc.Model != "":
		add(rc.Model)
	default:
		add(r.llm.DefaultModel)
	}

	for _, m := range fallbacks {
		add(m)
	}
	if hasRole {
		add(r.roles.ResolveFallback(role))
	}
	for _, m := range r.llm.FallbackModels {
		add(m)
	}
	return chain
}

func (r *ModelRouter) options(req Request) ChatOptions {
	opts := ChatOptions{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	rc, hasRole := r.roleConfig(req.Role)
	useRole := hasRole && req.Model == ""

	if opts.Temperature == nil {
		if useRole && rc.Temperature != nil {
			opts.Temperature = Float(*rc.Temperature)
		} else {
			opts.Temperature = Float(r.llm.Temperature)
		}
	}
	if opts.MaxTokens <= 0 {
		if useRole && rc.MaxTokens != nil {
			opts.MaxTokens = *rc.MaxTokens
		} else {
			opts.MaxTokens = r.llm.MaxTokens
		}
	}
	return opts
}

func (r *ModelRouter) candidates(chain []string) []FallbackCandidate {
	out := make([]FallbackCandidate, 0, len(chain))
	for _, m := range chain {
		if owner, ok := r.modelOwners[strings.ToLower(m)]; ok {
			out = append(out, FallbackCandidate{Provider: owner, Model: m})
			continue
		}
		ref := ParseModelRef(m, r.defaultProvider, r.known)
		if ref == nil {
			continue
		}
		out = append(out, FallbackCandidate{Provider: ref.Provider, Model: ref.Model})
	}
	return out
}

func (r *ModelRouter) provider(ctx context.Context, name string) (LLMProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, &FailoverError{
			Reason:  FailoverModelInvalid,
			Wrapped: fmt.Errorf("no provider configured for %q", name),
		}
	}
	if lim := r.limiters[name]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Complete runs req through the fallback chain and returns the first
// successful response.
func (r *ModelRouter) Complete(ctx context.Context, req Request) (*LLMResponse, error) {
	chain := r.ResolveChain(req.Model, req.Role, req.FallbackModel)
	ctx, span := tracing.Start(ctx, "providers", "llm.complete",
		tracing.StringAttr("role", req.Role),
		tracing.StringAttr("chain", strings.Join(chain, ",")),
	)
	opts := r.options(req)

	result, err := r.chain.Execute(ctx, r.candidates(chain), func(ctx context.Context, provider, model string) (*LLMResponse, error) {
		return Retry(ctx, r.retry, func(ctx context.Context) (*LLMResponse, error) {
			p, err := r.provider(ctx, provider)
			if err != nil {
				return nil, err
			}
			return p.Chat(ctx, req.Messages, req.Tools, model, opts)
		})
	})
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}

	resp := result.Response
	if resp.Model == "" {
		resp.Model = result.Model
	}
	if resp.CostUSD == 0 {
		resp.CostUSD = CalculateCost(resp.Model, resp.Usage)
	}
	span.SetAttributes(
		tracing.StringAttr("model", resp.Model),
		tracing.IntAttr("tokens", resp.Usage.TotalTokens),
	)
	tracing.End(span, nil)

	logger.DebugCF("router", "Completion served", map[string]any{
		"model":     resp.Model,
		"provider":  result.Provider,
		"fallbacks": len(result.Attempts),
		"tokens":    resp.Usage.TotalTokens,
	})
	return resp, nil
}

// Stream opens a streaming call. Failures before the first chunk are
// retried and fall back like Complete; once a chunk has been produced the
// stream belongs to that candidate and later errors surface through Err.
func (r *ModelRouter) Stream(ctx context.Context, req Request) (Stream, error) {
	chain := r.ResolveChain(req.Model, req.Role, req.FallbackModel)
	ctx, span := tracing.Start(ctx, "providers", "llm.stream",
		tracing.StringAttr("role", req.Role),
		tracing.StringAttr("chain", strings.Join(chain, ",")),
	)
	opts := r.options(req)

	s, winner, _, err := runChain(ctx, r.chain, r.candidates(chain), func(ctx context.Context, provider, model string) (Stream, error) {
		return Retry(ctx, r.retry, func(ctx context.Context) (Stream, error) {
			p, err := r.provider(ctx, provider)
			if err != nil {
				return nil, err
			}
			return openPrimed(ctx, p, req, model, opts)
		})
	})
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}
	span.SetAttributes(tracing.StringAttr("model", winner.Model))
	ps := s.(*primedStream)
	ps.onClose = func() { tracing.End(span, ps.inner.Err()) }
	return ps, nil
}

func openPrimed(ctx context.Context, p LLMProvider, req Request, model string, opts ChatOptions) (Stream, error) {
	inner, err := p.ChatStream(ctx, req.Messages, req.Tools, model, opts)
	if err != nil {
		return nil, err
	}
	if inner.Next() {
		return &primedStream{first: inner.Chunk(), hasFirst: true, inner: inner}, nil
	}
	if err := inner.Err(); err != nil {
		_ = inner.Close()
		return nil, err
	}
	return &primedStream{inner: inner}, nil
}

// Collect drains a stream into a single response.
func Collect(s Stream) (*LLMResponse, error) {
	defer s.Close()
	resp := &LLMResponse{}
	var content strings.Builder
	acc := NewToolCallAccumulator()
	for s.Next() {
		ch := s.Chunk()
		content.WriteString(ch.Content)
		acc.Add(ch.ToolCalls)
		if ch.FinishReason != "" {
			resp.FinishReason = ch.FinishReason
		}
		if ch.Usage != nil {
			resp.Usage = *ch.Usage
		}
		if ch.Model != "" {
			resp.Model = ch.Model
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	resp.Content = content.String()
	resp.ToolCalls = acc.ToolCalls()
	return resp, nil
}

// ToolCallAccumulator merges streamed tool-call fragments by index. The
// first fragment for an index sets the id and name; later fragments append
// to the argument string.
type ToolCallAccumulator struct {
	order []int
	calls map[int]*ToolCall
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCall)}
}

func (a *ToolCallAccumulator) Add(deltas []ToolCallDelta) {
	for _, d := range deltas {
		tc, ok := a.calls[d.Index]
		if !ok {
			tc = &ToolCall{ID: d.ID, Type: "function", Function: &FunctionCall{Name: d.Name}}
			a.calls[d.Index] = tc
			a.order = append(a.order, d.Index)
		} else {
			if tc.ID == "" {
				tc.ID = d.ID
			}
			if tc.Function.Name == "" {
				tc.Function.Name = d.Name
			}
		}
		tc.Function.Arguments += d.Arguments
	}
}

func (a *ToolCallAccumulator) Len() int { return len(a.order) }

// ToolCalls returns the merged calls ordered by stream index.
func (a *ToolCallAccumulator) ToolCalls() []ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	idx := append([]int(nil), a.order...)
	sort.Ints(idx)
	out := make([]ToolCall, 0, len(idx))
	for _, i := range idx {
		out = append(out, *a.calls[i])
	}
	return out
}
