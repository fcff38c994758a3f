// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

// Package workflow drives a user request across agents: ambiguity check,
// routing, optional planning with approval, execution, automatic review
// with a bounded fix loop, and finalization.
package workflow

import (
	"context"
	"sync"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/memory"
	"github.com/lidco/lidco/pkg/tracing"
)

const (
	DefaultAgent               = "coder"
	DefaultMaxReviewIterations = 2

	plannerAgent  = "planner"
	reviewerAgent = "reviewer"

	historyTurns = 5
	ragResults   = 10
)

// Retriever supplies code context and keeps its index current.
// *vecstore.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, maxResults int) (string, error)
	UpdateFile(ctx context.Context, path string) (int, error)
}

// Options tune the graph's branching.
type Options struct {
	DefaultAgent        string
	AutoReview          bool
	AutoPlan            bool
	MaxReviewIterations int
}

// OptionsFromConfig maps the agents section of the config.
func OptionsFromConfig(cfg config.AgentsConfig) Options {
	return Options{
		DefaultAgent:        cfg.Default,
		AutoReview:          cfg.AutoReview,
		AutoPlan:            cfg.AutoPlan,
		MaxReviewIterations: cfg.MaxReviewIterations,
	}
}

func (o Options) withDefaults() Options {
	if o.DefaultAgent == "" {
		o.DefaultAgent = DefaultAgent
	}
	if o.MaxReviewIterations <= 0 {
		o.MaxReviewIterations = DefaultMaxReviewIterations
	}
	return o
}

type Option func(*Graph)

// WithMemory enables learning extraction in finalize.
func WithMemory(store memory.Store) Option {
	return func(g *Graph) { g.memory = store }
}

// WithRetriever injects code context and re-indexes written files.
func WithRetriever(r Retriever) Option {
	return func(g *Graph) { g.retriever = r }
}

// WithClarifications enables the ambiguity check before routing.
func WithClarifications(m *ClarificationManager) Option {
	return func(g *Graph) { g.clarifier = m }
}

// HandleOptions are per-request inputs. Agent preselects an agent and
// skips routing.
type HandleOptions struct {
	Agent   string
	Context string
}

type nodeFunc func(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID)

// Graph is the cross-agent state machine. One Handle call runs at a time
// per session; the history is the only state kept between calls.
type Graph struct {
	llm    agent.LLM
	agents *agent.Registry
	opts   Options

	memory    memory.Store
	retriever Retriever
	clarifier *ClarificationManager

	nodes map[NodeID]nodeFunc

	mu      sync.Mutex
	history []HistoryEntry

	promptMu      sync.Mutex
	routerPrompt  string
	promptVersion uint64
	promptBuilt   bool
}

// New builds a graph over the registered agents. llm serves the routing,
// ambiguity and memory-extraction calls.
func New(llm agent.LLM, agents *agent.Registry, opts Options, extra ...Option) *Graph {
	g := &Graph{
		llm:    llm,
		agents: agents,
		opts:   opts.withDefaults(),
	}
	for _, o := range extra {
		o(g)
	}
	g.nodes = map[NodeID]nodeFunc{
		NodePreAnalyze:     g.preAnalyze,
		NodeRoute:          g.route,
		NodePlanGate:       g.planGate,
		NodeExecutePlanner: g.executePlanner,
		NodeApprovePlan:    g.approvePlan,
		NodeExecuteAgent:   g.executeAgent,
		NodeAutoReview:     g.autoReview,
		NodeFinalize:       g.finalize,
	}
	return g
}

// Handle runs msg through the graph and returns the final response with
// any review appended. It never fails; problems surface as content.
func (g *Graph) Handle(ctx context.Context, msg string, opts HandleOptions, ec agent.ExecContext) *agent.AgentResponse {
	ctx, span := tracing.Start(ctx, "workflow", "workflow.handle",
		tracing.StringAttr("agent", opts.Agent),
		tracing.IntAttr("message_len", len(msg)),
	)

	state := State{
		Message:       msg,
		Context:       opts.Context,
		SelectedAgent: opts.Agent,
		History:       g.History(),
	}
	state = g.run(ctx, state, ec)
	tracing.End(span, state.Err)

	resp := state.Response
	if resp == nil {
		resp = &agent.AgentResponse{Content: "No response generated."}
	}
	if state.Review != nil && state.Review.Content != "" {
		merged := *resp
		merged.Content = resp.Content + "\n\n---\n**Auto-Review:**\n" + state.Review.Content
		resp = &merged
	}

	g.mu.Lock()
	g.history = append(g.history,
		HistoryEntry{Role: "user", Content: msg},
		HistoryEntry{Role: "assistant", Content: resp.Content},
	)
	g.mu.Unlock()
	return resp
}

// run is the driver loop. Each node returns the next node; NodeEnd stops.
func (g *Graph) run(ctx context.Context, s State, ec agent.ExecContext) State {
	node := NodePreAnalyze
	for node != NodeEnd {
		fn, ok := g.nodes[node]
		if !ok {
			logger.ErrorCF("workflow", "Unknown node", map[string]any{"node": int(node)})
			break
		}
		nctx, span := tracing.Start(ctx, "workflow", "workflow."+node.String())
		var next NodeID
		s, next = fn(nctx, s, ec)
		tracing.End(span, nil)

		logger.DebugCF("workflow", "Node finished", map[string]any{
			"node":  node.String(),
			"next":  next.String(),
			"agent": s.SelectedAgent,
		})
		node = next
	}
	return s
}

// History returns a copy of the session history.
func (g *Graph) History() []HistoryEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]HistoryEntry(nil), g.history...)
}

func (g *Graph) ClearHistory() {
	g.mu.Lock()
	g.history = nil
	g.mu.Unlock()
}
