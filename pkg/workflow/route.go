package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/providers"
)

const routerPromptTemplate = `You are a task router. Select the best agent. Respond JSON: {"agent": "<name>", "needs_review": bool, "needs_planning": bool}

Available agents:
%s

needs_review=true for code modifications. needs_planning=true for new features, multi-file, architecture.
Rules: plan/design→planner, review/audit→reviewer, debug/error/bug→debugger, architecture→architect, test/coverage→tester, refactor/cleanup→refactor, docs/docstring/readme→docs, search/research/web→researcher, else→coder.`

// routeDecision is the router model's verdict.
type routeDecision struct {
	Agent         string `json:"agent"`
	NeedsReview   bool   `json:"needs_review"`
	NeedsPlanning bool   `json:"needs_planning"`
}

// getRouterPrompt returns the cached prompt, rebuilding it when the agent
// registry changed since it was built.
func (g *Graph) getRouterPrompt() string {
	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	version := g.agents.Version()
	if g.promptBuilt && g.promptVersion == version {
		return g.routerPrompt
	}
	lines := make([]string, 0, g.agents.Len())
	for _, a := range g.agents.List() {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Name(), a.Description()))
	}
	g.routerPrompt = fmt.Sprintf(routerPromptTemplate, strings.Join(lines, "\n"))
	g.promptVersion = version
	g.promptBuilt = true
	return g.routerPrompt
}

func (g *Graph) route(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	if s.SelectedAgent != "" {
		return s, NodePlanGate
	}

	ec.Status("Routing")
	if g.agents.Len() <= 1 {
		s.SelectedAgent = g.opts.DefaultAgent
		s.NeedsReview = false
		return s, NodePlanGate
	}

	resp, err := g.llm.Complete(ctx, providers.Request{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: g.getRouterPrompt()},
			{Role: providers.RoleUser, Content: s.Message},
		},
		Role:        "routing",
		Temperature: providers.Float(0),
		MaxTokens:   100,
	})
	if err != nil {
		logger.WarnCF("workflow", "Routing failed, using default agent", map[string]any{
			"agent": g.opts.DefaultAgent,
			"error": err.Error(),
		})
		s.SelectedAgent = g.opts.DefaultAgent
		return s, NodePlanGate
	}

	d := g.parseRoute(resp.Content)
	s.SelectedAgent = d.Agent
	s.NeedsReview = d.NeedsReview && g.opts.AutoReview
	s.NeedsPlanning = d.NeedsPlanning

	logger.InfoCF("workflow", "Routed request", map[string]any{
		"agent":          s.SelectedAgent,
		"needs_review":   s.NeedsReview,
		"needs_planning": s.NeedsPlanning,
	})
	return s, NodePlanGate
}

// parseRoute reads the router's JSON verdict. Unparseable output falls back
// to the first known agent name mentioned in it; unknown agents become the
// default.
func (g *Graph) parseRoute(raw string) routeDecision {
	raw = strings.TrimSpace(raw)
	d := routeDecision{Agent: g.opts.DefaultAgent}

	if obj, ok := extractJSON(raw, '{', '}'); ok && json.Unmarshal([]byte(obj), &d) == nil {
		if d.Agent == "" {
			d.Agent = g.opts.DefaultAgent
		}
	} else {
		d = routeDecision{Agent: g.opts.DefaultAgent}
		if name := g.scanAgentName(raw); name != "" {
			d.Agent = name
		}
	}

	if g.agents.Get(d.Agent) == nil {
		d.Agent = g.opts.DefaultAgent
	}
	return d
}

func (g *Graph) scanAgentName(raw string) string {
	cleaned := strings.NewReplacer(`"`, "", "'", "").Replace(strings.ToLower(raw))
	for _, word := range strings.Fields(cleaned) {
		word = strings.Trim(word, ".,;:!?(){}[]")
		if g.agents.Get(word) != nil {
			return word
		}
	}
	return ""
}

// extractJSON strips a markdown fence and returns the text between the
// first open and the last close delimiter.
func extractJSON(raw string, first, last byte) (string, bool) {
	s := raw
	if parts := strings.Split(s, "```"); len(parts) > 1 {
		s = strings.TrimLeft(parts[1], "json\n")
	}
	start := strings.IndexByte(s, first)
	end := strings.LastIndexByte(s, last)
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
