package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/memory"
	"github.com/lidco/lidco/pkg/providers"
)

const (
	noIssuesSentinel   = "NO_ISSUES_FOUND"
	plannerSummaryMax  = 15
	reviewSummaryMax   = 20
	reviewContentMax   = 2000
	historyContentMax  = 200
	extractTaskMax     = 500
	extractResponseMax = 1000
	extractMaxEntries  = 2
)

var (
	explorationTools = []string{"file_read", "grep", "glob"}
	writeTools       = []string{"file_write", "file_edit"}
)

func (g *Graph) preAnalyze(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	if g.clarifier == nil || !ec.CanClarify() {
		return s, NodeRoute
	}

	ec.Status("Analyzing request")
	questions := g.clarifier.AnalyzeAmbiguity(ctx, s.Message, g.llm)
	if len(questions) == 0 {
		return s, NodeRoute
	}

	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		answer, err := ec.Clarify(ctx, q.Question, q.Options, q.Context)
		if err != nil {
			logger.WarnCF("workflow", "Clarification failed", map[string]any{
				"question": q.Question,
				"error":    err.Error(),
			})
			continue
		}
		g.clarifier.SaveDecision(ctx, q.Question, answer, q.Context, "pre_analyze")
		answers = append(answers, fmt.Sprintf("- %s: %s", q.Question, answer))
	}
	if len(answers) == 0 {
		return s, NodeRoute
	}
	return s.prependContext("## User Clarifications\n" + strings.Join(answers, "\n")), NodeRoute
}

func (g *Graph) planGate(_ context.Context, s State, _ agent.ExecContext) (State, NodeID) {
	if g.opts.AutoPlan &&
		s.NeedsPlanning &&
		s.SelectedAgent == g.opts.DefaultAgent &&
		g.agents.Get(plannerAgent) != nil {
		return s, NodeExecutePlanner
	}
	return s, NodeExecuteAgent
}

func (g *Graph) executePlanner(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	ec.Status("Planning")
	planner := g.agents.Get(plannerAgent)
	if planner == nil {
		logger.WarnC("workflow", "Planner agent not found, skipping planning")
		s.Plan, s.PlanApproved = nil, true
		return s, NodeApprovePlan
	}

	plan := runAgent(ctx, planner, s.Message, s.Context, ec)
	if plan.Err != nil {
		logger.ErrorCF("workflow", "Planner failed", map[string]any{"error": plan.Err.Error()})
		s.Plan, s.PlanApproved = nil, true
		return s, NodeApprovePlan
	}
	s.Plan = plan
	return s, NodeApprovePlan
}

func (g *Graph) approvePlan(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	if s.Plan == nil || !ec.CanClarify() {
		s.PlanApproved = true
		return s, NodeExecuteAgent
	}

	answer, err := ec.Clarify(ctx, "Approve this plan?", []string{"Approve", "Reject", "Edit"}, s.Plan.Content)
	if err != nil {
		logger.ErrorCF("workflow", "Plan approval failed", map[string]any{"error": err.Error()})
		s.PlanApproved = true
		return s, NodeExecuteAgent
	}

	answer = strings.TrimSpace(answer)
	switch strings.ToLower(answer) {
	case "approve", "y", "yes", "":
		s.PlanApproved = true
		return s.prependContext("## Implementation Plan (approved)\n" + s.Plan.Content), NodeExecuteAgent
	case "reject", "n", "no":
		s.PlanApproved = false
		s.Response = s.Plan
		logger.InfoC("workflow", "Plan rejected by user")
		return s, NodeFinalize
	default:
		s.PlanApproved = true
		edited := "## Implementation Plan (edited by user)\n" + s.Plan.Content + "\n\n## User Edits\n" + answer
		return s.prependContext(edited), NodeExecuteAgent
	}
}

func (g *Graph) executeAgent(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	name := s.SelectedAgent
	fixing := s.ReviewIteration > 0 && s.Review != nil
	if s.ReviewIteration > 0 {
		ec.Status(fmt.Sprintf("Agent: %s (fixing review issues)", name))
	} else {
		ec.Status("Agent: " + name)
	}

	a := g.agents.Get(name)
	if a == nil {
		msg := fmt.Sprintf("Agent '%s' not found.", name)
		s.Response = &agent.AgentResponse{Content: msg}
		s.Err = fmt.Errorf("agent %q not found", name)
		return s, NodeFinalize
	}

	runCtx := s.Context
	if len(s.History) > 0 {
		recent := s.History[max(0, len(s.History)-historyTurns):]
		lines := make([]string, len(recent))
		for i, h := range recent {
			lines[i] = h.Role + ": " + truncateRunes(h.Content, historyContentMax)
		}
		runCtx = joinSections("## Conversation History\n"+strings.Join(lines, "\n"), runCtx)
	}

	if g.retriever != nil {
		rag, err := g.retriever.Retrieve(ctx, s.Message, ragResults)
		if err != nil {
			logger.DebugCF("workflow", "Retrieval failed", map[string]any{"error": err.Error()})
		} else if rag != "" {
			runCtx = joinSections(rag, runCtx)
		}
	}

	if s.Plan != nil {
		var lines []string
		for _, tc := range s.Plan.ToolCalls {
			if !isOneOf(tc.Tool, explorationTools) {
				continue
			}
			lines = append(lines, "- "+formatCall(tc))
			if len(lines) == plannerSummaryMax {
				break
			}
		}
		if len(lines) > 0 {
			runCtx = joinSections("## Planner Exploration Results\n"+strings.Join(lines, "\n"), runCtx)
		}
	}

	message := s.Message
	if fixing {
		fix := "## Review Feedback (fix these issues)\n" + s.Review.Content +
			"\n\nFix the CRITICAL and HIGH issues identified above."
		runCtx = joinSections(fix, runCtx)
		message = s.Message + "\n\n[REVIEW FEEDBACK - fix these issues]\n" + s.Review.Content
	}

	logger.InfoCF("workflow", "Executing agent", map[string]any{
		"agent":       name,
		"review_iter": s.ReviewIteration,
	})
	resp := runAgent(ctx, a, message, runCtx, ec)
	s.Response = resp
	s.Err = resp.Err

	if g.opts.AutoReview && s.NeedsReview && len(resp.ToolCalls) > 0 {
		return s, NodeAutoReview
	}
	return s, NodeFinalize
}

func (g *Graph) autoReview(ctx context.Context, s State, ec agent.ExecContext) (State, NodeID) {
	s.ReviewIteration++
	ec.Status(fmt.Sprintf("Reviewing (pass %d)", s.ReviewIteration))
	// The previous pass's review was consumed by the fix pass.
	s.Review = nil

	reviewer := g.agents.Get(reviewerAgent)
	if reviewer != nil && s.Response != nil {
		n := min(len(s.Response.ToolCalls), reviewSummaryMax)
		calls := make([]string, n)
		for i, tc := range s.Response.ToolCalls[:n] {
			calls[i] = "- " + formatCall(tc)
		}
		prompt := fmt.Sprintf("Review the following changes made by the %s agent:\n\n"+
			"Original request: %s\n\n"+
			"Tool calls made:\n%s\n\n"+
			"Agent response:\n%s\n\n"+
			"Provide a brief review focusing on CRITICAL and HIGH issues only.\n"+
			"If there are no CRITICAL or HIGH issues, start your response with: %s",
			s.SelectedAgent, s.Message, strings.Join(calls, "\n"),
			truncateRunes(s.Response.Content, reviewContentMax), noIssuesSentinel)

		// The reviewer narrates nothing and never asks the user.
		rec := ec.WithStream(nil).WithClarify(nil).WithContinue(nil).WithToolEvents(nil)
		review := runAgent(ctx, reviewer, prompt, "", rec)
		if review.Err != nil {
			logger.WarnCF("workflow", "Auto-review failed", map[string]any{
				"error": review.Err.Error(),
				"pass":  s.ReviewIteration,
			})
		} else {
			s.Review = review
		}
	}

	if g.shouldFix(s) {
		return s, NodeExecuteAgent
	}
	return s, NodeFinalize
}

// shouldFix decides whether the review sends the work back for another
// pass.
func (g *Graph) shouldFix(s State) bool {
	if s.Review == nil || s.ReviewIteration >= g.opts.MaxReviewIterations {
		return false
	}
	content := strings.TrimSpace(s.Review.Content)
	if strings.HasPrefix(content, noIssuesSentinel) {
		return false
	}
	upper := strings.ToUpper(content)
	return strings.Contains(upper, "CRITICAL") || strings.Contains(upper, "HIGH")
}

func (g *Graph) finalize(ctx context.Context, s State, _ agent.ExecContext) (State, NodeID) {
	if s.Response == nil {
		return s, NodeEnd
	}
	if g.memory != nil {
		g.extractMemory(ctx, s)
	}
	if g.retriever != nil {
		g.updateIndex(ctx, s.Response)
	}
	return s, NodeEnd
}

type learning struct {
	Key      string `json:"key"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// extractMemory asks the model for up to two reusable learnings from a run
// that modified files. Failures are logged and ignored.
func (g *Graph) extractMemory(ctx context.Context, s State) {
	resp := s.Response
	if !resp.HasToolCall(writeTools...) {
		return
	}

	prompt := "Analyze the following task and response. Extract 0-2 reusable learnings " +
		"worth remembering for future tasks. Only extract genuinely useful patterns, " +
		"decisions, or solutions - not task-specific details.\n\n" +
		"Return JSON array (empty if nothing worth saving):\n" +
		`[{"key": "short-id", "content": "what was learned", "category": "pattern|decision|solution"}]` + "\n\n" +
		"Task: " + truncateRunes(s.Message, extractTaskMax) + "\n" +
		"Agent: " + s.SelectedAgent + "\n" +
		"Response summary: " + truncateRunes(resp.Content, extractResponseMax)

	out, err := g.llm.Complete(ctx, providers.Request{
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		Role:        "memory_extraction",
		Temperature: providers.Float(0),
		MaxTokens:   150,
	})
	if err != nil {
		logger.DebugCF("workflow", "Memory extraction failed", map[string]any{"error": err.Error()})
		return
	}

	raw, ok := extractJSON(strings.TrimSpace(out.Content), '[', ']')
	if !ok {
		return
	}
	var entries []learning
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.DebugCF("workflow", "Memory extraction returned invalid JSON", map[string]any{"error": err.Error()})
		return
	}

	for _, e := range entries[:min(len(entries), extractMaxEntries)] {
		if e.Key == "" || e.Content == "" {
			continue
		}
		category := e.Category
		if category == "" {
			category = memory.CategoryGeneral
		}
		_, err := g.memory.Add(ctx, memory.Entry{
			Key:      e.Key,
			Content:  e.Content,
			Category: category,
			Tags:     []string{"auto-extracted"},
			Source:   "agent:" + s.SelectedAgent,
		})
		if err != nil {
			logger.WarnCF("workflow", "Saving learning failed", map[string]any{"key": e.Key, "error": err.Error()})
			continue
		}
		logger.InfoCF("workflow", "Auto-extracted memory", map[string]any{"key": e.Key})
	}
}

// updateIndex re-indexes every file the run wrote or edited.
func (g *Graph) updateIndex(ctx context.Context, resp *agent.AgentResponse) {
	seen := make(map[string]bool)
	for _, tc := range resp.ToolCalls {
		if !isOneOf(tc.Tool, writeTools) {
			continue
		}
		path, _ := tc.Args["path"].(string)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		if _, err := g.retriever.UpdateFile(ctx, path); err != nil {
			logger.DebugCF("workflow", "Index update failed", map[string]any{"path": path, "error": err.Error()})
			continue
		}
		logger.DebugCF("workflow", "Index updated", map[string]any{"path": path})
	}
}

// runAgent converts a panic inside an agent run into an error response so
// a misbehaving agent never takes the graph down.
func runAgent(ctx context.Context, a *agent.Agent, msg, contextText string, ec agent.ExecContext) (resp *agent.AgentResponse) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("agent %s panicked: %v", a.Name(), r)
			logger.ErrorCF("workflow", "Agent failed", map[string]any{"agent": a.Name(), "error": err.Error()})
			resp = &agent.AgentResponse{Content: fmt.Sprintf("Agent error: %v", err), Err: err}
		}
	}()
	return a.Run(ctx, msg, contextText, ec)
}

// formatCall renders a call as tool(k=v, ...) with keys sorted.
func formatCall(tc agent.ToolCallRecord) string {
	keys := make([]string, 0, len(tc.Args))
	for k := range tc.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, tc.Args[k])
	}
	return tc.Tool + "(" + strings.Join(parts, ", ") + ")"
}

func joinSections(section, rest string) string {
	if rest == "" {
		return section
	}
	return section + "\n\n" + rest
}

func isOneOf(name string, set []string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
