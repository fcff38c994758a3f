package workflow

import (
	"github.com/lidco/lidco/pkg/agent"
)

// NodeID names a step of the graph.
type NodeID int

const (
	NodePreAnalyze NodeID = iota
	NodeRoute
	NodePlanGate
	NodeExecutePlanner
	NodeApprovePlan
	NodeExecuteAgent
	NodeAutoReview
	NodeFinalize
	NodeEnd
)

var nodeNames = [...]string{
	NodePreAnalyze:     "pre_analyze",
	NodeRoute:          "route",
	NodePlanGate:       "plan_gate",
	NodeExecutePlanner: "execute_planner",
	NodeApprovePlan:    "approve_plan",
	NodeExecuteAgent:   "execute_agent",
	NodeAutoReview:     "auto_review",
	NodeFinalize:       "finalize",
	NodeEnd:            "end",
}

func (n NodeID) String() string {
	if n >= 0 && int(n) < len(nodeNames) {
		return nodeNames[n]
	}
	return "unknown"
}

// HistoryEntry is one side of a finished exchange.
type HistoryEntry struct {
	Role    string
	Content string
}

// State is threaded through the nodes by value. Responses it points to are
// never modified once produced.
type State struct {
	Message       string
	Context       string
	SelectedAgent string
	History       []HistoryEntry

	NeedsReview   bool
	NeedsPlanning bool

	Plan         *agent.AgentResponse
	PlanApproved bool

	Response        *agent.AgentResponse
	Review          *agent.AgentResponse
	ReviewIteration int

	Err error
}

// prependContext puts section ahead of the existing context.
func (s State) prependContext(section string) State {
	s.Context = joinSections(section, s.Context)
	return s
}
