package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/memory"
	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/tools"
)

const (
	decisionKeySpace   = 100_000
	ambiguityMinLength = 40
	maxQuestions       = 3
	recentDecisions    = 5
)

const ambiguityPrompt = `Analyze user request for ambiguity. Return JSON:
Clear: {"clear": true}
Ambiguous: {"clear": false, "questions": [{"question": "...", "options": [...], "context": "why"}]}

Max 3 questions. Only genuinely ambiguous requests. Concrete options.

User message:
`

// Decision is a clarification the user answered, kept for later sessions.
type Decision struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context"`
	Agent    string `json:"agent"`

	CreatedAt time.Time `json:"-"`
}

// ClarificationManager records user decisions in memory and screens new
// requests for ambiguity before they are routed.
type ClarificationManager struct {
	store memory.Store
}

func NewClarificationManager(store memory.Store) *ClarificationManager {
	return &ClarificationManager{store: store}
}

func decisionKey(question string) string {
	h := fnv.New32a()
	h.Write([]byte(question))
	return fmt.Sprintf("decision_%d", h.Sum32()%decisionKeySpace)
}

// SaveDecision stores a question and its answer. Blank questions or answers
// are ignored. The same question always maps to the same key, so a newer
// answer replaces the older one.
func (m *ClarificationManager) SaveDecision(ctx context.Context, question, answer, detail, agentName string) {
	if question == "" || answer == "" {
		return
	}
	content, err := json.Marshal(Decision{Question: question, Answer: answer, Context: detail, Agent: agentName})
	if err != nil {
		return
	}
	tags := []string{"clarification"}
	if agentName != "" {
		tags = append(tags, agentName)
	}
	_, err = m.store.Add(ctx, memory.Entry{
		Key:      decisionKey(question),
		Content:  string(content),
		Category: memory.CategoryDecision,
		Tags:     tags,
		Source:   "clarification",
	})
	if err != nil {
		logger.WarnCF("workflow", "Saving decision failed", map[string]any{"error": err.Error()})
	}
}

func parseDecision(e memory.Entry) (Decision, bool) {
	var d Decision
	if err := json.Unmarshal([]byte(e.Content), &d); err != nil || d.Question == "" || d.Answer == "" {
		return Decision{}, false
	}
	d.CreatedAt = e.CreatedAt
	return d, true
}

func parseDecisions(entries []memory.Entry) []Decision {
	var out []Decision
	for _, e := range entries {
		if d, ok := parseDecision(e); ok {
			out = append(out, d)
		}
	}
	return out
}

// FindRelevant searches past decisions by substring.
func (m *ClarificationManager) FindRelevant(ctx context.Context, query string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = recentDecisions
	}
	entries, err := m.store.Search(ctx, query, memory.SearchOptions{Category: memory.CategoryDecision, Limit: limit})
	if err != nil {
		return nil, err
	}
	return parseDecisions(entries), nil
}

// ListRecent returns up to n of the newest decisions, oldest first.
func (m *ClarificationManager) ListRecent(ctx context.Context, n int) ([]Decision, error) {
	entries, err := m.store.List(ctx, memory.CategoryDecision)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return parseDecisions(entries), nil
}

// BuildContextString renders the latest decisions for a system prompt, or
// "" when there are none.
func (m *ClarificationManager) BuildContextString(ctx context.Context) string {
	decisions, err := m.ListRecent(ctx, recentDecisions)
	if err != nil || len(decisions) == 0 {
		return ""
	}
	lines := []string{"## Past Decisions"}
	for _, d := range decisions {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", d.Question, d.Answer))
	}
	return strings.Join(lines, "\n")
}

// Clear removes every stored decision and returns how many were removed.
func (m *ClarificationManager) Clear(ctx context.Context) (int, error) {
	entries, err := m.store.List(ctx, memory.CategoryDecision)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		ok, err := m.store.Remove(ctx, e.Key)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

type ambiguityVerdict struct {
	Clear     *bool `json:"clear"`
	Questions []struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Context  string   `json:"context"`
	} `json:"questions"`
}

// AnalyzeAmbiguity asks the model whether msg needs clarifying questions.
// Short messages without a question mark are taken as clear. Any failure
// is treated as clear.
func (m *ClarificationManager) AnalyzeAmbiguity(ctx context.Context, msg string, llm agent.LLM) []tools.ClarificationRequest {
	trimmed := strings.TrimSpace(msg)
	if len([]rune(trimmed)) < ambiguityMinLength && !strings.Contains(trimmed, "?") {
		return nil
	}

	resp, err := llm.Complete(ctx, providers.Request{
		Messages:    []providers.Message{{Role: providers.RoleSystem, Content: ambiguityPrompt + msg}},
		Role:        "routing",
		Temperature: providers.Float(0),
		MaxTokens:   200,
	})
	if err != nil {
		logger.WarnCF("workflow", "Ambiguity analysis failed, assuming clear", map[string]any{"error": err.Error()})
		return nil
	}

	raw, ok := extractJSON(strings.TrimSpace(resp.Content), '{', '}')
	if !ok {
		return nil
	}
	var v ambiguityVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logger.WarnCF("workflow", "Ambiguity analysis parse failed, assuming clear", map[string]any{"error": err.Error()})
		return nil
	}
	if v.Clear == nil || *v.Clear {
		return nil
	}

	var out []tools.ClarificationRequest
	for _, q := range v.Questions {
		if q.Question == "" {
			continue
		}
		out = append(out, tools.ClarificationRequest{Question: q.Question, Options: q.Options, Context: q.Context})
		if len(out) == maxQuestions {
			break
		}
	}
	return out
}
