package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lidco/lidco/pkg/logger"
	"github.com/lidco/lidco/pkg/providers"
)

// charsPerToken is the rough English/code average used for every estimate.
const charsPerToken = 4

// EstimateTokens approximates the token count of text. Non-empty text is
// always at least one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, len(text)/charsPerToken)
}

// EstimateMessageTokens adds a fixed per-message overhead plus tool call
// JSON and the name field.
func EstimateMessageTokens(msg providers.Message) int {
	tokens := 4
	tokens += EstimateTokens(msg.Content)
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			tokens += EstimateTokens(string(data))
		}
	}
	if msg.Name != "" {
		tokens += EstimateTokens(msg.Name)
	}
	return tokens
}

func EstimateConversationTokens(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}

// TokenBudget tracks session-wide usage against an optional limit.
type TokenBudget struct {
	mu sync.Mutex

	limit            int // 0 = unlimited
	warningThreshold float64
	onWarning        func(string)

	total      int
	totalCost  float64
	byRole     map[string]int
	costByRole map[string]float64
}

func NewTokenBudget(limit int) *TokenBudget {
	return &TokenBudget{
		limit:            limit,
		warningThreshold: 0.8,
		byRole:           make(map[string]int),
		costByRole:       make(map[string]float64),
	}
}

// SetWarningCallback is invoked with a message each time a record lands at
// or above the warning threshold.
func (b *TokenBudget) SetWarningCallback(fn func(string)) {
	b.mu.Lock()
	b.onWarning = fn
	b.mu.Unlock()
}

func (b *TokenBudget) Record(tokens int, role string, costUSD float64) {
	if role == "" {
		role = "default"
	}
	b.mu.Lock()
	b.total += tokens
	b.byRole[role] += tokens
	b.totalCost += costUSD
	if costUSD > 0 {
		b.costByRole[role] += costUSD
	}
	var warning string
	if b.limit > 0 {
		ratio := float64(b.total) / float64(b.limit)
		switch {
		case ratio >= 1.0:
			warning = fmt.Sprintf("Token budget exhausted: %d/%d (%.0f%%)", b.total, b.limit, ratio*100)
		case ratio >= b.warningThreshold:
			warning = fmt.Sprintf("Token budget at %.0f%%: %d/%d", ratio*100, b.total, b.limit)
		}
	}
	cb := b.onWarning
	b.mu.Unlock()

	if warning != "" {
		logger.WarnCF("budget", warning, map[string]any{"role": role})
		if cb != nil {
			cb(warning)
		}
	}
}

func (b *TokenBudget) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *TokenBudget) TotalCostUSD() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalCost
}

// ByRole returns a copy of the per-role token totals.
func (b *TokenBudget) ByRole() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.byRole))
	for k, v := range b.byRole {
		out[k] = v
	}
	return out
}

// Remaining returns the tokens left and false when the budget is unlimited.
func (b *TokenBudget) Remaining() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 {
		return 0, false
	}
	return max(0, b.limit-b.total), true
}

func (b *TokenBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.total >= b.limit
}

func (b *TokenBudget) Summary() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := fmt.Sprintf("Total: %d tokens", b.total)
	if b.totalCost > 0 {
		total += fmt.Sprintf(" ($%.4f)", b.totalCost)
	}
	parts := []string{total}
	if b.limit > 0 {
		parts = append(parts, fmt.Sprintf("Limit: %d (remaining: %d)", b.limit, max(0, b.limit-b.total)))
	}
	if len(b.byRole) > 0 {
		roles := make([]string, 0, len(b.byRole))
		for r := range b.byRole {
			roles = append(roles, r)
		}
		sort.Strings(roles)
		breakdown := make([]string, 0, len(roles))
		for _, r := range roles {
			breakdown = append(breakdown, fmt.Sprintf("%s: %d", r, b.byRole[r]))
		}
		parts = append(parts, "By role: "+strings.Join(breakdown, ", "))
	}
	return strings.Join(parts, " | ")
}

func (b *TokenBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = 0
	b.totalCost = 0
	b.byRole = make(map[string]int)
	b.costByRole = make(map[string]float64)
}
