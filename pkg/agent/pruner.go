package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lidco/lidco/pkg/providers"
)

const (
	// DefaultKeepRecentExchanges is how many trailing assistant turns (with
	// their tool results) survive pruning verbatim.
	DefaultKeepRecentExchanges = 3

	trimmedAssistantChars = 200
	summaryHintChars      = 80
)

// PruneConversation returns a copy of msgs that aims to fit in maxChars.
// The system message and the last keepRecent exchanges are kept verbatim;
// older tool results collapse to a one-line summary and older assistant
// text is cut to its first 200 characters. A message is only replaced when
// the replacement is shorter. msgs is never modified.
func PruneConversation(msgs []providers.Message, maxChars, keepRecent int) []providers.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]providers.Message, len(msgs))
	copy(out, msgs)

	if conversationChars(msgs) <= maxChars {
		return out
	}
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecentExchanges
	}

	boundary := keepBoundary(msgs, keepRecent)
	for i := 1; i < boundary; i++ {
		var shorter providers.Message
		switch out[i].Role {
		case providers.RoleTool:
			shorter = summarizeToolMessage(out[i])
		case providers.RoleAssistant:
			shorter = trimAssistantMessage(out[i])
		default:
			continue
		}
		if len(shorter.Content) < len(out[i].Content) {
			out[i] = shorter
		}
	}
	return out
}

func conversationChars(msgs []providers.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}

// keepBoundary walks back counting assistant messages and returns the index
// of the keepRecent-th one from the end. With fewer exchanges everything
// after the system message is kept.
func keepBoundary(msgs []providers.Message, keepRecent int) int {
	count := 0
	for i := len(msgs) - 1; i > 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			count++
			if count >= keepRecent {
				return i
			}
		}
	}
	return 1
}

func summarizeToolMessage(m providers.Message) providers.Message {
	name := m.Name
	if name == "" {
		name = "tool"
	}
	lines := strings.Count(m.Content, "\n") + 1
	first, _, _ := strings.Cut(m.Content, "\n")
	first = cutAt(first, summaryHintChars)
	m.Content = fmt.Sprintf("[%s: %d lines | %s...]", name, lines, first)
	return m
}

func trimAssistantMessage(m providers.Message) providers.Message {
	if len(m.Content) <= trimmedAssistantChars {
		return m
	}
	m.Content = cutAt(m.Content, trimmedAssistantChars) + "... (trimmed)"
	return m
}

// cutAt shortens s to at most n bytes without splitting a UTF-8 sequence.
func cutAt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
