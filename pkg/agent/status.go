package agent

import (
	"fmt"
	"strings"
)

const streamingNarrationPrompt = `

## Streaming Style
Narrate concisely (1-2 sentences) before each tool call and after each result. Never call tools silently. Think out loud like a pairing colleague.
`

const clarificationHint = `

## Clarification
When the request is ambiguous or multiple valid approaches exist, use ask_user. Do NOT use for trivial decisions.
`

// systemPrompt assembles the system message for one run.
func (a *Agent) systemPrompt(contextText string, streaming bool) string {
	var b strings.Builder
	b.WriteString(a.cfg.SystemPrompt)
	if streaming {
		b.WriteString(streamingNarrationPrompt)
	}
	if a.cfg.HasTool("ask_user") {
		b.WriteString(clarificationHint)
	}
	if contextText != "" {
		b.WriteString("\n\n## Current Context\n")
		b.WriteString(contextText)
	}
	return b.String()
}

// DescribeToolCall renders a short human-readable status for a call.
func DescribeToolCall(tool string, args map[string]any) string {
	str := func(key, def string) string {
		if v, ok := args[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
		return def
	}
	switch tool {
	case "file_write":
		return "Creating " + str("path", "file")
	case "file_edit":
		return "Editing " + str("path", "file")
	case "file_read":
		return "Reading " + str("path", "file")
	case "bash":
		return "Running: " + ellipsize(str("command", ""), 50)
	case "grep", "glob":
		return "Searching files"
	case "git":
		sub := "operation"
		if fields := strings.Fields(strings.TrimPrefix(str("command", ""), "git ")); len(fields) > 0 {
			sub = fields[0]
		}
		return "Git: " + sub
	case "ask_user":
		return "Asking user: " + ellipsize(str("question", ""), 60)
	default:
		return "Using " + tool
	}
}

func ellipsize(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutAt(s, n) + "..."
}
