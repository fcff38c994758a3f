package tools

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const DefaultMaxResultChars = 12000

// TruncateToolResult shortens a tool's output before it enters the
// conversation. Outputs within maxChars are returned unchanged. Line-based
// tools keep their head and tail, search tools keep their first matches and
// everything else is cut at maxChars.
func TruncateToolResult(tool, output string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxResultChars
	}
	if utf8.RuneCountInString(output) <= maxChars {
		return output
	}

	switch tool {
	case "file_read":
		return keepHeadTail(output, 80, 20)
	case "grep", "glob":
		return keepFirstLines(output, 30)
	case "bash", "git":
		return keepHeadTail(output, 100, 20)
	}

	runes := []rune(output)
	return string(runes[:maxChars]) +
		fmt.Sprintf("\n\n... (truncated, %d chars omitted) ...", len(runes)-maxChars)
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func keepHeadTail(output string, head, tail int) string {
	lines := splitLines(output)
	total := len(lines)
	if total <= head+tail {
		return output
	}
	omitted := total - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n\n... (%d lines omitted) ...\n\n", omitted) +
		strings.Join(lines[total-tail:], "\n")
}

func keepFirstLines(output string, limit int) string {
	lines := splitLines(output)
	if len(lines) <= limit {
		return output
	}
	return strings.Join(lines[:limit], "\n") +
		fmt.Sprintf("\n\n... (%d more matches) ...", len(lines)-limit)
}
