package mcp

import (
	"fmt"
	"hash/fnv"
	"strings"
)

const qualifiedNameMaxLen = 64

// QualifiedToolName builds the provider-safe name a remote tool is
// registered under: mcp_<server>_<tool>. Names longer than 64 characters
// are cut and suffixed with a short hash so distinct tools stay distinct.
func QualifiedToolName(serverName, toolName string) string {
	name := "mcp_" + sanitizeName(serverName) + "_" + sanitizeName(toolName)
	if len(name) <= qualifiedNameMaxLen {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(serverName + "/" + toolName))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return strings.TrimRight(name[:qualifiedNameMaxLen-len(suffix)], "_") + suffix
}

func sanitizeName(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	var b strings.Builder
	b.Grow(len(trimmed))

	lastUnderscore := false
	for i := 0; i < len(trimmed); i++ {
		ch := trimmed[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			b.WriteByte(ch)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
