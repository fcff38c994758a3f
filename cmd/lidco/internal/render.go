package internal

import (
	"strings"

	"github.com/lidco/lidco/pkg/agent"
)

const reviewSeparator = "\n\n---\n**Auto-Review:**\n"

// RenderResponse returns what is left to print for resp. When the answer
// was streamed only the appended review remains.
func RenderResponse(resp *agent.AgentResponse, streamed bool) string {
	if resp == nil {
		return ""
	}
	if !streamed || resp.Err != nil {
		return resp.Content
	}
	if i := strings.Index(resp.Content, reviewSeparator); i >= 0 {
		return strings.TrimPrefix(resp.Content[i:], "\n\n")
	}
	return ""
}

// ParseAgentPrefix splits "@name message" into the agent name and the
// message. Input without the prefix is returned unchanged.
func ParseAgentPrefix(input string) (string, string) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "@") {
		return "", input
	}
	name, msg, _ := strings.Cut(input[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(msg)
}
