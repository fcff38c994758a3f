package tools

import (
	"context"
	"strings"

	"github.com/lidco/lidco/pkg/config"
)

// AskUserTool never produces a result itself. It hands the question back to
// the dispatcher, which routes it to the clarification hook.
type AskUserTool struct{}

func NewAskUserTool() *AskUserTool { return &AskUserTool{} }

func (t *AskUserTool) Name() string        { return "ask_user" }
func (t *AskUserTool) Description() string { return "Ask user a clarifying question." }

func (t *AskUserTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "question", Type: "string", Description: "The question to ask the user.", Required: true},
		{
			Name:        "options",
			Type:        "string",
			Description: "Comma-separated options (e.g. 'JWT, Session, OAuth2'). Leave empty for free-text answers.",
			Default:     "",
		},
		{Name: "context", Type: "string", Description: "Brief context explaining why this question matters.", Default: ""},
	}
}

func (t *AskUserTool) Permission() config.PermissionLevel { return config.PermissionAuto }

func (t *AskUserTool) Execute(_ context.Context, args map[string]any) Outcome {
	question, _ := stringArg(args, "question")
	if strings.TrimSpace(question) == "" {
		return Done(Fail("Question is required."))
	}
	optionsRaw, _ := stringArg(args, "options")
	detail, _ := stringArg(args, "context")

	var options []string
	for _, opt := range strings.Split(optionsRaw, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	return NeedsClarification(ClarificationRequest{
		Question: question,
		Options:  options,
		Context:  detail,
	})
}
