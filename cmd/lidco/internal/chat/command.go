package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/lidco/lidco/cmd/lidco/internal"
	"github.com/lidco/lidco/pkg/logger"
)

const helpText = `Commands:
  @<agent> <message>  send the message to one agent, skipping routing
  /agents             list agents
  /budget             show token usage for this session
  /clear              forget the conversation history
  /help               show this help
  /exit               quit`

func NewChatCommand() *cobra.Command {
	var noStream bool

	cmd := &cobra.Command{
		Use:     "chat",
		Aliases: []string{"c"},
		Short:   "Start an interactive session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return chatCmd(cmd.Context(), !noStream)
		},
	}

	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Print answers only when complete")
	return cmd
}

func chatCmd(ctx context.Context, stream bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, project, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	term := internal.NewTerminal()
	defer term.Close()

	rt, err := internal.NewRuntime(ctx, cfg, project, term.Permission)
	if err != nil {
		return err
	}
	defer rt.Close()

	s := &session{rt: rt, term: term, stream: stream && rt.Streaming()}
	term.Println(fmt.Sprintf("%s LIDCO %s  (%s)", internal.Logo, internal.FormatVersion(), project))
	term.Println("Type /help for commands.")

	for {
		line, err := term.ReadLine("You: ")
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				term.Println("Goodbye!")
				return nil
			}
			term.Warn(fmt.Sprintf("Error reading input: %v", err))
			continue
		}
		if s.handleLine(ctx, line) {
			term.Println("Goodbye!")
			return nil
		}
	}
}

type session struct {
	rt     *internal.Runtime
	term   *internal.Terminal
	stream bool
}

// handleLine processes one line of input and reports whether to exit.
func (s *session) handleLine(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return false
	case "/exit", "/quit", "exit", "quit":
		return true
	case "/help":
		s.term.Println(helpText)
		return false
	case "/clear":
		s.rt.Graph.ClearHistory()
		s.term.Println("History cleared.")
		return false
	case "/budget":
		s.term.Println(s.rt.Budget.Summary())
		return false
	case "/agents":
		for _, a := range s.rt.Agents.List() {
			s.term.Println(fmt.Sprintf("  %-12s %s", a.Name(), a.Description()))
		}
		return false
	}
	if strings.HasPrefix(input, "/") {
		s.term.Warn("Unknown command " + input + ", try /help")
		return false
	}

	agentName, msg := internal.ParseAgentPrefix(input)
	if agentName != "" && s.rt.Agents.Get(agentName) == nil {
		s.term.Warn(fmt.Sprintf("Unknown agent %q. Available: %s", agentName, strings.Join(s.rt.Agents.Names(), ", ")))
		return false
	}
	if msg == "" {
		return false
	}

	// Ctrl-C cancels the running request, not the session.
	reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	resp := s.rt.Handle(reqCtx, msg, agentName, s.rt.ExecContext(s.term, s.stream))
	streamed := s.term.EndStream()
	if out := internal.RenderResponse(resp, streamed); out != "" {
		s.term.Println("\n" + out + "\n")
	}
	if resp.Err != nil {
		logger.DebugCF("cli", "Request failed", map[string]any{"error": resp.Err.Error()})
	}
	if s.rt.Budget.Exhausted() {
		s.term.Warn(s.rt.Budget.Summary())
	}
	return false
}
