package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/lidco/lidco/pkg/agent"
	"github.com/lidco/lidco/pkg/tools"
)

const toolSummaryMax = 120

// Terminal renders run progress and asks the user the questions hooks
// need. Prompts are serialized; observers may be called concurrently.
type Terminal struct {
	out io.Writer
	err io.Writer

	rl *readline.Instance
	in *bufio.Reader

	promptMu sync.Mutex

	mu        sync.Mutex
	statusOn  bool
	streaming bool

	statusColor *color.Color
	toolColor   *color.Color
	okColor     *color.Color
	failColor   *color.Color
	askColor    *color.Color
}

// NewTerminal opens an interactive terminal with history. When readline
// cannot start, it falls back to plain line reads from stdin.
func NewTerminal() *Terminal {
	t := newTerminal(os.Stdout, os.Stderr, nil)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".lidco_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\nFalling back to simple input mode...\n", err)
		t.in = bufio.NewReader(os.Stdin)
		return t
	}
	t.rl = rl
	return t
}

// NewPlainTerminal reads answers from in without line editing.
func NewPlainTerminal(in io.Reader, out, errOut io.Writer) *Terminal {
	return newTerminal(out, errOut, bufio.NewReader(in))
}

func newTerminal(out, errOut io.Writer, in *bufio.Reader) *Terminal {
	return &Terminal{
		out:         out,
		err:         errOut,
		in:          in,
		statusColor: color.New(color.FgCyan, color.Faint),
		toolColor:   color.New(color.FgYellow),
		okColor:     color.New(color.FgGreen),
		failColor:   color.New(color.FgRed),
		askColor:    color.New(color.FgMagenta, color.Bold),
	}
}

func (t *Terminal) Close() error {
	if t.rl != nil {
		return t.rl.Close()
	}
	return nil
}

// ReadLine shows prompt and returns the trimmed input. io.EOF and
// readline.ErrInterrupt are passed through.
func (t *Terminal) ReadLine(prompt string) (string, error) {
	if t.rl != nil {
		t.rl.SetPrompt(prompt)
		line, err := t.rl.Readline()
		return strings.TrimSpace(line), err
	}
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Println writes a line of normal output.
func (t *Terminal) Println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()
	fmt.Fprintln(t.out, a...)
}

// Warn writes a highlighted notice to stderr.
func (t *Terminal) Warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()
	t.failColor.Fprintln(t.err, "! "+msg)
}

// Status shows a transient one-line status on stderr.
func (t *Terminal) Status(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streaming {
		return
	}
	fmt.Fprint(t.err, "\r\033[K")
	t.statusColor.Fprintf(t.err, "%s %s", Logo, status)
	t.statusOn = true
}

func (t *Terminal) clearStatusLocked() {
	if t.statusOn {
		fmt.Fprint(t.err, "\r\033[K")
		t.statusOn = false
	}
}

// Stream writes streamed model text as it arrives.
func (t *Terminal) Stream(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()
	t.streaming = true
	fmt.Fprint(t.out, text)
}

// EndStream terminates a streamed answer and reports whether anything was
// streamed since the last call.
func (t *Terminal) EndStream() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()
	streamed := t.streaming
	if streamed {
		fmt.Fprintln(t.out)
	}
	t.streaming = false
	return streamed
}

// ToolEvent prints one line when a tool starts and one when it ends.
func (t *Terminal) ToolEvent(ev agent.ToolEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearStatusLocked()
	if t.streaming {
		fmt.Fprintln(t.out)
		t.streaming = false
	}

	switch ev.Phase {
	case agent.ToolEventStart:
		t.toolColor.Fprintf(t.err, "  → %s\n", agent.DescribeToolCall(ev.Tool, ev.Args))
	case agent.ToolEventEnd:
		if ev.Result == nil {
			return
		}
		summary := firstLine(ev.Result.Content(), toolSummaryMax)
		if ev.Result.Success {
			t.okColor.Fprintf(t.err, "  ✓ %s %s\n", ev.Tool, summary)
		} else {
			t.failColor.Fprintf(t.err, "  ✗ %s %s\n", ev.Tool, summary)
		}
	}
}

// ask prints question and reads one answer under the prompt lock.
func (t *Terminal) ask(question string) (string, error) {
	t.promptMu.Lock()
	defer t.promptMu.Unlock()

	t.mu.Lock()
	t.clearStatusLocked()
	if t.streaming {
		fmt.Fprintln(t.out)
		t.streaming = false
	}
	t.askColor.Fprintln(t.out, question)
	t.mu.Unlock()
	return t.ReadLine("? ")
}

// Permission is the tools.PromptFunc for the permission gate.
func (t *Terminal) Permission(_ context.Context, tool string, args map[string]any) tools.Decision {
	answer, err := t.ask(fmt.Sprintf("Allow %s?  [y]es / [n]o / [a]lways %s / [A]ll tools",
		agent.DescribeToolCall(tool, args), tool))
	if err != nil {
		return tools.Deny
	}
	return ParseDecision(answer)
}

// Continue asks whether to extend a run that hit its iteration cap.
func (t *Terminal) Continue(_ context.Context, iteration, limit int) bool {
	answer, err := t.ask(fmt.Sprintf("Agent reached %d iterations (limit %d). Continue? [y/N]", iteration, limit))
	if err != nil {
		return false
	}
	return isYes(answer)
}

// Clarify asks a clarification question with numbered options.
func (t *Terminal) Clarify(_ context.Context, question string, options []string, detail string) (string, error) {
	var b strings.Builder
	b.WriteString(question)
	if detail != "" {
		b.WriteString("\n")
		b.WriteString(detail)
	}
	for i, o := range options {
		fmt.Fprintf(&b, "\n  %d) %s", i+1, o)
	}
	answer, err := t.ask(b.String())
	if err != nil {
		return "", err
	}
	return ResolveOption(answer, options), nil
}

// ExecContext wires the terminal into a run. stream selects streaming
// output.
func (t *Terminal) ExecContext(gate *tools.PermissionGate, pool *agent.CallbackPool, stream bool) agent.ExecContext {
	ec := agent.ExecContext{}.
		WithStatus(t.Status).
		WithToolEvents(t.ToolEvent).
		WithContinue(t.Continue).
		WithClarify(t.Clarify).
		WithPool(pool)
	if gate != nil {
		ec = ec.WithPermission(gate.Check)
	}
	if stream {
		ec = ec.WithStream(t.Stream)
	}
	return ec
}

// ParseDecision maps a permission answer. "A" allows every tool for the
// session; "a" or "always" allows the asked tool.
func ParseDecision(answer string) tools.Decision {
	switch strings.TrimSpace(answer) {
	case "A", "all":
		return tools.AllowAllForSession
	case "a", "always":
		return tools.AllowToolForSession
	}
	if isYes(answer) {
		return tools.AllowOnce
	}
	return tools.Deny
}

// ResolveOption turns a 1-based option number into the option text.
// Anything else is returned as typed.
func ResolveOption(answer string, options []string) string {
	answer = strings.TrimSpace(answer)
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return answer
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func firstLine(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
