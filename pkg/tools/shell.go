package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/lidco/lidco/pkg/config"
	"github.com/lidco/lidco/pkg/logger"
)

const (
	defaultShellTimeout = 120 * time.Second
	gitTimeout          = 60 * time.Second
	maxShellOutput      = 15000
)

var defaultDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\s+/\*?(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\bdd\s+if=.*\bof=/dev/`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
}

var blockedGitOps = []string{"push --force", "reset --hard", "clean -f", "branch -D"}

type BashTool struct {
	workingDir   string
	timeout      time.Duration
	denyPatterns []*regexp.Regexp
}

// NewBashTool builds the shell tool. extraDeny adds regexes to the built-in
// deny list; invalid expressions are logged and skipped.
func NewBashTool(workingDir string, timeout time.Duration, extraDeny []string) *BashTool {
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	patterns := append([]*regexp.Regexp(nil), defaultDenyPatterns...)
	for _, p := range extraDeny {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.WarnCF("tool", "Invalid deny pattern", map[string]any{"pattern": p, "error": err.Error()})
			continue
		}
		patterns = append(patterns, re)
	}
	return &BashTool{workingDir: workingDir, timeout: timeout, denyPatterns: patterns}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Execute shell command and return output." }

func (t *BashTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "command", Type: "string", Description: "The shell command to execute.", Required: true},
		{Name: "timeout", Type: "integer", Description: "Timeout in seconds.", Default: 120},
		{Name: "cwd", Type: "string", Description: "Working directory for the command."},
	}
}

func (t *BashTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *BashTool) Execute(ctx context.Context, args map[string]any) Outcome {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return Done(Fail("command is required"))
	}
	for _, re := range t.denyPatterns {
		if re.MatchString(command) {
			return Done(Fail("Blocked dangerous command: %s", command))
		}
	}

	timeout := t.timeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	cwd, _ := stringArg(args, "cwd")
	if cwd == "" {
		cwd = t.workingDir
	}

	res := runShell(ctx, command, cwd, timeout)
	if res.timedOut {
		return Done(Fail("Command timed out after %v", timeout))
	}

	output := res.stdout
	if res.stderr != "" {
		output += "\n[stderr]\n" + res.stderr
	}
	if len(output) > maxShellOutput {
		output = output[:8000] + "\n\n... (truncated) ...\n\n" + output[len(output)-7000:]
	}
	if output == "" {
		output = "(no output)"
	}

	result := &ToolResult{Output: output, Success: res.exitCode == 0}
	if res.exitCode != 0 {
		result.Error = fmt.Sprintf("Exit code: %d", res.exitCode)
		if res.err != nil && res.exitCode < 0 {
			result.Error = res.err.Error()
		}
	}
	return Done(result.WithMeta("exit_code", res.exitCode).WithMeta("command", command))
}

type GitTool struct {
	workingDir string
}

func NewGitTool(workingDir string) *GitTool {
	return &GitTool{workingDir: workingDir}
}

func (t *GitTool) Name() string        { return "git" }
func (t *GitTool) Description() string { return "Run a git command." }

func (t *GitTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "command", Type: "string", Description: "Git subcommand and arguments (e.g. 'status', 'diff', 'log --oneline -10').", Required: true},
		{Name: "cwd", Type: "string", Description: "Working directory for the git command."},
	}
}

func (t *GitTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *GitTool) Execute(ctx context.Context, args map[string]any) Outcome {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return Done(Fail("command is required"))
	}
	command = strings.TrimPrefix(strings.TrimSpace(command), "git ")
	for _, b := range blockedGitOps {
		if strings.Contains(command, b) {
			return Done(Fail("Blocked destructive git operation: git %s. Please confirm explicitly.", command))
		}
	}
	cwd, _ := stringArg(args, "cwd")
	if cwd == "" {
		cwd = t.workingDir
	}

	full := "git " + command
	res := runShell(ctx, full, cwd, gitTimeout)
	if res.timedOut {
		return Done(Fail("Command timed out after %v", gitTimeout))
	}
	output := res.stdout
	if res.stderr != "" {
		output += "\n" + res.stderr
	}
	result := &ToolResult{Output: strings.TrimSpace(output), Success: res.exitCode == 0}
	if res.exitCode != 0 {
		result.Error = fmt.Sprintf("git %s failed", command)
	}
	return Done(result.WithMeta("command", full).WithMeta("exit_code", res.exitCode))
}

type shellResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
	err      error
}

func runShell(ctx context.Context, command, cwd string, timeout time.Duration) shellResult {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "powershell", "-NoProfile", "-NonInteractive", "-Command", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, "sh", "-c", command)
	}
	if cwd != "" {
		cmd.Dir = cwd
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := shellResult{stdout: stdout.String(), stderr: stderr.String()}
	if err == nil {
		return res
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		res.timedOut = true
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.exitCode = exitErr.ExitCode()
		return res
	}
	res.exitCode = -1
	res.err = err
	return res
}
