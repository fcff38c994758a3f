package project

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	gitTimeout      = 10 * time.Second
	maxDirtyListed  = 5
	maxRecentCommit = 3
)

type GitInfo struct {
	Branch        string
	Remote        string
	RecentCommits []string
	DirtyFiles    []string
}

// Git collects branch, origin, recent commits and porcelain status. Outside
// a repository, or without git on PATH, it returns the zero value.
func (c *Context) Git(ctx context.Context) GitInfo {
	branch := c.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if branch == "" {
		return GitInfo{}
	}
	return GitInfo{
		Branch:        branch,
		Remote:        c.git(ctx, "remote", "get-url", "origin"),
		RecentCommits: nonEmptyLines(c.git(ctx, "log", "--oneline", fmt.Sprintf("-%d", maxRecentCommit), "--no-decorate")),
		DirtyFiles:    nonEmptyLines(c.git(ctx, "status", "--porcelain")),
	}
}

func (c *Context) git(ctx context.Context, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func formatGit(gi GitInfo) string {
	lines := []string{"## Git Info\n", "- **Branch:** " + gi.Branch}
	if gi.Remote != "" {
		lines = append(lines, "- **Remote:** "+gi.Remote)
	}
	if n := len(gi.DirtyFiles); n > 0 {
		lines = append(lines, fmt.Sprintf("- **Dirty Files:** %d", n))
		for _, f := range gi.DirtyFiles[:min(n, maxDirtyListed)] {
			lines = append(lines, "  - `"+f+"`")
		}
		if n > maxDirtyListed {
			lines = append(lines, fmt.Sprintf("  - ... and %d more", n-maxDirtyListed))
		}
	}
	return strings.Join(lines, "\n")
}
