package tools

import "time"

// Options configures the built-in tool set.
type Options struct {
	Workspace    string
	Restrict     bool
	ShellTimeout time.Duration
	DenyPatterns []string
	DisableWeb   bool
	// FetchAllowHosts lets web_fetch reach these internal hosts.
	FetchAllowHosts []string
}

// NewDefaultRegistry returns a registry holding every built-in tool.
func NewDefaultRegistry(opts Options) *ToolRegistry {
	r := NewToolRegistry()
	r.Register(NewFileReadTool(opts.Workspace, opts.Restrict))
	r.Register(NewFileWriteTool(opts.Workspace, opts.Restrict))
	r.Register(NewFileEditTool(opts.Workspace, opts.Restrict))
	r.Register(NewGlobTool(opts.Workspace, opts.Restrict))
	r.Register(NewGrepTool(opts.Workspace, opts.Restrict))
	r.Register(NewBashTool(opts.Workspace, opts.ShellTimeout, opts.DenyPatterns))
	r.Register(NewGitTool(opts.Workspace))
	r.Register(NewAskUserTool())
	if !opts.DisableWeb {
		r.Register(NewWebFetchTool(opts.FetchAllowHosts...))
	}
	return r
}
